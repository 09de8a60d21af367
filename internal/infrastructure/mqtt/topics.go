package mqtt

import "fmt"

// Topic prefixes for the Verdant MQTT scheme.
//
// Controller topics live under a fixed "verdant" prefix:
//
//	verdant/command/scheduler        operator commands (run, stop, enable...)
//	verdant/state/scheduler          retained scheduler state
//	verdant/state/zone/{zone}        retained per-zone state
//	verdant/event/run                run lifecycle events
//	verdant/system/status            online/offline status (LWT)
//
// Device topics (valves, sensors) use a configurable prefix so the
// controller can sit on a Zigbee2MQTT, Tasmota, or custom bridge:
//
//	{prefix}/{device}                device state reports
//	{prefix}/{device}/set            device commands
const (
	// TopicPrefixVerdant is the base for all controller topics.
	TopicPrefixVerdant = "verdant"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "verdant/system"

	// DefaultDevicePrefix is the assumed bridge base topic when none is configured.
	DefaultDevicePrefix = "zigbee2mqtt"
)

// Topics provides builders for Verdant MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{DevicePrefix: "zigbee2mqtt"}
//	cmdTopic := topics.DeviceCommand("valve_front")
//	// Returns: "zigbee2mqtt/valve_front/set"
type Topics struct {
	// DevicePrefix is the bridge base topic for valve and sensor devices.
	// Empty falls back to DefaultDevicePrefix.
	DevicePrefix string
}

// devicePrefix returns the configured device prefix or the default.
func (t Topics) devicePrefix() string {
	if t.DevicePrefix == "" {
		return DefaultDevicePrefix
	}
	return t.DevicePrefix
}

// ─── Device Topics ──────────────────────────────────────────────────────────

// DeviceState returns the topic a device reports its state on.
//
// Example: zigbee2mqtt/valve_front
func (t Topics) DeviceState(device string) string {
	return fmt.Sprintf("%s/%s", t.devicePrefix(), device)
}

// DeviceCommand returns the topic for commands to a device.
//
// Example: zigbee2mqtt/valve_front/set
func (t Topics) DeviceCommand(device string) string {
	return fmt.Sprintf("%s/%s/set", t.devicePrefix(), device)
}

// AllDeviceStates returns a pattern matching all device state reports.
//
// Pattern: zigbee2mqtt/+
func (t Topics) AllDeviceStates() string {
	return fmt.Sprintf("%s/+", t.devicePrefix())
}

// ─── Controller Topics ──────────────────────────────────────────────────────

// SchedulerCommand returns the topic operator commands arrive on.
//
// Example: verdant/command/scheduler
func (Topics) SchedulerCommand() string {
	return fmt.Sprintf("%s/command/scheduler", TopicPrefixVerdant)
}

// SchedulerState returns the retained scheduler state topic.
//
// Example: verdant/state/scheduler
func (Topics) SchedulerState() string {
	return fmt.Sprintf("%s/state/scheduler", TopicPrefixVerdant)
}

// ZoneState returns the retained state topic for a zone.
//
// Example: verdant/state/zone/front_lawn
func (Topics) ZoneState(zone string) string {
	return fmt.Sprintf("%s/state/zone/%s", TopicPrefixVerdant, zone)
}

// RunEvent returns the topic run lifecycle events are published on.
//
// Example: verdant/event/run
func (Topics) RunEvent() string {
	return fmt.Sprintf("%s/event/run", TopicPrefixVerdant)
}

// AllZoneStates returns a pattern matching all zone state topics.
//
// Pattern: verdant/state/zone/+
func (Topics) AllZoneStates() string {
	return fmt.Sprintf("%s/state/zone/+", TopicPrefixVerdant)
}

// ─── System Topics ──────────────────────────────────────────────────────────

// SystemStatus returns the system status topic.
//
// Example: verdant/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
