// Package actuator drives irrigation zone valves over MQTT.
//
// The Actuator interface abstracts valve control so the scheduler can
// be tested against a fake. The production implementation publishes
// ON/OFF state commands to a device bridge's command topics, matching
// the contract of Zigbee2MQTT-style smart switches and water valves.
//
// Commands are never retained: a retained ON replayed by the broker to
// a reconnecting valve would open it with no run supervising it.
package actuator
