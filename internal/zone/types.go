package zone

import (
	"fmt"
	"strings"
)

// Duration bounds for a configured zone (minutes).
const (
	MinDurationMinutes = 1
	MaxDurationMinutes = 120
)

// DefaultMoistureThreshold is the soil moisture skip threshold (percent)
// applied when a zone configures a moisture sensor without a threshold.
const DefaultMoistureThreshold = 30.0

// Type categorises a zone for the default-duration heuristic.
// It never changes decision or scheduling logic.
type Type string

const (
	TypeLawn    Type = "lawn"
	TypeGarden  Type = "garden"
	TypeDrip    Type = "drip"
	TypeFlowers Type = "flowers"
	TypeTrees   Type = "trees"
)

// defaultDurations maps each zone type to its default watering duration
// in minutes, used when a zone omits an explicit duration.
var defaultDurations = map[Type]int{
	TypeLawn:    20,
	TypeGarden:  15,
	TypeDrip:    30,
	TypeFlowers: 10,
	TypeTrees:   45,
}

// Valid reports whether t is a known zone type.
func (t Type) Valid() bool {
	_, ok := defaultDurations[t]
	return ok
}

// DefaultDuration returns the default watering duration in minutes for
// this zone type. Unknown types fall back to the lawn default.
func (t Type) DefaultDuration() int {
	if d, ok := defaultDurations[t]; ok {
		return d
	}
	return defaultDurations[TypeLawn]
}

// AllTypes returns all valid zone types.
func AllTypes() []Type {
	return []Type{TypeLawn, TypeGarden, TypeDrip, TypeFlowers, TypeTrees}
}

// Config is one irrigation zone definition.
//
// Config values are read-only after load; the scheduler re-reads them
// only on an explicit configuration reload.
type Config struct {
	// Name uniquely identifies the zone.
	Name string `yaml:"name" json:"name"`

	// Valve is the actuation reference the actuator understands
	// (e.g. a Zigbee2MQTT friendly name or a switch entity ID).
	Valve string `yaml:"valve" json:"valve"`

	// Enabled gates both scheduling and decision evaluation.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Type drives the default duration when Duration is omitted.
	Type Type `yaml:"zone_type" json:"zone_type"`

	// DurationMinutes is the configured watering duration (1-120).
	// Zero means "use the zone-type default".
	DurationMinutes int `yaml:"duration" json:"duration"`

	// TimeOfDay is the scheduled start time in 24h "HH:MM" form.
	TimeOfDay string `yaml:"schedule" json:"schedule"`

	// Days is the non-empty set of weekdays the schedule fires on.
	// Accepts full names or three-letter abbreviations, case-insensitive.
	Days []string `yaml:"days" json:"days"`

	// FlowSensor optionally references a flow meter for measured
	// water-usage accounting.
	FlowSensor string `yaml:"flow_sensor,omitempty" json:"flow_sensor,omitempty"`

	// MoistureSensor optionally references a soil moisture sensor.
	MoistureSensor string `yaml:"moisture_sensor,omitempty" json:"moisture_sensor,omitempty"`

	// MoistureThreshold is the skip threshold in percent (0-100).
	// Zero means "use DefaultMoistureThreshold".
	MoistureThreshold float64 `yaml:"moisture_threshold" json:"moisture_threshold"`
}

// EffectiveDuration returns the watering duration in minutes, applying
// the zone-type default when no explicit duration is configured.
func (c Config) EffectiveDuration() int {
	if c.DurationMinutes > 0 {
		return c.DurationMinutes
	}
	return c.Type.DefaultDuration()
}

// EffectiveMoistureThreshold returns the moisture skip threshold,
// applying the package default when none is configured.
func (c Config) EffectiveMoistureThreshold() float64 {
	if c.MoistureThreshold > 0 {
		return c.MoistureThreshold
	}
	return DefaultMoistureThreshold
}

// Schedule parses the zone's time-of-day and weekday set. Malformed
// input returns the parse error; Validate reports the same problems
// with field context.
func (c Config) Schedule() (Schedule, error) {
	return ParseSchedule(c.TimeOfDay, c.Days)
}

// Validate checks a single zone definition.
//
// Returns:
//   - error: description of the first problem found, or nil
func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("zone name is required")
	}
	if strings.TrimSpace(c.Valve) == "" {
		return fmt.Errorf("zone %q: valve reference is required", c.Name)
	}
	if c.Type != "" && !c.Type.Valid() {
		return fmt.Errorf("zone %q: unknown zone_type %q", c.Name, c.Type)
	}
	if c.DurationMinutes != 0 &&
		(c.DurationMinutes < MinDurationMinutes || c.DurationMinutes > MaxDurationMinutes) {
		return fmt.Errorf("zone %q: duration must be %d-%d minutes, got %d",
			c.Name, MinDurationMinutes, MaxDurationMinutes, c.DurationMinutes)
	}
	if c.MoistureThreshold < 0 || c.MoistureThreshold > 100 {
		return fmt.Errorf("zone %q: moisture_threshold must be 0-100, got %g",
			c.Name, c.MoistureThreshold)
	}
	if _, err := ParseSchedule(c.TimeOfDay, c.Days); err != nil {
		return fmt.Errorf("zone %q: %w", c.Name, err)
	}
	return nil
}

// ValidateAll checks a full zone list, including name uniqueness.
// An invalid zone list is a hard configuration error: the controller
// must refuse to start rather than run a partial set.
func ValidateAll(zones []Config) error {
	seen := make(map[string]bool, len(zones))
	for i := range zones {
		if err := zones[i].Validate(); err != nil {
			return err
		}
		name := zones[i].Name
		if seen[name] {
			return fmt.Errorf("duplicate zone name %q", name)
		}
		seen[name] = true
	}
	return nil
}
