package engine

import (
	"math"

	"github.com/verdant-labs/verdant-core/internal/infrastructure/config"
	"github.com/verdant-labs/verdant-core/internal/weather"
	"github.com/verdant-labs/verdant-core/internal/zone"
)

// Outcome is the engine's verdict for a zone.
type Outcome string

const (
	// OutcomeRun waters at the full configured duration.
	OutcomeRun Outcome = "run"

	// OutcomeSkip does not water.
	OutcomeSkip Outcome = "skip"

	// OutcomeReduced waters at a shortened duration after recent rainfall.
	// A reduction to zero minutes stays OutcomeReduced, never OutcomeSkip:
	// the audit trail must show that compensation, not a skip rule, zeroed
	// the run.
	OutcomeReduced Outcome = "reduced"
)

// Factor identifies a rule that contributed to a decision.
type Factor string

const (
	FactorMoistureSkip        Factor = "moisture_skip"
	FactorForecastSkip        Factor = "forecast_skip"
	FactorRecentRainReduction Factor = "recent_rain_reduction"
)

// Decision reasons, stable strings recorded in run history.
const (
	ReasonDisabled           = "zone disabled"
	ReasonMoisture           = "soil moisture above threshold"
	ReasonForecast           = "rain forecast"
	ReasonRecentRain         = "recent rainfall above threshold"
	ReasonCompensation       = "recent rainfall compensation"
	ReasonScheduled          = "scheduled"
	ReasonWeatherUnavailable = "weather unavailable, defaulting to scheduled run"
)

// SensorReadings carries the live sensor state for one zone at decision
// time. Nil fields mean the sensor was unavailable; the corresponding
// rule is skipped, not failed.
type SensorReadings struct {
	// MoisturePercent is the soil moisture reading (0-100), nil when
	// the zone has no sensor or the reading is stale.
	MoisturePercent *float64
}

// Decision is the engine's output for one zone evaluation.
type Decision struct {
	// Outcome is the verdict: run, skip, or reduced.
	Outcome Outcome

	// DurationMinutes is the adjusted run length. Equals the zone's
	// configured duration unless Outcome is OutcomeReduced or
	// OutcomeSkip (zero).
	DurationMinutes int

	// Reason is the human-readable explanation recorded in history.
	Reason string

	// Factors lists the rules that contributed to the decision.
	Factors []Factor
}

// Engine evaluates watering decisions against configured weather rules.
//
// Decide is a pure function of its inputs: no I/O, no clock access, no
// mutation. The caller resolves the weather snapshot and sensor
// readings first so that every zone evaluated in one scheduler tick
// sees identical inputs.
type Engine struct {
	rules config.WeatherConfig
}

// New creates an Engine with the given weather rules.
func New(rules config.WeatherConfig) *Engine {
	return &Engine{rules: rules}
}

// Decide returns the watering decision for a zone.
//
// Evaluation order (first applicable skip wins):
//  1. Disabled zone -> skip.
//  2. Soil moisture at or above the zone threshold -> skip.
//  3. Forecast rain: amount AND probability both at threshold -> skip.
//     The gates are ANDed so a near-certain drizzle cannot skip alone.
//  4. Recent rainfall at threshold -> skip, or a reduced run when
//     compensation is enabled.
//  5. Otherwise -> run at full duration.
//
// A nil snapshot means the weather provider failed; the engine fails
// open and waters at full duration. Over-watering is visible and
// correctable, a silently skipped watering is not.
//
// Parameters:
//   - z: Zone configuration
//   - snap: Weather snapshot shared by the tick, nil when unavailable
//   - sensors: Live sensor readings for this zone
//
// Returns:
//   - Decision: The verdict with adjusted duration and reason
func (e *Engine) Decide(z zone.Config, snap *weather.Snapshot, sensors SensorReadings) Decision {
	if !z.Enabled {
		return Decision{
			Outcome: OutcomeSkip,
			Reason:  ReasonDisabled,
		}
	}

	duration := z.EffectiveDuration()

	if e.rules.SoilMoisture.Enabled && sensors.MoisturePercent != nil {
		if *sensors.MoisturePercent >= z.EffectiveMoistureThreshold() {
			return Decision{
				Outcome: OutcomeSkip,
				Reason:  ReasonMoisture,
				Factors: []Factor{FactorMoistureSkip},
			}
		}
	}

	if snap == nil {
		return Decision{
			Outcome:         OutcomeRun,
			DurationMinutes: duration,
			Reason:          ReasonWeatherUnavailable,
		}
	}

	if e.rules.RainForecast.Enabled &&
		snap.ForecastRainMM >= e.rules.RainForecast.ThresholdMM &&
		snap.ForecastChance >= e.rules.RainForecast.SkipPercentage {
		return Decision{
			Outcome: OutcomeSkip,
			Reason:  ReasonForecast,
			Factors: []Factor{FactorForecastSkip},
		}
	}

	if e.rules.RecentRain.Enabled && snap.RecentRainMM >= e.rules.RecentRain.ThresholdMM {
		if !e.rules.RecentRain.Compensation.Enabled {
			return Decision{
				Outcome: OutcomeSkip,
				Reason:  ReasonRecentRain,
				Factors: []Factor{FactorRecentRainReduction},
			}
		}

		return Decision{
			Outcome:         OutcomeReduced,
			DurationMinutes: reducedDuration(duration, e.rules.RecentRain.Compensation.Ratio),
			Reason:          ReasonCompensation,
			Factors:         []Factor{FactorRecentRainReduction},
		}
	}

	return Decision{
		Outcome:         OutcomeRun,
		DurationMinutes: duration,
		Reason:          ReasonScheduled,
	}
}

// reducedDuration applies the compensation ratio to a configured
// duration, rounded to the nearest whole minute, floored at zero.
func reducedDuration(minutes int, ratio float64) int {
	adjusted := int(math.Round(float64(minutes) * (1 - ratio)))
	if adjusted < 0 {
		return 0
	}
	return adjusted
}
