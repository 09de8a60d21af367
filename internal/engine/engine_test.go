package engine

import (
	"testing"

	"github.com/verdant-labs/verdant-core/internal/infrastructure/config"
	"github.com/verdant-labs/verdant-core/internal/weather"
	"github.com/verdant-labs/verdant-core/internal/zone"
)

// ─── Test Helpers ───────────────────────────────────────────────────────────

// defaultRules returns weather rules with all features enabled at the
// default thresholds.
func defaultRules() config.WeatherConfig {
	return config.WeatherConfig{
		RainForecast: config.RainForecastConfig{
			Enabled:        true,
			ThresholdMM:    5.0,
			SkipPercentage: 70,
		},
		RecentRain: config.RecentRainConfig{
			Enabled:     true,
			ThresholdMM: 10.0,
			Compensation: config.CompensationConfig{
				Enabled: true,
				Ratio:   0.5,
			},
		},
		SoilMoisture: config.SoilMoistureConfig{
			Enabled: true,
		},
	}
}

func testZone() zone.Config {
	return zone.Config{
		Name:            "front_lawn",
		Valve:           "valve_front",
		Enabled:         true,
		Type:            "lawn",
		DurationMinutes: 20,
	}
}

func dryWeather() *weather.Snapshot {
	return &weather.Snapshot{ForecastRainMM: 0, ForecastChance: 0, RecentRainMM: 0}
}

func floatPtr(v float64) *float64 { return &v }

// ─── Disabled Zones ─────────────────────────────────────────────────────────

func TestDecide_DisabledZoneAlwaysSkips(t *testing.T) {
	e := New(defaultRules())
	z := testZone()
	z.Enabled = false

	snapshots := []*weather.Snapshot{
		nil,
		dryWeather(),
		{ForecastRainMM: 50, ForecastChance: 100, RecentRainMM: 50},
	}

	for _, snap := range snapshots {
		d := e.Decide(z, snap, SensorReadings{})
		if d.Outcome != OutcomeSkip {
			t.Errorf("disabled zone outcome = %v, want skip (snapshot %+v)", d.Outcome, snap)
		}
		if d.Reason != ReasonDisabled {
			t.Errorf("reason = %q, want %q", d.Reason, ReasonDisabled)
		}
	}
}

// ─── Moisture Rule ──────────────────────────────────────────────────────────

func TestDecide_MoistureSkipTakesPrecedence(t *testing.T) {
	e := New(defaultRules())
	z := testZone()
	z.MoistureThreshold = 40

	// Clear forecast, no recent rain: weather alone would say run.
	d := e.Decide(z, dryWeather(), SensorReadings{MoisturePercent: floatPtr(45)})

	if d.Outcome != OutcomeSkip {
		t.Fatalf("outcome = %v, want skip", d.Outcome)
	}
	if d.Reason != ReasonMoisture {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonMoisture)
	}
}

func TestDecide_MoistureBelowThresholdRuns(t *testing.T) {
	e := New(defaultRules())
	z := testZone()
	z.MoistureThreshold = 40

	d := e.Decide(z, dryWeather(), SensorReadings{MoisturePercent: floatPtr(35)})

	if d.Outcome != OutcomeRun {
		t.Errorf("outcome = %v, want run", d.Outcome)
	}
}

func TestDecide_MoistureUnavailableSkipsRule(t *testing.T) {
	e := New(defaultRules())
	z := testZone()
	z.MoistureThreshold = 40

	// No reading: rule is skipped, evaluation continues to a run.
	d := e.Decide(z, dryWeather(), SensorReadings{})

	if d.Outcome != OutcomeRun {
		t.Errorf("outcome = %v, want run when sensor unavailable", d.Outcome)
	}
}

// ─── Forecast Rule ──────────────────────────────────────────────────────────

func TestDecide_ForecastSkipRequiresBothGates(t *testing.T) {
	e := New(defaultRules())
	z := testZone()

	// Amount below threshold, probability near certain: must NOT skip.
	rules := defaultRules()
	rules.RainForecast.SkipPercentage = 50
	e = New(rules)

	d := e.Decide(z, &weather.Snapshot{ForecastRainMM: 4, ForecastChance: 100}, SensorReadings{})

	if d.Outcome != OutcomeRun {
		t.Errorf("outcome = %v, want run (amount gate fails, rule must not fire)", d.Outcome)
	}

	// Amount over threshold, probability below: must NOT skip either.
	d = e.Decide(z, &weather.Snapshot{ForecastRainMM: 8, ForecastChance: 30}, SensorReadings{})

	if d.Outcome != OutcomeRun {
		t.Errorf("outcome = %v, want run (probability gate fails)", d.Outcome)
	}
}

func TestDecide_ForecastSkipWhenBothGatesHold(t *testing.T) {
	e := New(defaultRules())
	z := testZone()

	d := e.Decide(z, &weather.Snapshot{ForecastRainMM: 6, ForecastChance: 85}, SensorReadings{})

	if d.Outcome != OutcomeSkip {
		t.Fatalf("outcome = %v, want skip", d.Outcome)
	}
	if d.Reason != ReasonForecast {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonForecast)
	}
	if len(d.Factors) != 1 || d.Factors[0] != FactorForecastSkip {
		t.Errorf("factors = %v, want [forecast_skip]", d.Factors)
	}
}

// ─── Recent Rain Rule ───────────────────────────────────────────────────────

func TestDecide_RecentRainReduction(t *testing.T) {
	e := New(defaultRules())
	z := testZone() // 20 minutes

	d := e.Decide(z, &weather.Snapshot{RecentRainMM: 12}, SensorReadings{})

	if d.Outcome != OutcomeReduced {
		t.Fatalf("outcome = %v, want reduced", d.Outcome)
	}
	if d.DurationMinutes != 10 {
		t.Errorf("duration = %d, want 10 (20min halved)", d.DurationMinutes)
	}
	if d.Reason != ReasonCompensation {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonCompensation)
	}
}

func TestDecide_FullCompensationStaysReduced(t *testing.T) {
	rules := defaultRules()
	rules.RecentRain.Compensation.Ratio = 1.0
	e := New(rules)

	d := e.Decide(testZone(), &weather.Snapshot{RecentRainMM: 15}, SensorReadings{})

	if d.Outcome != OutcomeReduced {
		t.Fatalf("outcome = %v, want reduced even at zero duration", d.Outcome)
	}
	if d.DurationMinutes != 0 {
		t.Errorf("duration = %d, want 0", d.DurationMinutes)
	}
}

func TestDecide_RecentRainSkipWithoutCompensation(t *testing.T) {
	rules := defaultRules()
	rules.RecentRain.Compensation.Enabled = false
	e := New(rules)

	d := e.Decide(testZone(), &weather.Snapshot{RecentRainMM: 15}, SensorReadings{})

	if d.Outcome != OutcomeSkip {
		t.Fatalf("outcome = %v, want skip", d.Outcome)
	}
	if d.Reason != ReasonRecentRain {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonRecentRain)
	}
}

func TestDecide_RecentRainBelowThresholdRuns(t *testing.T) {
	e := New(defaultRules())

	d := e.Decide(testZone(), &weather.Snapshot{RecentRainMM: 9.9}, SensorReadings{})

	if d.Outcome != OutcomeRun {
		t.Errorf("outcome = %v, want run", d.Outcome)
	}
	if d.DurationMinutes != 20 {
		t.Errorf("duration = %d, want full 20", d.DurationMinutes)
	}
}

// ─── Fail-Open ──────────────────────────────────────────────────────────────

func TestDecide_NilSnapshotFailsOpen(t *testing.T) {
	e := New(defaultRules())

	d := e.Decide(testZone(), nil, SensorReadings{})

	if d.Outcome != OutcomeRun {
		t.Fatalf("outcome = %v, want run (fail open)", d.Outcome)
	}
	if d.DurationMinutes != 20 {
		t.Errorf("duration = %d, want full 20", d.DurationMinutes)
	}
	if d.Reason != ReasonWeatherUnavailable {
		t.Errorf("reason = %q, want %q", d.Reason, ReasonWeatherUnavailable)
	}
}

// Moisture still applies when weather is unavailable: the sensor rule
// does not depend on the snapshot.
func TestDecide_NilSnapshotStillHonoursMoisture(t *testing.T) {
	e := New(defaultRules())
	z := testZone()
	z.MoistureThreshold = 40

	d := e.Decide(z, nil, SensorReadings{MoisturePercent: floatPtr(60)})

	if d.Outcome != OutcomeSkip {
		t.Errorf("outcome = %v, want skip (moisture rule is snapshot-independent)", d.Outcome)
	}
}

// ─── Defaults and Rounding ──────────────────────────────────────────────────

func TestDecide_UsesTypeDefaultDuration(t *testing.T) {
	e := New(defaultRules())
	z := testZone()
	z.DurationMinutes = 0 // fall back to the lawn default

	d := e.Decide(z, dryWeather(), SensorReadings{})

	if d.DurationMinutes != 20 {
		t.Errorf("duration = %d, want lawn default 20", d.DurationMinutes)
	}
}

func TestReducedDuration(t *testing.T) {
	tests := []struct {
		name    string
		minutes int
		ratio   float64
		want    int
	}{
		{"half of 20", 20, 0.5, 10},
		{"half of 15 rounds up", 15, 0.5, 8},
		{"full compensation", 20, 1.0, 0},
		{"no compensation", 20, 0.0, 20},
		{"third of 10", 10, 0.3, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reducedDuration(tt.minutes, tt.ratio); got != tt.want {
				t.Errorf("reducedDuration(%d, %v) = %d, want %d", tt.minutes, tt.ratio, got, tt.want)
			}
		})
	}
}
