// Package engine implements the irrigation decision logic.
//
// The engine is a pure function from (zone config, weather snapshot,
// sensor readings) to a watering decision: run, skip, or a reduced run.
// It performs no I/O and holds no mutable state; the scheduler resolves
// all inputs before asking for decisions so that every zone evaluated
// in one tick sees the same weather.
//
// Rule precedence is fixed: disabled zone, then soil moisture, then
// forecast rain (amount AND probability), then recent rainfall with
// optional duration compensation, then a plain scheduled run. When
// weather data is unavailable the engine fails open and waters at
// full duration.
package engine
