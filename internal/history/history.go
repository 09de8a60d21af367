package history

import (
	"errors"
	"time"
)

// Run status lifecycle. A record is created pending or skipped, moves
// to actuating when the valve opens, and is sealed exactly once as
// completed or aborted.
const (
	StatusPending   = "pending"
	StatusActuating = "actuating"
	StatusCompleted = "completed"
	StatusAborted   = "aborted"
	StatusSkipped   = "skipped"
)

// ErrNotFound indicates no run record exists for the given ID.
var ErrNotFound = errors.New("history: run record not found")

// ErrAlreadySealed indicates a Seal was attempted on a record that
// already has an end time. Records are sealed exactly once.
var ErrAlreadySealed = errors.New("history: run record already sealed")

// Record is a single zone run, skip included. Skips carry a zero
// planned duration and are sealed immediately with their start time.
type Record struct {
	ID             string     `json:"id"`
	Zone           string     `json:"zone"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	PlannedMinutes float64    `json:"planned_minutes"`
	ActualSeconds  int        `json:"actual_seconds"`
	Status         string     `json:"status"`
	Outcome        string     `json:"outcome"`
	Reason         string     `json:"reason,omitempty"`
	WaterLiters    float64    `json:"water_liters"`
}

// Sealed reports whether the record has reached a terminal state.
func (r *Record) Sealed() bool {
	return r.EndedAt != nil
}

// Duration returns the measured run length, or zero for unsealed and
// skipped records.
func (r *Record) Duration() time.Duration {
	return time.Duration(r.ActualSeconds) * time.Second
}

// Filter controls which run records to return.
type Filter struct {
	Zone   string    // optional: filter by zone name
	Since  time.Time // optional: runs started at or after this instant
	Until  time.Time // optional: runs started before this instant
	Status string    // optional: filter by status
	Limit  int       // default 50, max 500
}

// ZoneUsage is the aggregated water delivery for one zone. Runs, water
// and seconds count completed and aborted runs; Skips counts decisions
// that never opened the valve.
type ZoneUsage struct {
	Zone        string  `json:"zone"`
	Runs        int     `json:"runs"`
	Skips       int     `json:"skips"`
	WaterLiters float64 `json:"water_liters"`
	Seconds     int     `json:"seconds"`
}

// DayUsage is total water delivered on one calendar day.
type DayUsage struct {
	Day         string  `json:"day"` // YYYY-MM-DD, UTC
	WaterLiters float64 `json:"water_liters"`
	Runs        int     `json:"runs"`
}
