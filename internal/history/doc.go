// Package history persists the zone run audit trail in SQLite.
//
// Every scheduler decision produces exactly one record, skips
// included: a skip is a zero-duration record sealed at its start time
// carrying the decision reason. Runs move through a small lifecycle
// (pending, actuating, then completed or aborted) and are sealed
// exactly once with their measured duration and delivered water.
//
// Timestamps are stored as RFC3339 UTC strings; aggregation queries
// group on the date prefix. The repository also recovers records left
// unsealed by an unclean shutdown, sealing them as aborted at startup.
package history
