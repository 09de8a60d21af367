package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence contract for zone run records.
type Repository interface {
	Append(ctx context.Context, rec *Record) error
	MarkActuating(ctx context.Context, id string, at time.Time) error
	Seal(ctx context.Context, id string, status, reason string, endedAt time.Time, actualSeconds int, waterLiters float64) error
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, filter Filter) ([]Record, error)
	AggregateWaterUsage(ctx context.Context, since, until time.Time) ([]ZoneUsage, error)
	DailyUsage(ctx context.Context, since, until time.Time) ([]DayUsage, error)
	RecoverInterrupted(ctx context.Context, at time.Time) (int, error)
}

// SQLiteRepository stores zone runs in the zone_runs table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a run history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Append inserts a new run record. The ID is generated if empty, and
// StartedAt defaults to now. Skipped records must arrive pre-sealed
// with EndedAt set to their start time.
func (r *SQLiteRepository) Append(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = "run-" + uuid.NewString()[:8]
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = StatusPending
	}

	var endedAt any
	if rec.EndedAt != nil {
		endedAt = rec.EndedAt.UTC().Format(time.RFC3339)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO zone_runs (id, zone, started_at, ended_at, planned_minutes, actual_seconds, status, outcome, reason, water_liters)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Zone,
		rec.StartedAt.UTC().Format(time.RFC3339), endedAt,
		rec.PlannedMinutes, rec.ActualSeconds,
		rec.Status, rec.Outcome, rec.Reason, rec.WaterLiters,
	)
	if err != nil {
		return fmt.Errorf("inserting zone run: %w", err)
	}

	return nil
}

// MarkActuating records that the valve opened for a pending run.
func (r *SQLiteRepository) MarkActuating(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE zone_runs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
		StatusActuating, at.UTC().Format(time.RFC3339), id, StatusPending,
	)
	if err != nil {
		return fmt.Errorf("marking zone run actuating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking zone run actuating: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Seal finalises a run record exactly once. The end time is clamped so
// it never precedes the recorded start time. A non-empty reason
// replaces the decision reason, recording why the run ended early.
func (r *SQLiteRepository) Seal(ctx context.Context, id string, status, reason string, endedAt time.Time, actualSeconds int, waterLiters float64) error {
	rec, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Sealed() {
		return fmt.Errorf("%w: %s", ErrAlreadySealed, id)
	}

	if endedAt.Before(rec.StartedAt) {
		endedAt = rec.StartedAt
	}
	if actualSeconds < 0 {
		actualSeconds = 0
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE zone_runs SET status = ?, ended_at = ?, actual_seconds = ?, water_liters = ?,
		        reason = CASE WHEN ? = '' THEN reason ELSE ? END
		 WHERE id = ? AND ended_at IS NULL`,
		status, endedAt.UTC().Format(time.RFC3339), actualSeconds, waterLiters, reason, reason, id,
	)
	if err != nil {
		return fmt.Errorf("sealing zone run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sealing zone run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadySealed, id)
	}
	return nil
}

// Get returns a single run record by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, zone, started_at, ended_at, planned_minutes, actual_seconds, status, outcome, reason, water_liters
		 FROM zone_runs WHERE id = ?`, id,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	return rec, nil
}

// List returns run records matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Record, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 500 { //nolint:mnd // max page size for history queries
		filter.Limit = 500
	}

	var conditions []string
	var args []any

	if filter.Zone != "" {
		conditions = append(conditions, "zone = ?")
		args = append(args, filter.Zone)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, filter.Status)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339))
	}
	if !filter.Until.IsZero() {
		conditions = append(conditions, "started_at < ?")
		args = append(args, filter.Until.UTC().Format(time.RFC3339))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		`SELECT id, zone, started_at, ended_at, planned_minutes, actual_seconds, status, outcome, reason, water_liters
		 FROM zone_runs %s ORDER BY started_at DESC LIMIT ?`, where,
	)
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying zone runs: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating zone runs: %w", err)
	}

	return records, nil
}

// AggregateWaterUsage sums delivered water per zone for completed and
// aborted runs in the window, counting skips separately. Skipped rows
// contribute nothing to water or seconds.
func (r *SQLiteRepository) AggregateWaterUsage(ctx context.Context, since, until time.Time) ([]ZoneUsage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT zone,
		        COUNT(CASE WHEN status IN (?, ?) THEN 1 END),
		        COUNT(CASE WHEN status = ? THEN 1 END),
		        COALESCE(SUM(CASE WHEN status IN (?, ?) THEN water_liters END), 0),
		        COALESCE(SUM(CASE WHEN status IN (?, ?) THEN actual_seconds END), 0)
		 FROM zone_runs
		 WHERE started_at >= ? AND started_at < ? AND status IN (?, ?, ?)
		 GROUP BY zone ORDER BY zone`,
		StatusCompleted, StatusAborted,
		StatusSkipped,
		StatusCompleted, StatusAborted,
		StatusCompleted, StatusAborted,
		since.UTC().Format(time.RFC3339), until.UTC().Format(time.RFC3339),
		StatusCompleted, StatusAborted, StatusSkipped,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating water usage: %w", err)
	}
	defer rows.Close()

	usage := []ZoneUsage{}
	for rows.Next() {
		var u ZoneUsage
		if err := rows.Scan(&u.Zone, &u.Runs, &u.Skips, &u.WaterLiters, &u.Seconds); err != nil {
			return nil, fmt.Errorf("scanning water usage: %w", err)
		}
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating water usage: %w", err)
	}

	return usage, nil
}

// DailyUsage sums delivered water per UTC calendar day in the window.
func (r *SQLiteRepository) DailyUsage(ctx context.Context, since, until time.Time) ([]DayUsage, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT substr(started_at, 1, 10), COALESCE(SUM(water_liters), 0), COUNT(*)
		 FROM zone_runs
		 WHERE started_at >= ? AND started_at < ? AND status IN (?, ?)
		 GROUP BY substr(started_at, 1, 10) ORDER BY substr(started_at, 1, 10)`,
		since.UTC().Format(time.RFC3339), until.UTC().Format(time.RFC3339),
		StatusCompleted, StatusAborted,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating daily usage: %w", err)
	}
	defer rows.Close()

	usage := []DayUsage{}
	for rows.Next() {
		var u DayUsage
		if err := rows.Scan(&u.Day, &u.WaterLiters, &u.Runs); err != nil {
			return nil, fmt.Errorf("scanning daily usage: %w", err)
		}
		usage = append(usage, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily usage: %w", err)
	}

	return usage, nil
}

// RecoverInterrupted seals any records left pending or actuating by an
// unclean shutdown as aborted. Called once at startup, before the
// scheduler begins. Returns the number of records recovered.
func (r *SQLiteRepository) RecoverInterrupted(ctx context.Context, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE zone_runs SET status = ?, ended_at = ?, reason = 'interrupted by restart'
		 WHERE ended_at IS NULL AND status IN (?, ?)`,
		StatusAborted, at.UTC().Format(time.RFC3339),
		StatusPending, StatusActuating,
	)
	if err != nil {
		return 0, fmt.Errorf("recovering interrupted runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("recovering interrupted runs: %w", err)
	}
	return int(n), nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var startedAt string
	var endedAt sql.NullString

	if err := s.Scan(&rec.ID, &rec.Zone, &startedAt, &endedAt,
		&rec.PlannedMinutes, &rec.ActualSeconds,
		&rec.Status, &rec.Outcome, &rec.Reason, &rec.WaterLiters); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning zone run: %w", err)
	}

	t, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing zone run start time %q: %w", startedAt, err)
	}
	rec.StartedAt = t

	if endedAt.Valid && endedAt.String != "" {
		e, err := time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing zone run end time %q: %w", endedAt.String, err)
		}
		rec.EndedAt = &e
	}

	return &rec, nil
}
