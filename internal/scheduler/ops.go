package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/verdant-labs/verdant-core/internal/engine"
)

// ZoneInfo is the externally visible state of one zone.
type ZoneInfo struct {
	Name        string     `json:"name"`
	Enabled     bool       `json:"enabled"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	RunID       string     `json:"run_id,omitempty"`
	NextFire    *time.Time `json:"next_fire,omitempty"`
	LastOutcome string     `json:"last_outcome,omitempty"`
	LastReason  string     `json:"last_reason,omitempty"`
}

// State is a point-in-time snapshot of the scheduler.
type State struct {
	Faulted     bool       `json:"faulted"`
	FaultReason string     `json:"fault_reason,omitempty"`
	ActiveZone  string     `json:"active_zone,omitempty"`
	Queued      int        `json:"queued"`
	Zones       []ZoneInfo `json:"zones"`
}

// RunOptions adjusts a manual zone run.
type RunOptions struct {
	// Forced bypasses the decision engine entirely.
	Forced bool

	// Minutes overrides the watering duration when greater than zero.
	// It does not override a skip decision; force the run for that.
	Minutes float64
}

// RunZone waters a single zone now, outside its schedule. The engine
// still evaluates weather and moisture rules unless forced; a forced
// run waters unconditionally.
//
// Returns the run record ID, which covers skips too.
func (s *Scheduler) RunZone(ctx context.Context, name string, opts RunOptions) (string, error) {
	if s.isFaulted() {
		return "", ErrFaulted
	}

	s.mu.Lock()
	z, ok := s.zones[name]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownZone, name)
	}
	cfg := z.cfg
	s.mu.Unlock()

	if opts.Forced {
		minutes := float64(cfg.EffectiveDuration())
		if opts.Minutes > 0 {
			minutes = opts.Minutes
		}
		return s.enqueue(name, minutesToDuration(minutes),
			string(engine.OutcomeRun), reasonManual)
	}

	snap := s.fetchSnapshot(ctx)
	decision := s.engine.Decide(cfg, snap, s.readings(cfg))
	if decision.Outcome == engine.OutcomeSkip || decision.DurationMinutes == 0 {
		return s.recordSkip(name, decision), nil
	}
	minutes := float64(decision.DurationMinutes)
	if opts.Minutes > 0 {
		minutes = opts.Minutes
	}
	return s.enqueue(name, minutesToDuration(minutes),
		string(decision.Outcome), decision.Reason)
}

func minutesToDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}

// RunAll waters every zone in configuration order, one shared weather
// snapshot for the batch. Zones already queued or running are skipped
// with their error collected.
func (s *Scheduler) RunAll(ctx context.Context, forced bool) ([]string, error) {
	if s.isFaulted() {
		return nil, ErrFaulted
	}

	s.mu.Lock()
	order := append([]string(nil), s.order...)
	s.mu.Unlock()

	snap := s.fetchSnapshot(ctx)
	var ids []string
	var firstErr error

	for _, name := range order {
		s.mu.Lock()
		cfg := s.zones[name].cfg
		s.mu.Unlock()

		var id string
		var err error
		if forced {
			id, err = s.enqueue(name, time.Duration(cfg.EffectiveDuration())*time.Minute,
				string(engine.OutcomeRun), reasonManual)
		} else {
			decision := s.engine.Decide(cfg, snap, s.readings(cfg))
			if decision.Outcome == engine.OutcomeSkip || decision.DurationMinutes == 0 {
				id = s.recordSkip(name, decision)
			} else {
				id, err = s.enqueue(name, time.Duration(decision.DurationMinutes)*time.Minute,
					string(decision.Outcome), decision.Reason)
			}
		}
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ids = append(ids, id)
	}

	return ids, firstErr
}

// RunTest cycles every enabled zone's valve for the short test-mode
// duration, bypassing the engine and the once-per-day guard. Used to
// verify plumbing after installation or repair.
func (s *Scheduler) RunTest(ctx context.Context) ([]string, error) {
	if s.isFaulted() {
		return nil, ErrFaulted
	}

	s.mu.Lock()
	var order []string
	for _, name := range s.order {
		if z, ok := s.zones[name]; ok && z.cfg.Enabled {
			order = append(order, name)
		}
	}
	s.mu.Unlock()

	var ids []string
	var firstErr error
	for _, name := range order {
		id, err := s.enqueue(name, s.testDuration, string(engine.OutcomeRun), reasonTestMode)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ids = append(ids, id)
	}
	return ids, firstErr
}

// StopZone terminates a zone's active or queued run. Stopping an idle
// zone is a no-op.
func (s *Scheduler) StopZone(name string) error {
	s.mu.Lock()
	z, ok := s.zones[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownZone, name)
	}
	switch z.status {
	case ZoneActuating:
		if z.stop != nil {
			close(z.stop)
			z.stop = nil
		}
	case ZoneQueued:
		z.cancelled = true
	}
	s.mu.Unlock()
	return nil
}

// StopAll terminates every active and queued run.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	names := append([]string(nil), s.order...)
	s.mu.Unlock()
	for _, name := range names {
		_ = s.StopZone(name) //nolint:errcheck // names come from the zone map
	}
}

// SetZoneEnabled toggles a zone without a config reload. A disabled
// zone still appears in evaluation and records a skip.
func (s *Scheduler) SetZoneEnabled(name string, enabled bool) error {
	s.mu.Lock()
	z, ok := s.zones[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownZone, name)
	}
	z.cfg.Enabled = enabled
	s.mu.Unlock()
	s.notifyZone(name)
	return nil
}

// State reports the scheduler's current status.
func (s *Scheduler) State() State {
	now := s.now().In(s.loc)

	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		Faulted:     s.faulted,
		FaultReason: s.faultReason,
		Queued:      len(s.queue),
	}
	for _, name := range s.order {
		z := s.zones[name]
		if z.status == ZoneActuating {
			st.ActiveZone = name
		}
		st.Zones = append(st.Zones, s.zoneInfoLocked(z, now))
	}
	return st
}

// Reload applies a new configuration in place. Zone runtime state
// survives for zones that persist; the once-per-day guard is not
// reset, so a reload cannot re-trigger today's runs. Zones removed
// from configuration have their active or queued runs stopped. Nil
// collaborator fields in deps keep the scheduler's current ones, so
// callers replacing only the engine need not rewire weather or
// sensors.
func (s *Scheduler) Reload(deps Deps) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	zones := make(map[string]*zoneRuntime, len(deps.Config.Zones))
	var order []string
	for _, zc := range deps.Config.Zones {
		sched, err := zc.Schedule()
		if err != nil {
			return fmt.Errorf("zone %q: %w", zc.Name, err)
		}
		z := &zoneRuntime{cfg: zc, schedule: sched, status: ZoneIdle}
		if old, ok := s.zones[zc.Name]; ok {
			z.lastFired = old.lastFired
			z.status = old.status
			z.runID = old.runID
			z.stop = old.stop
			z.cancelled = old.cancelled
			z.lastOutcome = old.lastOutcome
			z.lastReason = old.lastReason
		}
		zones[zc.Name] = z
		order = append(order, zc.Name)
	}

	// Removed zones must not keep watering. Queued runs for them abort
	// in the executor, which treats an unknown zone as cancelled.
	for name, old := range s.zones {
		if _, kept := zones[name]; kept {
			continue
		}
		if old.status == ZoneActuating && old.stop != nil {
			close(old.stop)
			old.stop = nil
		}
	}

	s.zones = zones
	s.order = order
	if deps.Engine != nil {
		s.engine = deps.Engine
	}
	if deps.Weather != nil {
		s.weather = deps.Weather
	}
	if deps.Sensors != nil {
		s.sensors = deps.Sensors
	}
	s.loc = deps.Config.Location()
	s.betweenDelay = deps.Config.GetBetweenZoneDelay()
	s.testDuration = deps.Config.GetTestModeDuration()
	s.graceMargin = deps.Config.GetGraceMargin()
	s.flowRate = deps.Config.Scheduler.FlowRateAssumption

	s.log.Info("scheduler configuration reloaded", "zones", len(order))
	return nil
}

// notifyZone emits the zone's current state to the notifier.
func (s *Scheduler) notifyZone(name string) {
	now := s.now().In(s.loc)
	s.mu.Lock()
	z, ok := s.zones[name]
	if !ok {
		s.mu.Unlock()
		return
	}
	info := s.zoneInfoLocked(z, now)
	s.mu.Unlock()
	s.notifier.ZoneChanged(name, info)
}

func (s *Scheduler) zoneInfoLocked(z *zoneRuntime, now time.Time) ZoneInfo {
	info := ZoneInfo{
		Name:        z.cfg.Name,
		Enabled:     z.cfg.Enabled,
		Type:        string(z.cfg.Type),
		Status:      z.status,
		RunID:       z.runID,
		LastOutcome: z.lastOutcome,
		LastReason:  z.lastReason,
	}
	next := z.schedule.NextFire(now)
	if !next.IsZero() {
		info.NextFire = &next
	}
	return info
}
