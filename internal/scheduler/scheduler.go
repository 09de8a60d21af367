package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/verdant-labs/verdant-core/internal/actuator"
	"github.com/verdant-labs/verdant-core/internal/engine"
	"github.com/verdant-labs/verdant-core/internal/history"
	"github.com/verdant-labs/verdant-core/internal/infrastructure/config"
	"github.com/verdant-labs/verdant-core/internal/infrastructure/logging"
	"github.com/verdant-labs/verdant-core/internal/sensor"
	"github.com/verdant-labs/verdant-core/internal/weather"
	"github.com/verdant-labs/verdant-core/internal/zone"
)

// Sentinel errors returned by operator-facing operations.
var (
	// ErrFaulted indicates the scheduler detected an exclusive-lease
	// violation and refuses all new runs until restart.
	ErrFaulted = errors.New("scheduler: faulted, refusing new runs")

	// ErrUnknownZone indicates the named zone is not configured.
	ErrUnknownZone = errors.New("scheduler: unknown zone")

	// ErrZoneBusy indicates the zone is already queued or actuating.
	ErrZoneBusy = errors.New("scheduler: zone already queued or running")

	// ErrQueueFull indicates the run queue cannot accept more work.
	ErrQueueFull = errors.New("scheduler: run queue full")
)

// Seal reasons for runs ended by something other than their timer.
const (
	reasonStopped  = "stopped by operator"
	reasonShutdown = "shutdown"
	reasonWatchdog = "exceeded planned duration"
	reasonManual   = "manual run"
	reasonTestMode = "test mode"
)

// runQueueCapacity bounds queued runs. A full queue aborts the
// overflowing run rather than blocking the evaluation loop.
const runQueueCapacity = 64

// Zone lifecycle states reported in scheduler status.
const (
	ZoneIdle      = "idle"
	ZoneQueued    = "queued"
	ZoneActuating = "actuating"
)

// WeatherSource supplies the shared per-tick weather snapshot.
// *weather.Service satisfies it; nil disables weather entirely and the
// engine fails open.
type WeatherSource interface {
	Snapshot(ctx context.Context) (*weather.Snapshot, error)
}

// Notifier receives scheduler state transitions for external
// publication. Implementations must not block.
type Notifier interface {
	ZoneChanged(name string, info ZoneInfo)
	RunRecorded(rec history.Record)
}

type noopNotifier struct{}

func (noopNotifier) ZoneChanged(string, ZoneInfo) {}
func (noopNotifier) RunRecorded(history.Record)   {}

// Deps wires the scheduler's collaborators. Weather, Sensors and
// Notifier are optional.
type Deps struct {
	Config   *config.Config
	Engine   *engine.Engine
	Weather  WeatherSource
	Sensors  sensor.Reader
	Actuator actuator.Actuator
	History  history.Repository
	Notifier Notifier
	Logger   *logging.Logger
}

// runRequest is one unit of executor work: actuate a zone's valve for
// a fixed duration under an already-appended pending record.
type runRequest struct {
	zone     string
	valve    string
	flowRef  string
	duration time.Duration
	recordID string
}

// zoneRuntime is the scheduler's mutable per-zone state.
type zoneRuntime struct {
	cfg         zone.Config
	schedule    zone.Schedule
	lastFired   time.Time // local day of the last scheduled decision
	status      string
	runID       string
	stop        chan struct{}
	cancelled   bool
	lastOutcome string
	lastReason  string
}

// Scheduler owns the irrigation decision loop: a minute-resolution
// evaluation pass feeding a single executor goroutine that actuates at
// most one zone valve at a time.
type Scheduler struct {
	mu    sync.Mutex
	zones map[string]*zoneRuntime
	order []string

	engine   *engine.Engine
	weather  WeatherSource
	sensors  sensor.Reader
	actuator actuator.Actuator
	repo     history.Repository
	notifier Notifier
	log      *logging.Logger

	loc          *time.Location
	betweenDelay time.Duration
	testDuration time.Duration
	graceMargin  time.Duration
	flowRate     float64 // litres per minute fallback

	queue chan runRequest
	lease *lease

	faulted     bool
	faultReason string

	// now and tick are swappable for tests.
	tick time.Duration
	now  func() time.Time
}

// New builds a Scheduler from validated configuration.
func New(deps Deps) (*Scheduler, error) {
	if deps.Notifier == nil {
		deps.Notifier = noopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}

	s := &Scheduler{
		zones:        make(map[string]*zoneRuntime),
		engine:       deps.Engine,
		weather:      deps.Weather,
		sensors:      deps.Sensors,
		actuator:     deps.Actuator,
		repo:         deps.History,
		notifier:     deps.Notifier,
		log:          deps.Logger.With("component", "scheduler"),
		loc:          deps.Config.Location(),
		betweenDelay: deps.Config.GetBetweenZoneDelay(),
		testDuration: deps.Config.GetTestModeDuration(),
		graceMargin:  deps.Config.GetGraceMargin(),
		flowRate:     deps.Config.Scheduler.FlowRateAssumption,
		queue:        make(chan runRequest, runQueueCapacity),
		lease:        &lease{},
		tick:         time.Minute,
		now:          time.Now,
	}

	for _, zc := range deps.Config.Zones {
		sched, err := zc.Schedule()
		if err != nil {
			return nil, fmt.Errorf("zone %q: %w", zc.Name, err)
		}
		s.zones[zc.Name] = &zoneRuntime{
			cfg:      zc,
			schedule: sched,
			status:   ZoneIdle,
		}
		s.order = append(s.order, zc.Name)
	}

	return s, nil
}

// Run drives the scheduler until the context is cancelled. On return
// every in-flight run is sealed and its valve closed.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("scheduler started",
		"zones", len(s.order),
		"between_zone_delay", s.betweenDelay.String(),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.executor(ctx)
	}()

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			s.drainQueue()
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.evaluateTick(ctx, s.now())
		}
	}
}

// evaluateTick runs one evaluation pass. A zone is due when it is
// enabled, the local time matches its schedule to the minute and it
// has not already fired today. Disabled zones never reach the engine,
// so they leave no skip records either. Missed minutes are never
// replayed.
func (s *Scheduler) evaluateTick(ctx context.Context, now time.Time) {
	if faulted, reason := s.faultState(); faulted {
		s.log.Warn("evaluation suspended, scheduler faulted", "reason", reason)
		return
	}

	local := now.In(s.loc)

	s.mu.Lock()
	var due []*zoneRuntime
	for _, name := range s.order {
		z := s.zones[name]
		if !z.cfg.Enabled {
			continue
		}
		if !z.schedule.Matches(local) {
			continue
		}
		if sameDay(z.lastFired, local) {
			continue
		}
		z.lastFired = local
		due = append(due, z)
	}
	s.mu.Unlock()

	if len(due) == 0 {
		return
	}

	// One snapshot per tick: every zone due this minute decides against
	// identical weather inputs.
	snap := s.fetchSnapshot(ctx)

	for _, z := range due {
		s.dispatch(z.cfg, snap)
	}
}

// dispatch evaluates one zone through the engine and either records a
// skip or queues a run.
func (s *Scheduler) dispatch(cfg zone.Config, snap *weather.Snapshot) {
	decision := s.engine.Decide(cfg, snap, s.readings(cfg))

	s.log.Info("watering decision",
		"zone", cfg.Name,
		"outcome", string(decision.Outcome),
		"duration_minutes", decision.DurationMinutes,
		"reason", decision.Reason,
	)

	if decision.Outcome == engine.OutcomeSkip || decision.DurationMinutes == 0 {
		s.recordSkip(cfg.Name, decision)
		return
	}

	_, err := s.enqueue(cfg.Name, time.Duration(decision.DurationMinutes)*time.Minute,
		string(decision.Outcome), decision.Reason)
	if err != nil {
		s.log.Error("queueing scheduled run failed", "zone", cfg.Name, "error", err)
	}
}

// recordSkip appends a pre-sealed zero-duration record and returns its
// ID. Every decision leaves an audit row, skips included.
func (s *Scheduler) recordSkip(zoneName string, decision engine.Decision) string {
	now := s.now().UTC()
	rec := &history.Record{
		Zone:      zoneName,
		StartedAt: now,
		EndedAt:   &now,
		Status:    history.StatusSkipped,
		Outcome:   string(decision.Outcome),
		Reason:    decision.Reason,
	}
	if err := s.repo.Append(context.Background(), rec); err != nil {
		s.log.Error("recording skip failed", "zone", zoneName, "error", err)
		return ""
	}

	s.setLastDecision(zoneName, string(decision.Outcome), decision.Reason)
	s.notifier.RunRecorded(*rec)
	return rec.ID
}

// enqueue appends a pending record and hands the run to the executor.
// The caller holds no locks.
func (s *Scheduler) enqueue(zoneName string, duration time.Duration, outcome, reason string) (string, error) {
	s.mu.Lock()
	z, ok := s.zones[zoneName]
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrUnknownZone, zoneName)
	}
	if z.status != ZoneIdle {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrZoneBusy, zoneName)
	}

	rec := &history.Record{
		Zone:           zoneName,
		StartedAt:      s.now().UTC(),
		PlannedMinutes: duration.Minutes(),
		Status:         history.StatusPending,
		Outcome:        outcome,
		Reason:         reason,
	}
	if err := s.repo.Append(context.Background(), rec); err != nil {
		s.mu.Unlock()
		return "", fmt.Errorf("appending run record: %w", err)
	}

	z.status = ZoneQueued
	z.runID = rec.ID
	z.cancelled = false
	req := runRequest{
		zone:     zoneName,
		valve:    z.cfg.Valve,
		flowRef:  z.cfg.FlowSensor,
		duration: duration,
		recordID: rec.ID,
	}
	s.mu.Unlock()

	s.notifyZone(zoneName)

	select {
	case s.queue <- req:
		return rec.ID, nil
	default:
		s.sealAborted(req, ErrQueueFull.Error())
		s.resetZone(zoneName)
		return "", ErrQueueFull
	}
}

// fetchSnapshot resolves the shared weather snapshot, nil on failure.
// The engine treats nil as provider-unavailable and fails open.
func (s *Scheduler) fetchSnapshot(ctx context.Context) *weather.Snapshot {
	if s.weather == nil {
		return nil
	}
	snap, err := s.weather.Snapshot(ctx)
	if err != nil {
		s.log.Warn("weather snapshot unavailable, failing open", "error", err)
		return nil
	}
	return snap
}

// readings resolves live sensor state for a zone. Missing or stale
// readings come back nil; the engine skips the corresponding rule.
func (s *Scheduler) readings(cfg zone.Config) engine.SensorReadings {
	if s.sensors == nil || cfg.MoistureSensor == "" {
		return engine.SensorReadings{}
	}
	v, err := s.sensors.Moisture(cfg.MoistureSensor)
	if err != nil {
		if !errors.Is(err, sensor.ErrUnavailable) {
			s.log.Warn("moisture reading failed", "zone", cfg.Name, "error", err)
		}
		return engine.SensorReadings{}
	}
	return engine.SensorReadings{MoisturePercent: &v}
}

// drainQueue seals runs still queued at shutdown as aborted.
func (s *Scheduler) drainQueue() {
	for {
		select {
		case req := <-s.queue:
			s.sealAborted(req, reasonShutdown)
			s.resetZone(req.zone)
		default:
			return
		}
	}
}

func (s *Scheduler) setLastDecision(zoneName, outcome, reason string) {
	s.mu.Lock()
	if z, ok := s.zones[zoneName]; ok {
		z.lastOutcome = outcome
		z.lastReason = reason
	}
	s.mu.Unlock()
	s.notifyZone(zoneName)
}

func (s *Scheduler) isFaulted() bool {
	faulted, _ := s.faultState()
	return faulted
}

func (s *Scheduler) faultState() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.faulted, s.faultReason
}

// fault latches the scheduler into a refusing state. Only a restart
// clears it; continuing to actuate after a lease violation risks two
// open valves.
func (s *Scheduler) fault(reason string) {
	s.mu.Lock()
	already := s.faulted
	if !already {
		s.faulted = true
		s.faultReason = reason
	}
	s.mu.Unlock()
	if !already {
		s.log.Error("scheduler faulted, refusing new runs", "reason", reason)
	}
}

func sameDay(a, b time.Time) bool {
	if a.IsZero() {
		return false
	}
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
