package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/verdant-labs/verdant-core/internal/history"
)

// closeTimeout bounds the valve-off command on shutdown and abort
// paths, where the run context may already be cancelled.
const closeTimeout = 10 * time.Second

// lease enforces exclusive valve actuation. Exactly one holder at a
// time; acquire and release track holder identity so a violation is
// detected rather than silently tolerated.
type lease struct {
	mu     sync.Mutex
	holder string
}

// acquire claims the lease for holder. Returns false if already held.
func (l *lease) acquire(holder string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != "" {
		return false
	}
	l.holder = holder
	return true
}

// release frees the lease. Returns false if holder does not hold it.
func (l *lease) release(holder string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.holder != holder {
		return false
	}
	l.holder = ""
	return true
}

// current returns the active holder, empty when free.
func (l *lease) current() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder
}

// executor drains the run queue serially. It is the only goroutine
// that touches valves, which together with the lease guarantees at
// most one zone actuates at a time.
func (s *Scheduler) executor(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.queue:
			s.execute(ctx, req)

			// Let supply pressure recover before any next valve opens.
			if s.betweenDelay > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.betweenDelay):
				}
			}
		}
	}
}

// execute actuates one zone run end to end: open valve, wait out the
// planned duration, close valve, seal the record. Every exit path
// seals exactly once and leaves the valve closed.
func (s *Scheduler) execute(ctx context.Context, req runRequest) {
	if s.isFaulted() {
		s.sealAborted(req, "scheduler faulted")
		s.resetZone(req.zone)
		return
	}
	if s.zoneCancelled(req.zone) {
		s.sealAborted(req, reasonStopped)
		s.resetZone(req.zone)
		return
	}

	if !s.lease.acquire(req.recordID) {
		s.fault("actuation lease held by run " + s.lease.current())
		s.sealAborted(req, "scheduler faulted")
		s.resetZone(req.zone)
		return
	}
	defer func() {
		if !s.lease.release(req.recordID) {
			s.fault("actuation lease lost by run " + req.recordID)
		}
	}()

	stop := s.markActuating(req.zone, req.recordID)

	openAt := s.now()
	if err := s.repo.MarkActuating(context.Background(), req.recordID, openAt); err != nil {
		s.log.Error("marking run actuating failed", "zone", req.zone, "error", err)
	}

	if err := s.actuator.Open(ctx, req.valve); err != nil {
		s.log.Error("valve open failed", "zone", req.zone, "valve", req.valve, "error", err)
		s.seal(req, history.StatusAborted, "valve open failed", openAt, openAt)
		s.resetZone(req.zone)
		return
	}

	s.log.Info("zone watering started",
		"zone", req.zone,
		"valve", req.valve,
		"duration", req.duration.String(),
		"run_id", req.recordID,
	)

	status, sealReason := s.awaitRunEnd(ctx, req, stop)

	// Always close, whatever ended the run. The close context is
	// independent of the run context, which may already be cancelled.
	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	closeErr := s.actuator.Close(closeCtx, req.valve)
	cancel()
	if closeErr != nil {
		s.log.Error("valve close failed", "zone", req.zone, "valve", req.valve, "error", closeErr)
		status = history.StatusAborted
		sealReason = "valve close failed"
	}

	s.seal(req, status, sealReason, openAt, s.now())
	s.resetZone(req.zone)
}

// awaitRunEnd blocks until the run's timer elapses or something
// terminates it early. The watchdog fires at planned plus grace, a
// backstop against clock anomalies stalling the run timer.
func (s *Scheduler) awaitRunEnd(ctx context.Context, req runRequest, stop <-chan struct{}) (status, sealReason string) {
	timer := time.NewTimer(req.duration)
	defer timer.Stop()
	watchdog := time.NewTimer(req.duration + s.graceMargin)
	defer watchdog.Stop()

	select {
	case <-timer.C:
		return history.StatusCompleted, ""
	case <-stop:
		return history.StatusAborted, reasonStopped
	case <-ctx.Done():
		return history.StatusAborted, reasonShutdown
	case <-watchdog.C:
		s.log.Error("run watchdog fired", "zone", req.zone, "run_id", req.recordID)
		return history.StatusAborted, reasonWatchdog
	}
}

// seal finalises the run record and emits the run event.
func (s *Scheduler) seal(req runRequest, status, sealReason string, openAt, endAt time.Time) {
	if endAt.Before(openAt) {
		endAt = openAt
	}
	actual := int(endAt.Sub(openAt) / time.Second)
	liters := s.measureWater(req, openAt, actual)

	// Sealing must survive shutdown, so never the run context.
	if err := s.repo.Seal(context.Background(), req.recordID, status, sealReason, endAt, actual, liters); err != nil {
		s.log.Error("sealing run record failed", "run_id", req.recordID, "error", err)
	}

	s.log.Info("zone watering finished",
		"zone", req.zone,
		"status", status,
		"actual_seconds", actual,
		"water_liters", liters,
		"run_id", req.recordID,
	)

	if rec, err := s.repo.Get(context.Background(), req.recordID); err == nil {
		s.setLastDecision(req.zone, rec.Outcome, rec.Reason)
		s.notifier.RunRecorded(*rec)
	}
}

// sealAborted seals a run that never actuated.
func (s *Scheduler) sealAborted(req runRequest, reason string) {
	now := s.now()
	if err := s.repo.Seal(context.Background(), req.recordID, history.StatusAborted, reason, now, 0, 0); err != nil {
		s.log.Error("sealing aborted run failed", "run_id", req.recordID, "error", err)
	}
	if rec, err := s.repo.Get(context.Background(), req.recordID); err == nil {
		s.notifier.RunRecorded(*rec)
	}
}

// measureWater prefers the zone's flow sensor; without one, delivered
// water is estimated from the configured flow rate assumption.
func (s *Scheduler) measureWater(req runRequest, openAt time.Time, actualSeconds int) float64 {
	if req.flowRef != "" && s.sensors != nil {
		if v, err := s.sensors.FlowTotal(req.flowRef, openAt); err == nil {
			return v
		}
	}
	return s.flowRate * float64(actualSeconds) / 60.0
}

// markActuating transitions a zone to actuating and returns its stop
// channel.
func (s *Scheduler) markActuating(zoneName, recordID string) <-chan struct{} {
	stop := make(chan struct{})
	s.mu.Lock()
	if z, ok := s.zones[zoneName]; ok {
		z.status = ZoneActuating
		z.runID = recordID
		z.stop = stop
	}
	s.mu.Unlock()
	s.notifyZone(zoneName)
	return stop
}

// resetZone returns a zone to idle after its run settles.
func (s *Scheduler) resetZone(zoneName string) {
	s.mu.Lock()
	if z, ok := s.zones[zoneName]; ok {
		z.status = ZoneIdle
		z.runID = ""
		z.stop = nil
		z.cancelled = false
	}
	s.mu.Unlock()
	s.notifyZone(zoneName)
}

// zoneCancelled reports whether a queued run was stopped before the
// executor reached it. A zone no longer in configuration counts as
// cancelled; its run was orphaned by a reload.
func (s *Scheduler) zoneCancelled(zoneName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, ok := s.zones[zoneName]
	return !ok || z.cancelled
}
