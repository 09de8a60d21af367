package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/verdant-labs/verdant-core/internal/engine"
	"github.com/verdant-labs/verdant-core/internal/history"
	"github.com/verdant-labs/verdant-core/internal/infrastructure/config"
	"github.com/verdant-labs/verdant-core/internal/infrastructure/mqtt"
	"github.com/verdant-labs/verdant-core/internal/scheduler"
	"github.com/verdant-labs/verdant-core/internal/zone"
)

// ─── Test Fakes ───

type fakeBroker struct {
	mu       sync.Mutex
	msgs     []brokerMsg
	handlers map[string]mqtt.MessageHandler
}

type brokerMsg struct {
	topic    string
	payload  []byte
	retained bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte, _ byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, brokerMsg{topic: topic, payload: payload, retained: retained})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

// deliver injects an inbound message as the broker would.
func (b *fakeBroker) deliver(t *testing.T, topic string, payload string) error {
	t.Helper()
	b.mu.Lock()
	handler, ok := b.handlers[topic]
	b.mu.Unlock()
	if !ok {
		t.Fatalf("no handler subscribed on %s", topic)
	}
	return handler(topic, []byte(payload))
}

func (b *fakeBroker) published(topic string) []brokerMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []brokerMsg
	for _, m := range b.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type stubRepo struct {
	mu   sync.Mutex
	recs map[string]*history.Record
	seq  int
}

func newStubRepo() *stubRepo {
	return &stubRepo{recs: make(map[string]*history.Record)}
}

func (r *stubRepo) Append(_ context.Context, rec *history.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == "" {
		r.seq++
		rec.ID = fmt.Sprintf("run-%04d", r.seq)
	}
	cp := *rec
	r.recs[rec.ID] = &cp
	return nil
}

func (r *stubRepo) MarkActuating(context.Context, string, time.Time) error { return nil }

func (r *stubRepo) Seal(_ context.Context, id, status, reason string, endedAt time.Time, secs int, liters float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.recs[id]; ok {
		rec.Status = status
		rec.EndedAt = &endedAt
		rec.ActualSeconds = secs
		rec.WaterLiters = liters
		if reason != "" {
			rec.Reason = reason
		}
	}
	return nil
}

func (r *stubRepo) Get(_ context.Context, id string) (*history.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.recs[id]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, history.ErrNotFound
}

func (r *stubRepo) List(_ context.Context, filter history.Filter) ([]history.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []history.Record
	for _, rec := range r.recs {
		if filter.Zone != "" && rec.Zone != filter.Zone {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (r *stubRepo) AggregateWaterUsage(context.Context, time.Time, time.Time) ([]history.ZoneUsage, error) {
	return []history.ZoneUsage{{Zone: "front_lawn", Runs: 2, WaterLiters: 300}}, nil
}
func (r *stubRepo) DailyUsage(context.Context, time.Time, time.Time) ([]history.DayUsage, error) {
	return nil, nil
}
func (r *stubRepo) RecoverInterrupted(context.Context, time.Time) (int, error) { return 0, nil }

type stubActuator struct{}

func (stubActuator) Open(context.Context, string) error  { return nil }
func (stubActuator) Close(context.Context, string) error { return nil }

// ─── Test Setup ───

func newTestAdapter(t *testing.T) (*Adapter, *fakeBroker, *stubRepo) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Site.ID = "test-site"
	cfg.Site.Timezone = "UTC"
	cfg.Scheduler = config.SchedulerConfig{TestModeDuration: 1, GraceMargin: 60, FlowRateAssumption: 15}
	cfg.Zones = []zone.Config{{
		Name:            "front_lawn",
		Valve:           "valve_front",
		Enabled:         true,
		Type:            zone.TypeLawn,
		DurationMinutes: 10,
		TimeOfDay:       "06:00",
		Days:            []string{"mon"},
	}}

	repo := newStubRepo()
	sched, err := scheduler.New(scheduler.Deps{
		Config:   cfg,
		Engine:   engine.New(cfg.Weather),
		Actuator: stubActuator{},
		History:  repo,
	})
	if err != nil {
		t.Fatalf("scheduler.New() error: %v", err)
	}

	broker := newFakeBroker()
	topics := mqtt.Topics{DevicePrefix: "zigbee2mqtt"}
	adapter := NewAdapter(sched, repo, broker, topics, 1, nil)
	if err := adapter.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	return adapter, broker, repo
}

func decodeResponse(t *testing.T, broker *fakeBroker) response {
	t.Helper()
	msgs := broker.published("verdant/command/scheduler/response")
	if len(msgs) == 0 {
		t.Fatal("no command response published")
	}
	var resp response
	if err := json.Unmarshal(msgs[len(msgs)-1].payload, &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

// ─── Commands ───

func TestStartPublishesRetainedState(t *testing.T) {
	_, broker, _ := newTestAdapter(t)

	msgs := broker.published("verdant/state/scheduler")
	if len(msgs) != 1 {
		t.Fatalf("got %d state publications, want 1", len(msgs))
	}
	if !msgs[0].retained {
		t.Error("scheduler state must be retained")
	}

	var st scheduler.State
	if err := json.Unmarshal(msgs[0].payload, &st); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if len(st.Zones) != 1 || st.Zones[0].Name != "front_lawn" {
		t.Errorf("state zones = %+v", st.Zones)
	}
}

func TestRunZoneCommandQueuesRun(t *testing.T) {
	_, broker, repo := newTestAdapter(t)

	err := broker.deliver(t, "verdant/command/scheduler",
		`{"action":"run_zone","zone":"front_lawn","forced":true}`)
	if err != nil {
		t.Fatalf("deliver error: %v", err)
	}

	resp := decodeResponse(t, broker)
	if !resp.OK {
		t.Fatalf("response not ok: %s", resp.Error)
	}
	if len(resp.RunIDs) != 1 {
		t.Fatalf("response run IDs = %v, want one", resp.RunIDs)
	}

	rec, err := repo.Get(context.Background(), resp.RunIDs[0])
	if err != nil {
		t.Fatalf("record lookup: %v", err)
	}
	if rec.Zone != "front_lawn" || rec.PlannedMinutes != 10 {
		t.Errorf("record = %+v", rec)
	}

	// State is republished after every command.
	if n := len(broker.published("verdant/state/scheduler")); n < 2 {
		t.Errorf("state published %d times, want republish after command", n)
	}
}

func TestRunZoneCommandUnknownZoneFails(t *testing.T) {
	_, broker, _ := newTestAdapter(t)

	err := broker.deliver(t, "verdant/command/scheduler",
		`{"action":"run_zone","zone":"nope"}`)
	if err == nil {
		t.Fatal("expected handler error for unknown zone")
	}

	resp := decodeResponse(t, broker)
	if resp.OK {
		t.Error("response ok for unknown zone")
	}
	if !strings.Contains(resp.Error, "unknown zone") {
		t.Errorf("response error = %q", resp.Error)
	}
}

func TestUnknownActionRejected(t *testing.T) {
	_, broker, _ := newTestAdapter(t)

	if err := broker.deliver(t, "verdant/command/scheduler", `{"action":"explode"}`); err == nil {
		t.Fatal("expected handler error for unknown action")
	}
	resp := decodeResponse(t, broker)
	if resp.OK {
		t.Error("response ok for unknown action")
	}
}

func TestMalformedPayloadRejected(t *testing.T) {
	_, broker, _ := newTestAdapter(t)

	if err := broker.deliver(t, "verdant/command/scheduler", `{not json`); err == nil {
		t.Fatal("expected handler error for malformed payload")
	}
	resp := decodeResponse(t, broker)
	if resp.OK {
		t.Error("response ok for malformed payload")
	}
}

func TestDisableZoneCommand(t *testing.T) {
	adapter, broker, _ := newTestAdapter(t)

	err := broker.deliver(t, "verdant/command/scheduler",
		`{"action":"disable_zone","zone":"front_lawn"}`)
	if err != nil {
		t.Fatalf("deliver error: %v", err)
	}

	adapter.PublishState()
	msgs := broker.published("verdant/state/scheduler")
	var st scheduler.State
	if err := json.Unmarshal(msgs[len(msgs)-1].payload, &st); err != nil {
		t.Fatalf("decoding state: %v", err)
	}
	if st.Zones[0].Enabled {
		t.Error("zone still enabled after disable_zone")
	}
}

func TestRunTestCommand(t *testing.T) {
	_, broker, _ := newTestAdapter(t)

	if err := broker.deliver(t, "verdant/command/scheduler", `{"action":"run_test"}`); err != nil {
		t.Fatalf("deliver error: %v", err)
	}
	resp := decodeResponse(t, broker)
	if !resp.OK || len(resp.RunIDs) != 1 {
		t.Errorf("response = %+v, want one test run", resp)
	}
}

func TestHistoryCommandReturnsRuns(t *testing.T) {
	_, broker, repo := newTestAdapter(t)

	now := time.Now().UTC()
	_ = repo.Append(context.Background(), &history.Record{
		Zone: "front_lawn", StartedAt: now, EndedAt: &now,
		Status: history.StatusCompleted, Outcome: "run",
	})

	err := broker.deliver(t, "verdant/command/scheduler",
		`{"action":"history","zone":"front_lawn"}`)
	if err != nil {
		t.Fatalf("deliver error: %v", err)
	}

	resp := decodeResponse(t, broker)
	if !resp.OK {
		t.Fatalf("response not ok: %s", resp.Error)
	}
	if len(resp.Runs) != 1 || resp.Runs[0].Zone != "front_lawn" {
		t.Errorf("response runs = %+v", resp.Runs)
	}
}

func TestUsageCommandReturnsAggregates(t *testing.T) {
	_, broker, _ := newTestAdapter(t)

	if err := broker.deliver(t, "verdant/command/scheduler", `{"action":"usage"}`); err != nil {
		t.Fatalf("deliver error: %v", err)
	}

	resp := decodeResponse(t, broker)
	if !resp.OK {
		t.Fatalf("response not ok: %s", resp.Error)
	}
	if len(resp.Usage) != 1 || resp.Usage[0].WaterLiters != 300 {
		t.Errorf("response usage = %+v", resp.Usage)
	}
}

// ─── Notifier ───

func TestZoneChangedPublishesRetained(t *testing.T) {
	adapter, broker, _ := newTestAdapter(t)

	adapter.ZoneChanged("front_lawn", scheduler.ZoneInfo{Name: "front_lawn", Status: scheduler.ZoneActuating})

	msgs := broker.published("verdant/state/zone/front_lawn")
	if len(msgs) == 0 {
		t.Fatal("no zone state published")
	}
	last := msgs[len(msgs)-1]
	if !last.retained {
		t.Error("zone state must be retained")
	}
	var info scheduler.ZoneInfo
	if err := json.Unmarshal(last.payload, &info); err != nil {
		t.Fatalf("decoding zone state: %v", err)
	}
	if info.Status != scheduler.ZoneActuating {
		t.Errorf("status = %q, want actuating", info.Status)
	}
}

func TestRunRecordedPublishesEvent(t *testing.T) {
	adapter, broker, _ := newTestAdapter(t)

	now := time.Now().UTC()
	adapter.RunRecorded(history.Record{
		ID: "run-0001", Zone: "front_lawn",
		StartedAt: now, EndedAt: &now,
		Status: history.StatusCompleted, Outcome: "run",
	})

	msgs := broker.published("verdant/event/run")
	if len(msgs) != 1 {
		t.Fatalf("got %d run events, want 1", len(msgs))
	}
	if msgs[0].retained {
		t.Error("run events must not be retained")
	}
	var rec history.Record
	if err := json.Unmarshal(msgs[0].payload, &rec); err != nil {
		t.Fatalf("decoding run event: %v", err)
	}
	if rec.ID != "run-0001" || rec.Status != history.StatusCompleted {
		t.Errorf("event record = %+v", rec)
	}
}
