package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/verdant-labs/verdant-core/internal/history"
	"github.com/verdant-labs/verdant-core/internal/infrastructure/logging"
	"github.com/verdant-labs/verdant-core/internal/infrastructure/mqtt"
	"github.com/verdant-labs/verdant-core/internal/scheduler"
)

// Actions accepted on the scheduler command topic.
const (
	ActionRunZone     = "run_zone"
	ActionRunAll      = "run_all"
	ActionRunTest     = "run_test"
	ActionStopZone    = "stop_zone"
	ActionStopAll     = "stop_all"
	ActionEnableZone  = "enable_zone"
	ActionDisableZone = "disable_zone"
	ActionStatus      = "status"
	ActionHistory     = "history"
	ActionUsage       = "usage"
)

// defaultUsageDays is the look-back window for usage queries when the
// command does not specify one.
const defaultUsageDays = 7

// ErrUnknownAction indicates an unrecognised command action.
var ErrUnknownAction = errors.New("command: unknown action")

// Command is the JSON envelope published to the command topic.
type Command struct {
	Action string `json:"action"`
	Zone   string `json:"zone,omitempty"`
	Forced bool   `json:"forced,omitempty"`

	// Minutes overrides the watering duration for run_zone.
	Minutes float64 `json:"minutes,omitempty"`

	// Limit and Days scope history and usage queries.
	Limit int `json:"limit,omitempty"`
	Days  int `json:"days,omitempty"`
}

// response is published after every command.
type response struct {
	Action string              `json:"action"`
	OK     bool                `json:"ok"`
	Error  string              `json:"error,omitempty"`
	RunIDs []string            `json:"run_ids,omitempty"`
	Runs   []history.Record    `json:"runs,omitempty"`
	Usage  []history.ZoneUsage `json:"usage,omitempty"`
	Daily  []history.DayUsage  `json:"daily,omitempty"`
}

// Broker is the slice of the MQTT client the adapter needs.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Adapter bridges MQTT operator commands to the scheduler and mirrors
// scheduler state back to retained topics. It implements
// scheduler.Notifier.
type Adapter struct {
	sched  *scheduler.Scheduler
	repo   history.Repository
	broker Broker
	topics mqtt.Topics
	qos    byte
	log    *logging.Logger
}

// NewAdapter creates the command adapter. Attach it as the scheduler's
// notifier, then call Start to subscribe.
func NewAdapter(sched *scheduler.Scheduler, repo history.Repository, broker Broker, topics mqtt.Topics, qos byte, log *logging.Logger) *Adapter {
	if log == nil {
		log = logging.Default()
	}
	return &Adapter{
		sched:  sched,
		repo:   repo,
		broker: broker,
		topics: topics,
		qos:    qos,
		log:    log.With("component", "command"),
	}
}

// Start subscribes to the scheduler command topic and publishes the
// initial retained state.
func (a *Adapter) Start() error {
	if err := a.broker.Subscribe(a.topics.SchedulerCommand(), a.qos, a.handleCommand); err != nil {
		return fmt.Errorf("subscribing to command topic: %w", err)
	}
	a.PublishState()
	return nil
}

// handleCommand parses and dispatches one operator command.
func (a *Adapter) handleCommand(_ string, payload []byte) error {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		a.respond(response{OK: false, Error: "malformed command payload"})
		return fmt.Errorf("parsing command: %w", err)
	}

	a.log.Info("operator command received", "action", cmd.Action, "zone", cmd.Zone, "forced", cmd.Forced)

	resp := a.dispatch(cmd)
	a.respond(resp)
	a.PublishState()

	if !resp.OK {
		return errors.New(resp.Error)
	}
	return nil
}

func (a *Adapter) dispatch(cmd Command) response {
	ctx := context.Background()
	resp := response{Action: cmd.Action, OK: true}

	var err error
	switch cmd.Action {
	case ActionRunZone:
		var id string
		id, err = a.sched.RunZone(ctx, cmd.Zone, scheduler.RunOptions{
			Forced:  cmd.Forced,
			Minutes: cmd.Minutes,
		})
		if id != "" {
			resp.RunIDs = []string{id}
		}
	case ActionRunAll:
		resp.RunIDs, err = a.sched.RunAll(ctx, cmd.Forced)
	case ActionRunTest:
		resp.RunIDs, err = a.sched.RunTest(ctx)
	case ActionStopZone:
		err = a.sched.StopZone(cmd.Zone)
	case ActionStopAll:
		a.sched.StopAll()
	case ActionEnableZone:
		err = a.sched.SetZoneEnabled(cmd.Zone, true)
	case ActionDisableZone:
		err = a.sched.SetZoneEnabled(cmd.Zone, false)
	case ActionStatus:
		// State republication happens after every command.
	case ActionHistory:
		resp.Runs, err = a.repo.List(ctx, history.Filter{Zone: cmd.Zone, Limit: cmd.Limit})
	case ActionUsage:
		days := cmd.Days
		if days <= 0 {
			days = defaultUsageDays
		}
		now := time.Now().UTC()
		since := now.AddDate(0, 0, -days)
		resp.Usage, err = a.repo.AggregateWaterUsage(ctx, since, now)
		if err == nil {
			resp.Daily, err = a.repo.DailyUsage(ctx, since, now)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, cmd.Action)
	}

	if err != nil {
		resp.OK = false
		resp.Error = err.Error()
	}
	return resp
}

// respond publishes the command outcome, not retained.
func (a *Adapter) respond(resp response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		return
	}
	topic := a.topics.SchedulerCommand() + "/response"
	if err := a.broker.Publish(topic, payload, a.qos, false); err != nil {
		a.log.Warn("publishing command response failed", "error", err)
	}
}

// PublishState mirrors the scheduler state to its retained topic.
func (a *Adapter) PublishState() {
	st := a.sched.State()
	payload, err := json.Marshal(st)
	if err != nil {
		a.log.Error("marshalling scheduler state failed", "error", err)
		return
	}
	if err := a.broker.Publish(a.topics.SchedulerState(), payload, a.qos, true); err != nil {
		a.log.Warn("publishing scheduler state failed", "error", err)
	}
}

// ZoneChanged mirrors one zone's state to its retained topic.
// Implements scheduler.Notifier.
func (a *Adapter) ZoneChanged(name string, info scheduler.ZoneInfo) {
	payload, err := json.Marshal(info)
	if err != nil {
		a.log.Error("marshalling zone state failed", "zone", name, "error", err)
		return
	}
	if err := a.broker.Publish(a.topics.ZoneState(name), payload, a.qos, true); err != nil {
		a.log.Warn("publishing zone state failed", "zone", name, "error", err)
	}
}

// RunRecorded announces a sealed run record on the event topic.
// Implements scheduler.Notifier.
func (a *Adapter) RunRecorded(rec history.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		a.log.Error("marshalling run event failed", "run_id", rec.ID, "error", err)
		return
	}
	if err := a.broker.Publish(a.topics.RunEvent(), payload, a.qos, false); err != nil {
		a.log.Warn("publishing run event failed", "run_id", rec.ID, "error", err)
	}
}
