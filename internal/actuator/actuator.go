package actuator

import (
	"context"
	"errors"
	"fmt"

	"github.com/verdant-labs/verdant-core/internal/infrastructure/mqtt"
)

// ErrActuationFailed indicates a valve command could not be delivered.
// The affected run is sealed as aborted; the scheduler moves on.
var ErrActuationFailed = errors.New("actuator: valve command failed")

// Valve command payloads. Zigbee2MQTT-style switches accept a JSON
// state field; smart water valves expose the same contract.
const (
	payloadOpen  = `{"state":"ON"}`
	payloadClose = `{"state":"OFF"}`
)

// Actuator opens and closes zone valves.
//
// Implementations must be safe for concurrent use, although the
// scheduler's exclusive lease means at most one valve command is in
// flight at a time during normal operation.
type Actuator interface {
	// Open turns a zone's valve on.
	Open(ctx context.Context, valve string) error

	// Close turns a zone's valve off. Close must be safe to call
	// repeatedly; shutdown paths close valves that may already be off.
	Close(ctx context.Context, valve string) error
}

// Publisher is the slice of the MQTT client the actuator needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTActuator drives valves through a bridge's command topics.
type MQTTActuator struct {
	client Publisher
	topics mqtt.Topics
	qos    byte
}

// NewMQTTActuator creates an actuator bound to an MQTT client.
//
// Commands are published at the given QoS, never retained - a retained
// ON command replayed to a rejoining valve would open it unattended.
func NewMQTTActuator(client Publisher, topics mqtt.Topics, qos byte) *MQTTActuator {
	return &MQTTActuator{
		client: client,
		topics: topics,
		qos:    qos,
	}
}

// Open turns a zone's valve on.
func (a *MQTTActuator) Open(ctx context.Context, valve string) error {
	return a.send(ctx, valve, payloadOpen)
}

// Close turns a zone's valve off.
func (a *MQTTActuator) Close(ctx context.Context, valve string) error {
	return a.send(ctx, valve, payloadClose)
}

// send publishes a valve command, honouring context cancellation.
func (a *MQTTActuator) send(ctx context.Context, valve string, payload string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrActuationFailed, valve, err)
	}

	topic := a.topics.DeviceCommand(valve)
	if err := a.client.Publish(topic, []byte(payload), a.qos, false); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrActuationFailed, valve, err)
	}
	return nil
}
