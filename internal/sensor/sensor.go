package sensor

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/verdant-labs/verdant-core/internal/infrastructure/mqtt"
)

// ErrUnavailable indicates no usable reading exists for a sensor.
// Callers treat this as "sensor unknown" and skip the dependent rule.
var ErrUnavailable = errors.New("sensor: reading unavailable")

// defaultStaleAfter is how long a cached reading stays usable. A
// battery sensor that has gone quiet for longer than this must not
// influence watering decisions.
const defaultStaleAfter = 30 * time.Minute

// maxFlowSamples bounds the per-sensor flow sample history.
const maxFlowSamples = 288 // ~24h at 5-minute reporting

// Reader supplies live sensor readings to the decision engine.
type Reader interface {
	// Moisture returns the latest soil moisture percentage (0-100)
	// for a sensor, or ErrUnavailable when no fresh reading exists.
	Moisture(ref string) (float64, error)

	// FlowTotal returns the volume (litres) that passed through a
	// flow sensor since the given time, or ErrUnavailable.
	FlowTotal(ref string, since time.Time) (float64, error)
}

// Subscriber is the slice of the MQTT client the reader needs.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// reading is one cached moisture value.
type reading struct {
	value float64
	at    time.Time
}

// sample is one cumulative flow meter observation.
type sample struct {
	total float64
	at    time.Time
}

// MQTTReader caches sensor reports arriving over MQTT.
//
// Devices publish JSON state reports on their bridge topic
// (e.g. zigbee2mqtt/soil_front); the reader subscribes per watched
// device and keeps the last moisture value and a rolling window of
// cumulative flow totals.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type MQTTReader struct {
	client     Subscriber
	topics     mqtt.Topics
	staleAfter time.Duration

	mu       sync.RWMutex
	moisture map[string]reading
	flow     map[string][]sample

	// now is replaceable in tests.
	now func() time.Time
}

// NewMQTTReader creates a reader bound to an MQTT client.
func NewMQTTReader(client Subscriber, topics mqtt.Topics) *MQTTReader {
	return &MQTTReader{
		client:     client,
		topics:     topics,
		staleAfter: defaultStaleAfter,
		moisture:   make(map[string]reading),
		flow:       make(map[string][]sample),
		now:        time.Now,
	}
}

// Watch subscribes to a sensor device's state topic.
//
// Call once per configured moisture or flow sensor at startup and
// after config reloads. Watching the same device twice is harmless.
//
// Parameters:
//   - device: The bridge device name (e.g. "soil_front")
//
// Returns:
//   - error: If the MQTT subscription fails
func (r *MQTTReader) Watch(device string) error {
	topic := r.topics.DeviceState(device)
	err := r.client.Subscribe(topic, 1, func(_ string, payload []byte) error {
		return r.handleReport(device, payload)
	})
	if err != nil {
		return fmt.Errorf("watching sensor %s: %w", device, err)
	}
	return nil
}

// deviceReport is the subset of a bridge state report we care about.
// Different sensor firmwares use different keys for the same quantity.
type deviceReport struct {
	SoilMoisture  *float64 `json:"soil_moisture"`
	Moisture      *float64 `json:"moisture"`
	Humidity      *float64 `json:"humidity"`
	WaterConsumed *float64 `json:"water_consumed"`
	Volume        *float64 `json:"volume"`
}

// handleReport parses a device state report and updates the cache.
func (r *MQTTReader) handleReport(device string, payload []byte) error {
	var report deviceReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return fmt.Errorf("parsing report from %s: %w", device, err)
	}

	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if v := firstValue(report.SoilMoisture, report.Moisture, report.Humidity); v != nil {
		r.moisture[device] = reading{value: *v, at: now}
	}

	if v := firstValue(report.WaterConsumed, report.Volume); v != nil {
		samples := append(r.flow[device], sample{total: *v, at: now})
		if len(samples) > maxFlowSamples {
			samples = samples[len(samples)-maxFlowSamples:]
		}
		r.flow[device] = samples
	}

	return nil
}

// firstValue returns the first non-nil pointer.
func firstValue(candidates ...*float64) *float64 {
	for _, c := range candidates {
		if c != nil {
			return c
		}
	}
	return nil
}

// Moisture returns the latest fresh moisture reading for a sensor.
func (r *MQTTReader) Moisture(ref string) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rd, ok := r.moisture[ref]
	if !ok {
		return 0, ErrUnavailable
	}
	if r.now().Sub(rd.at) > r.staleAfter {
		return 0, ErrUnavailable
	}
	return rd.value, nil
}

// FlowTotal returns the volume recorded by a cumulative flow meter
// since the given time.
//
// The baseline is the last sample at or before `since`; when the
// history does not reach back that far, the earliest retained sample
// is used instead (undercounting rather than inventing volume). A
// meter reset mid-window yields the latest absolute total.
func (r *MQTTReader) FlowTotal(ref string, since time.Time) (float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	samples := r.flow[ref]
	if len(samples) == 0 {
		return 0, ErrUnavailable
	}

	latest := samples[len(samples)-1]

	baseline := samples[0]
	for _, s := range samples {
		if s.at.After(since) {
			break
		}
		baseline = s
	}

	delta := latest.total - baseline.total
	if delta < 0 {
		// Counter reset mid-window.
		return latest.total, nil
	}
	return delta, nil
}
