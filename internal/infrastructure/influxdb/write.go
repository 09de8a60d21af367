package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteZoneRun records a completed (or skipped) zone run.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - zone: Zone name (e.g., "front_lawn")
//   - outcome: Engine outcome ("run", "reduced", "skip")
//   - status: Final run status ("completed", "aborted", "skipped")
//   - plannedMinutes: Duration the engine decided on
//   - actualSeconds: Elapsed valve-open time
//   - waterLiters: Measured or estimated water usage
//   - startedAt: When the run started
//
// Example:
//
//	client.WriteZoneRun("front_lawn", "run", "completed", 20, 1200, 300, startedAt)
func (c *Client) WriteZoneRun(zone, outcome, status string, plannedMinutes float64, actualSeconds int, waterLiters float64, startedAt time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"zone_run",
		map[string]string{
			"zone":    zone,
			"outcome": outcome,
			"status":  status,
		},
		map[string]interface{}{
			"planned_minutes": plannedMinutes,
			"actual_seconds":  actualSeconds,
			"water_liters":    waterLiters,
		},
		startedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WriteMoisture records a soil moisture reading for a zone.
//
// Parameters:
//   - zone: Zone name
//   - percent: Moisture level (0-100)
func (c *Client) WriteMoisture(zone string, percent float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"soil_moisture",
		map[string]string{
			"zone": zone,
		},
		map[string]interface{}{
			"percent": percent,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteWeather records the weather snapshot used for a scheduling decision.
//
// Parameters:
//   - provider: Weather provider name
//   - forecastMM: Forecast rain amount over the look-ahead window
//   - probability: Precipitation probability (0-100)
//   - recentMM: Rainfall over the look-back window
func (c *Client) WriteWeather(provider string, forecastMM, probability, recentMM float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"weather",
		map[string]string{
			"provider": provider,
		},
		map[string]interface{}{
			"forecast_mm":    forecastMM,
			"probability":    probability,
			"recent_rain_mm": recentMM,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
