// Package influxdb provides time-series telemetry for Verdant Core.
//
// This package manages:
//   - Connection to InfluxDB v2 with token authentication
//   - Non-blocking batched writes for run, moisture, and weather metrics
//   - Health monitoring
//
// Telemetry is optional. When disabled in config, Connect returns
// ErrDisabled and the controller runs without time-series metrics -
// the SQLite run history remains the system of record either way.
//
// # Measurements
//
//   - zone_run: one point per finished run (planned vs actual, water used)
//   - soil_moisture: moisture readings sampled at decision time
//   - weather: the snapshot each scheduling decision was based on
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    client = nil // run without telemetry
//	}
//
//	if client != nil {
//	    client.WriteZoneRun("front_lawn", "run", "completed", 20, 1200, 300, startedAt)
//	}
package influxdb
