package influxdb

import "errors"

// Telemetry is optional equipment; callers usually treat ErrDisabled as
// "run without it" rather than a failure:
//
//	if errors.Is(err, influxdb.ErrDisabled) {
//		log.Info("telemetry disabled")
//	}
var (
	// ErrNotConnected means the client never established a session.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed wraps a failed startup ping.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled reports that the config section is switched off.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
