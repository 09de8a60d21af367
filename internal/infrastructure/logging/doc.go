// Package logging wraps log/slog with the controller's conventions:
// structured key/value output, a service and version attribute on every
// line, and level filtering driven by the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// JSON suits a controller feeding its logs to an aggregator; text is for
// watching a terminal during development. Components take a child logger
// tagged with their name:
//
//	log := logger.With("component", "scheduler")
//	log.Info("zone run started", "zone", zone, "minutes", minutes)
//
// Nothing here redacts values, so callers must not log broker passwords,
// weather API keys or InfluxDB tokens.
package logging
