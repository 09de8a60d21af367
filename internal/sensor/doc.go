// Package sensor provides cached access to soil moisture and water
// flow readings arriving over MQTT.
//
// Sensors are push-based: devices publish state reports on their
// bridge topic whenever they wake. The reader caches the last value
// per device and answers engine queries from that cache. Readings
// older than the staleness window are treated as unavailable rather
// than served - an unavailable reading skips the dependent rule, a
// stale one could skip a needed watering.
package sensor
