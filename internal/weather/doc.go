// Package weather fetches the rainfall data the irrigation engine
// decides on.
//
// Two providers are supported: OpenWeatherMap and WeatherAPI. Both
// produce the same Snapshot: total forecast rain over a look-ahead
// window, the peak precipitation probability in that window, and
// rainfall over a look-back window.
//
// The Service wrapper adds the resilience the raw providers lack:
// snapshots are cached briefly, fetches retry with exponential
// backoff, and a circuit breaker stops calling an API that keeps
// failing. When no snapshot can be produced the scheduler fails open
// and waters anyway - a missed watering harms plants, a wasted one
// only costs water.
package weather
