package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/verdant-labs/verdant-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 // seconds
)

// Client ships irrigation telemetry (moisture readings, weather snapshots,
// zone run outcomes) to InfluxDB. Writes go through the non-blocking batch
// API, so a slow or absent InfluxDB never stalls a watering run; failures
// surface asynchronously through the SetOnError callback.
//
// Safe for concurrent use. A zero Client ignores all writes, which lets
// the telemetry path run unconditionally whether or not InfluxDB is
// configured.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig

	up atomic.Bool

	mu      sync.Mutex
	onError func(err error)
}

// Connect builds a client from the influxdb section of config.yaml and
// pings the server to prove the URL and token work before any telemetry
// is buffered. Returns ErrDisabled when the section is switched off so
// callers can treat that case as "run without telemetry".
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = fallbackBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = fallbackFlushInterval
	}

	// #nosec G115 -- both values forced positive above
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batch)).
			SetFlushInterval(uint(flush)*1000)) //nolint:mnd // seconds to ms

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	c := &Client{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:      cfg,
	}
	c.up.Store(true)

	go c.forwardWriteErrors(c.writeAPI.Errors())

	return c, nil
}

// forwardWriteErrors drains the async error channel for the life of the
// write API, handing each failure to the registered callback.
func (c *Client) forwardWriteErrors(errs <-chan error) {
	for err := range errs {
		c.mu.Lock()
		notify := c.onError
		c.mu.Unlock()
		if notify != nil {
			notify(err)
		}
	}
}

// SetOnError registers a callback for asynchronous write failures,
// typically wired to the logger at startup.
func (c *Client) SetOnError(callback func(err error)) {
	c.mu.Lock()
	c.onError = callback
	c.mu.Unlock()
}

// IsConnected reports the last known state. Write helpers consult this
// and silently drop points when the client never connected.
func (c *Client) IsConnected() bool {
	return c.up.Load()
}

// HealthCheck pings the server with a short timeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(pingCtx)
	if err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check failed: server not healthy")
	}
	return nil
}

// Flush pushes buffered points out immediately. Used before shutdown so
// the tail of a run's telemetry is not lost with the process.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending points and releases the client. Safe on a zero
// Client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	c.up.Store(false)
	c.writeAPI.Flush()
	c.client.Close()
	return nil
}
