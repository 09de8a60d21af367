package influxdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/verdant-labs/verdant-core/internal/infrastructure/config"
)

func TestConnectDisabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestCloseNilClient(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := &Client{}

	err := c.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

// Write helpers must be safe no-ops when disconnected; the scheduler
// calls them unconditionally.
func TestWritesIgnoredWhenDisconnected(t *testing.T) {
	c := &Client{}

	c.WriteZoneRun("front_lawn", "run", "completed", 20, 1200, 300, time.Now())
	c.WriteMoisture("front_lawn", 42.5)
	c.WriteWeather("openweathermap", 3.2, 60, 1.1)
	c.WritePoint("custom", map[string]string{"k": "v"}, map[string]interface{}{"f": 1.0})
	c.Flush()
}
