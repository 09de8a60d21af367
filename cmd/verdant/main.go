// Verdant Core - Smart Irrigation Controller
//
// This is the main entry point for the Verdant Core application, a
// weather-aware irrigation controller designed for:
//   - Unattended seasonal operation
//   - Offline-first decisions (weather failures never block watering)
//   - Open device integration over MQTT (Zigbee2MQTT valves and sensors)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/verdant-labs/verdant-core/migrations"

	"github.com/verdant-labs/verdant-core/internal/actuator"
	"github.com/verdant-labs/verdant-core/internal/command"
	"github.com/verdant-labs/verdant-core/internal/engine"
	"github.com/verdant-labs/verdant-core/internal/history"
	"github.com/verdant-labs/verdant-core/internal/infrastructure/config"
	"github.com/verdant-labs/verdant-core/internal/infrastructure/database"
	"github.com/verdant-labs/verdant-core/internal/infrastructure/influxdb"
	"github.com/verdant-labs/verdant-core/internal/infrastructure/logging"
	"github.com/verdant-labs/verdant-core/internal/infrastructure/mqtt"
	"github.com/verdant-labs/verdant-core/internal/scheduler"
	"github.com/verdant-labs/verdant-core/internal/sensor"
	"github.com/verdant-labs/verdant-core/internal/weather"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// telemetryInterval is how often moisture and weather readings are
// sampled into InfluxDB.
const telemetryInterval = 15 * time.Minute

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Verdant Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath, "zones", len(cfg.Zones))

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)

	// Open database and migrate
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Database.Path)

	// Run history repository, sealing anything a crash left open
	repo := history.NewSQLiteRepository(db.DB)
	if n, recoverErr := repo.RecoverInterrupted(ctx, time.Now()); recoverErr != nil {
		return fmt.Errorf("recovering interrupted runs: %w", recoverErr)
	} else if n > 0 {
		log.Warn("sealed runs interrupted by previous shutdown", "count", n)
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	topics := mqtt.Topics{DevicePrefix: cfg.MQTT.Topics.DevicePrefix}
	qos := byte(cfg.MQTT.QoS)

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Weather provider behind cache, retry and circuit breaker
	weatherSvc, providerName, err := buildWeather(cfg, log)
	if err != nil {
		return fmt.Errorf("initialising weather provider: %w", err)
	}

	// Sensor reader fed by device state topics
	sensors := sensor.NewMQTTReader(mqttClient, topics)
	if watchErr := watchZoneSensors(cfg, sensors); watchErr != nil {
		return fmt.Errorf("subscribing to sensor topics: %w", watchErr)
	}

	// Valve actuator
	valves := actuator.NewMQTTActuator(mqttClient, topics, qos)

	// Scheduler
	var weatherSource scheduler.WeatherSource
	if weatherSvc != nil {
		weatherSource = weatherSvc
	}
	notifier := &fanoutNotifier{influx: influxClient}
	sched, err := scheduler.New(scheduler.Deps{
		Config:   cfg,
		Engine:   engine.New(cfg.Weather),
		Weather:  weatherSource,
		Sensors:  sensors,
		Actuator: valves,
		History:  repo,
		Notifier: notifier,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	// MQTT command surface, also the scheduler's state publisher
	adapter := command.NewAdapter(sched, repo, mqttClient, topics, qos, log)
	notifier.adapter = adapter
	if startErr := adapter.Start(); startErr != nil {
		return fmt.Errorf("starting command adapter: %w", startErr)
	}
	log.Info("command adapter started", "topic", topics.SchedulerCommand())

	// Health checks before entering the loop
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// SIGHUP reloads configuration in place
	go watchReload(ctx, configPath, sched, sensors, weatherSvc, adapter, log)

	// Telemetry sampling into InfluxDB
	if influxClient != nil {
		go runTelemetry(ctx, cfg, sensors, weatherSvc, providerName, influxClient, log)
	}

	log.Info("initialisation complete, scheduler running")

	// Blocks until the shutdown signal; the scheduler seals in-flight
	// runs and closes valves on the way out.
	err = sched.Run(ctx)

	log.Info("Verdant Core stopped")
	return err
}

// getConfigPath returns the configuration file path.
// Uses VERDANT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("VERDANT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// buildWeather constructs the cached weather service, or nil when no
// decision rule needs the API.
func buildWeather(cfg *config.Config, log *logging.Logger) (*weather.Service, string, error) {
	if !cfg.Weather.RainForecast.Enabled && !cfg.Weather.RecentRain.Enabled {
		log.Info("weather rules disabled, scheduler will water on schedule alone")
		return nil, "", nil
	}

	provider, err := weather.NewProvider(cfg.Weather.Provider, weather.Options{
		APIKey:        cfg.Weather.APIKey,
		Latitude:      cfg.Site.Location.Latitude,
		Longitude:     cfg.Site.Location.Longitude,
		Units:         cfg.Weather.Units,
		ForecastHours: cfg.Weather.ForecastHours,
		RecentHours:   cfg.Weather.RecentHours,
	})
	if err != nil {
		return nil, "", err
	}

	log.Info("weather provider initialised",
		"provider", provider.Name(),
		"forecast_hours", cfg.Weather.ForecastHours,
		"recent_hours", cfg.Weather.RecentHours,
	)
	return weather.NewService(provider), provider.Name(), nil
}

// watchZoneSensors subscribes the reader to every configured moisture
// and flow sensor.
func watchZoneSensors(cfg *config.Config, sensors *sensor.MQTTReader) error {
	seen := make(map[string]bool)
	for _, z := range cfg.Zones {
		for _, ref := range []string{z.MoistureSensor, z.FlowSensor} {
			if ref == "" || seen[ref] {
				continue
			}
			if err := sensors.Watch(ref); err != nil {
				return fmt.Errorf("watching sensor %q: %w", ref, err)
			}
			seen[ref] = true
		}
	}
	return nil
}

// watchReload applies configuration changes on SIGHUP without a restart.
func watchReload(ctx context.Context, configPath string, sched *scheduler.Scheduler, sensors *sensor.MQTTReader, weatherSvc *weather.Service, adapter *command.Adapter, log *logging.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			log.Info("SIGHUP received, reloading configuration", "path", configPath)
			cfg, err := config.Load(configPath)
			if err != nil {
				log.Error("configuration reload failed, keeping previous", "error", err)
				continue
			}
			if err := sched.Reload(scheduler.Deps{Config: cfg, Engine: engine.New(cfg.Weather)}); err != nil {
				log.Error("applying reloaded configuration failed", "error", err)
				continue
			}
			if err := watchZoneSensors(cfg, sensors); err != nil {
				log.Warn("subscribing sensors for reloaded zones failed", "error", err)
			}
			if weatherSvc != nil {
				weatherSvc.Invalidate()
			}
			adapter.PublishState()
			log.Info("configuration reloaded", "zones", len(cfg.Zones))
		}
	}
}

// runTelemetry periodically samples moisture sensors and the weather
// snapshot into InfluxDB for dashboarding.
func runTelemetry(ctx context.Context, cfg *config.Config, sensors sensor.Reader, weatherSvc *weather.Service, providerName string, influx *influxdb.Client, log *logging.Logger) {
	ticker := time.NewTicker(telemetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, z := range cfg.Zones {
				if z.MoistureSensor == "" {
					continue
				}
				if pct, err := sensors.Moisture(z.MoistureSensor); err == nil {
					influx.WriteMoisture(z.Name, pct)
				}
			}
			if weatherSvc != nil {
				if snap, err := weatherSvc.Snapshot(ctx); err == nil && snap != nil {
					influx.WriteWeather(providerName, snap.ForecastRainMM, snap.ForecastChance, snap.RecentRainMM)
				} else if err != nil {
					log.Debug("telemetry weather fetch failed", "error", err)
				}
			}
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}

// fanoutNotifier mirrors scheduler transitions to the MQTT command
// adapter and run seals to InfluxDB.
type fanoutNotifier struct {
	adapter *command.Adapter
	influx  *influxdb.Client
}

// ZoneChanged implements scheduler.Notifier.
func (f *fanoutNotifier) ZoneChanged(name string, info scheduler.ZoneInfo) {
	if f.adapter != nil {
		f.adapter.ZoneChanged(name, info)
	}
}

// RunRecorded implements scheduler.Notifier.
func (f *fanoutNotifier) RunRecorded(rec history.Record) {
	if f.adapter != nil {
		f.adapter.RunRecorded(rec)
	}
	if f.influx != nil {
		f.influx.WriteZoneRun(rec.Zone, rec.Outcome, rec.Status,
			rec.PlannedMinutes, rec.ActualSeconds, rec.WaterLiters, rec.StartedAt)
	}
}
