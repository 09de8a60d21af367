package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/verdant-labs/verdant-core/internal/zone"
)

// Config is the root configuration structure for Verdant Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Weather   WeatherConfig   `yaml:"weather"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Zones     []zone.Config   `yaml:"zones"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig contains the geographic coordinates used for weather lookups.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Topics    MQTTTopicsConfig    `yaml:"topics"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// MQTTTopicsConfig contains the topic prefix for the device integration
// (valves and sensors). Defaults to the Zigbee2MQTT base topic.
type MQTTTopicsConfig struct {
	DevicePrefix string `yaml:"device_prefix"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// WeatherConfig contains the weather provider selection and the
// irrigation decision thresholds.
type WeatherConfig struct {
	// Provider selects the weather API: "openweathermap" or "weatherapi".
	Provider string `yaml:"provider"`

	// APIKey authenticates against the selected provider.
	APIKey string `yaml:"api_key"`

	// Units is "metric" or "imperial". Rain amounts are converted to the
	// configured unit before threshold comparison.
	Units string `yaml:"units"`

	// ForecastHours is the look-ahead window for forecast rain.
	ForecastHours int `yaml:"forecast_hours"`

	// RecentHours is the look-back window for recent rainfall.
	RecentHours int `yaml:"recent_hours"`

	RainForecast RainForecastConfig `yaml:"rain_forecast"`
	RecentRain   RecentRainConfig   `yaml:"recent_rain"`
	SoilMoisture SoilMoistureConfig `yaml:"soil_moisture"`
}

// RainForecastConfig gates the forecast-skip rule.
//
// A zone is skipped only when the forecast amount AND the precipitation
// probability both reach their thresholds. The two gates are ANDed so a
// near-certain light drizzle does not cancel watering on its own.
type RainForecastConfig struct {
	Enabled        bool    `yaml:"enabled"`
	ThresholdMM    float64 `yaml:"threshold_mm"`
	SkipPercentage float64 `yaml:"skip_percentage"`
}

// RecentRainConfig gates the recent-rainfall rule.
type RecentRainConfig struct {
	Enabled      bool               `yaml:"enabled"`
	ThresholdMM  float64            `yaml:"threshold_mm"`
	Compensation CompensationConfig `yaml:"compensation"`
}

// CompensationConfig turns a recent-rain skip into a shortened run.
// Ratio is the fraction of the configured duration removed (0-1).
type CompensationConfig struct {
	Enabled bool    `yaml:"enabled"`
	Ratio   float64 `yaml:"ratio"`
}

// SoilMoistureConfig gates the moisture-skip rule.
type SoilMoistureConfig struct {
	Enabled bool `yaml:"enabled"`
}

// SchedulerConfig contains zone execution settings.
type SchedulerConfig struct {
	// BetweenZoneDelay is the pause between sequential zone runs (seconds).
	// Zones never actuate concurrently; the delay lets supply pressure
	// recover between valves.
	BetweenZoneDelay int `yaml:"between_zone_delay"`

	// TestModeDuration is the fixed per-zone run length in test mode (minutes).
	TestModeDuration int `yaml:"test_mode_duration"`

	// GraceMargin is added to a run's planned duration to form the
	// actuation watchdog timeout (seconds).
	GraceMargin int `yaml:"grace_margin"`

	// FlowRateAssumption is the assumed valve flow in litres per minute,
	// used for water accounting when a zone has no flow sensor.
	FlowRateAssumption float64 `yaml:"flow_rate_assumption"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: VERDANT_SECTION_KEY
// For example: VERDANT_DATABASE_PATH, VERDANT_WEATHER_API_KEY
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
// The decision thresholds mirror a conservative residential setup:
// skip at 5mm/70% forecast rain, compensate above 10mm recent rain.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "Verdant",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/verdant.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "verdant-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			Topics: MQTTTopicsConfig{
				DevicePrefix: "zigbee2mqtt",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Weather: WeatherConfig{
			Provider:      "openweathermap",
			Units:         "metric",
			ForecastHours: 24,
			RecentHours:   48,
			RainForecast: RainForecastConfig{
				Enabled:        true,
				ThresholdMM:    5.0,
				SkipPercentage: 70,
			},
			RecentRain: RecentRainConfig{
				Enabled:     true,
				ThresholdMM: 10.0,
				Compensation: CompensationConfig{
					Enabled: true,
					Ratio:   0.5,
				},
			},
			SoilMoisture: SoilMoistureConfig{
				Enabled: true,
			},
		},
		Scheduler: SchedulerConfig{
			BetweenZoneDelay:   30,
			TestModeDuration:   1,
			GraceMargin:        60,
			FlowRateAssumption: 15.0,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: VERDANT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("VERDANT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("VERDANT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("VERDANT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("VERDANT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// Weather - the API key is a credential, keep it out of the file
	if v := os.Getenv("VERDANT_WEATHER_API_KEY"); v != "" {
		cfg.Weather.APIKey = v
	}

	// InfluxDB
	if v := os.Getenv("VERDANT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// weatherProviders lists the supported weather provider identifiers.
var weatherProviders = map[string]bool{
	"openweathermap": true,
	"weatherapi":     true,
}

// Validate checks the configuration for errors.
//
// An invalid configuration is a hard startup failure: the controller
// never runs with a partially valid zone list.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Location.Latitude < -90 || c.Site.Location.Latitude > 90 {
		errs = append(errs, "site.location.latitude must be between -90 and 90")
	}
	if c.Site.Location.Longitude < -180 || c.Site.Location.Longitude > 180 {
		errs = append(errs, "site.location.longitude must be between -180 and 180")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA timezone", c.Site.Timezone))
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Topics.DevicePrefix == "" {
		errs = append(errs, "mqtt.topics.device_prefix is required")
	}

	// Weather validation
	if !weatherProviders[strings.ToLower(c.Weather.Provider)] {
		errs = append(errs, fmt.Sprintf("weather.provider %q is not supported", c.Weather.Provider))
	}
	if c.Weather.Units != "metric" && c.Weather.Units != "imperial" {
		errs = append(errs, "weather.units must be \"metric\" or \"imperial\"")
	}
	if weatherFeaturesEnabled(c.Weather) && c.Weather.APIKey == "" {
		errs = append(errs, "weather.api_key is required when a weather rule is enabled (set VERDANT_WEATHER_API_KEY)")
	}
	if c.Weather.ForecastHours <= 0 {
		errs = append(errs, "weather.forecast_hours must be positive")
	}
	if c.Weather.RecentHours <= 0 {
		errs = append(errs, "weather.recent_hours must be positive")
	}
	if c.Weather.RainForecast.ThresholdMM < 0 {
		errs = append(errs, "weather.rain_forecast.threshold_mm must not be negative")
	}
	if p := c.Weather.RainForecast.SkipPercentage; p < 0 || p > 100 {
		errs = append(errs, "weather.rain_forecast.skip_percentage must be 0-100")
	}
	if c.Weather.RecentRain.ThresholdMM < 0 {
		errs = append(errs, "weather.recent_rain.threshold_mm must not be negative")
	}
	if r := c.Weather.RecentRain.Compensation.Ratio; r < 0 || r > 1 {
		errs = append(errs, "weather.recent_rain.compensation.ratio must be 0-1")
	}

	// Scheduler validation
	if c.Scheduler.BetweenZoneDelay < 0 {
		errs = append(errs, "scheduler.between_zone_delay must not be negative")
	}
	if c.Scheduler.TestModeDuration < 1 {
		errs = append(errs, "scheduler.test_mode_duration must be at least 1 minute")
	}
	if c.Scheduler.GraceMargin < 0 {
		errs = append(errs, "scheduler.grace_margin must not be negative")
	}
	if c.Scheduler.FlowRateAssumption <= 0 {
		errs = append(errs, "scheduler.flow_rate_assumption must be positive")
	}

	// Zone validation - a single bad zone rejects the whole config
	if err := zone.ValidateAll(c.Zones); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// weatherFeaturesEnabled reports whether any rule needs the weather API.
func weatherFeaturesEnabled(w WeatherConfig) bool {
	return w.RainForecast.Enabled || w.RecentRain.Enabled
}

// Location returns the configured site timezone.
// Validate guarantees the name resolves; UTC is the safety fallback.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// GetBetweenZoneDelay returns the inter-zone pause as a Duration.
func (c *Config) GetBetweenZoneDelay() time.Duration {
	return time.Duration(c.Scheduler.BetweenZoneDelay) * time.Second
}

// GetTestModeDuration returns the test-mode run length as a Duration.
func (c *Config) GetTestModeDuration() time.Duration {
	return time.Duration(c.Scheduler.TestModeDuration) * time.Minute
}

// GetGraceMargin returns the actuation watchdog margin as a Duration.
func (c *Config) GetGraceMargin() time.Duration {
	return time.Duration(c.Scheduler.GraceMargin) * time.Second
}
