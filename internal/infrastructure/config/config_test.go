package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ─── Test Helpers ───────────────────────────────────────────────────────────

// writeConfig writes YAML content to a temp file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

const minimalConfig = `
site:
  id: test-site
  timezone: Europe/London
  location:
    latitude: 51.5
    longitude: -0.12
weather:
  api_key: abc123
zones:
  - name: front_lawn
    valve: valve_front
    zone_type: lawn
    schedule: "06:00"
    days: [mon, wed, fri]
`

// ─── Load ───────────────────────────────────────────────────────────────────

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("site.id = %q, want %q", cfg.Site.ID, "test-site")
	}
	if len(cfg.Zones) != 1 {
		t.Fatalf("got %d zones, want 1", len(cfg.Zones))
	}
	if cfg.Zones[0].Name != "front_lawn" {
		t.Errorf("zone name = %q, want %q", cfg.Zones[0].Name, "front_lawn")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("mqtt port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.Weather.RainForecast.ThresholdMM != 5.0 {
		t.Errorf("rain forecast threshold = %v, want 5.0", cfg.Weather.RainForecast.ThresholdMM)
	}
	if cfg.Weather.RainForecast.SkipPercentage != 70 {
		t.Errorf("skip percentage = %v, want 70", cfg.Weather.RainForecast.SkipPercentage)
	}
	if cfg.Weather.RecentRain.Compensation.Ratio != 0.5 {
		t.Errorf("compensation ratio = %v, want 0.5", cfg.Weather.RecentRain.Compensation.Ratio)
	}
	if cfg.Scheduler.FlowRateAssumption != 15.0 {
		t.Errorf("flow rate assumption = %v, want 15.0", cfg.Scheduler.FlowRateAssumption)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "site: [unclosed")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VERDANT_WEATHER_API_KEY", "env-key")
	t.Setenv("VERDANT_MQTT_HOST", "broker.example.com")

	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Weather.APIKey != "env-key" {
		t.Errorf("api key = %q, want env override %q", cfg.Weather.APIKey, "env-key")
	}
	if cfg.MQTT.Broker.Host != "broker.example.com" {
		t.Errorf("mqtt host = %q, want env override", cfg.MQTT.Broker.Host)
	}
}

// ─── Validate ───────────────────────────────────────────────────────────────

func TestValidateRejectsBadTimezone(t *testing.T) {
	path := writeConfig(t, strings.Replace(minimalConfig, "Europe/London", "Mars/Olympus", 1))

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "timezone") {
		t.Fatalf("expected timezone validation error, got: %v", err)
	}
}

func TestValidateRejectsBadLatitude(t *testing.T) {
	path := writeConfig(t, strings.Replace(minimalConfig, "latitude: 51.5", "latitude: 123.4", 1))

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "latitude") {
		t.Fatalf("expected latitude validation error, got: %v", err)
	}
}

func TestValidateRequiresAPIKeyWhenRulesEnabled(t *testing.T) {
	path := writeConfig(t, strings.Replace(minimalConfig, "  api_key: abc123\n", "", 1))

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("expected api_key validation error, got: %v", err)
	}
}

func TestValidateAllowsMissingKeyWhenRulesDisabled(t *testing.T) {
	content := strings.Replace(minimalConfig, "  api_key: abc123\n", `  rain_forecast:
    enabled: false
  recent_rain:
    enabled: false
`, 1)
	path := writeConfig(t, content)

	if _, err := Load(path); err != nil {
		t.Fatalf("Load returned error with weather rules disabled: %v", err)
	}
}

func TestValidateRejectsBadCompensationRatio(t *testing.T) {
	content := minimalConfig + `
`
	content = strings.Replace(content, "weather:\n  api_key: abc123", `weather:
  api_key: abc123
  recent_rain:
    compensation:
      ratio: 1.5`, 1)
	path := writeConfig(t, content)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "ratio") {
		t.Fatalf("expected ratio validation error, got: %v", err)
	}
}

func TestValidateRejectsDuplicateZoneNames(t *testing.T) {
	content := minimalConfig + `  - name: front_lawn
    valve: valve_other
    zone_type: lawn
    schedule: "07:00"
    days: [tue]
`
	path := writeConfig(t, content)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "duplicate") {
		t.Fatalf("expected duplicate zone error, got: %v", err)
	}
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func TestLocationResolvesTimezone(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if got := cfg.Location().String(); got != "Europe/London" {
		t.Errorf("Location() = %q, want Europe/London", got)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.GetBetweenZoneDelay(); got != 30*time.Second {
		t.Errorf("GetBetweenZoneDelay = %v, want 30s", got)
	}
	if got := cfg.GetTestModeDuration(); got != time.Minute {
		t.Errorf("GetTestModeDuration = %v, want 1m", got)
	}
	if got := cfg.GetGraceMargin(); got != time.Minute {
		t.Errorf("GetGraceMargin = %v, want 60s", got)
	}
}
