package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/verdant-labs/verdant-core/internal/infrastructure/config"
)

func TestNewHonoursFormatAndOutput(t *testing.T) {
	cases := []config.LoggingConfig{
		{Level: "info", Format: "json", Output: "stdout"},
		{Level: "debug", Format: "text", Output: "stderr"},
		{Level: "warn", Format: "", Output: ""}, // defaults
	}

	for _, cfg := range cases {
		if logger := New(cfg, "1.0.0"); logger == nil {
			t.Fatalf("New(%+v) returned nil", cfg)
		}
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
		"":        slog.LevelInfo,
	}

	for input, want := range cases {
		if got := parseLevel(input); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestWithReturnsDistinctChild(t *testing.T) {
	logger := Default()
	child := logger.With("component", "scheduler")

	if child == nil {
		t.Fatal("With() returned nil")
	}
	if child == logger {
		t.Error("With() returned the parent logger")
	}
}

// Lines must carry the service and version attributes so aggregated logs
// can be filtered per controller build.
func TestDefaultFieldsAppearInOutput(t *testing.T) {
	var buf bytes.Buffer
	handler := newHandler(config.LoggingConfig{Level: "info"}, &buf).WithAttrs([]slog.Attr{
		slog.String("service", "verdant"),
		slog.String("version", "test"),
	})
	logger := &Logger{Logger: slog.New(handler)}

	logger.Info("zone run started", "zone", "front_lawn")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}

	for key, want := range map[string]string{
		"service": "verdant",
		"version": "test",
		"msg":     "zone run started",
		"zone":    "front_lawn",
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %q", key, entry[key], want)
		}
	}
}
