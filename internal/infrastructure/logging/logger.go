package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/verdant-labs/verdant-core/internal/infrastructure/config"
)

// Logger is a thin wrapper over slog.Logger. Every line carries the
// service name and build version so logs from several controllers can be
// aggregated and still tell apart which build emitted what.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the YAML logging section. Format chooses the
// handler (json unless "text" is asked for), output chooses the stream
// (stdout unless "stderr"), and level filters in the handler.
func New(cfg config.LoggingConfig, version string) *Logger {
	handler := newHandler(cfg, destination(cfg.Output)).WithAttrs([]slog.Attr{
		slog.String("service", "verdant"),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// Default is the bootstrap logger used for the window between process
// start and config load, when the real logging section is not known yet.
// JSON to stdout at info, version "dev".
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev")
}

// With returns a child logger carrying extra default attributes, typically
// a component tag:
//
//	log := logger.With("component", "scheduler")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func destination(output string) io.Writer {
	if strings.EqualFold(output, "stderr") {
		return os.Stderr
	}
	return os.Stdout
}

func newHandler(cfg config.LoggingConfig, w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// parseLevel maps a config level string onto slog, case-insensitively.
// Unrecognised values fall back to info rather than failing startup.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
