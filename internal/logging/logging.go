// Package logging builds the engine's structured logger. Logs go to a
// rotating file under .pairflow/logs so agent panes and humans share one
// trail; --verbose mirrors them to stderr.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvLevel overrides the configured log level.
const EnvLevel = "PAIRFLOW_LOG_LEVEL"

// Setup returns a logger writing to logFile with rotation. verbose mirrors
// records to stderr. An empty logFile logs to stderr only, which keeps
// commands that run before repo resolution from failing on a missing path.
func Setup(logFile, level string, verbose bool) *slog.Logger {
	lvl := ParseLevel(level)
	if env := os.Getenv(EnvLevel); env != "" {
		lvl = ParseLevel(env)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if logFile == "" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}

	// lumberjack creates the file lazily; the directory must exist first.
	_ = os.MkdirAll(filepath.Dir(logFile), 0o755)
	var w io.Writer = &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     30, // days
	}
	if verbose {
		w = io.MultiWriter(w, os.Stderr)
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything. Used by tests and by
// read-only paths that must stay silent.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
