package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/bodgit/elasticsearch-metrics/logcounter"
)

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler

	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug",
	}

	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	// Observation point for the log event counter; every logger derived
	// from this one reports to it once the counter attaches.
	return slog.New(logcounter.Instrument(handler)).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
}
