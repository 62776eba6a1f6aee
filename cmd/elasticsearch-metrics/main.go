// Package main implements the entry point for the elasticsearch-metrics
// daemon. It collects per-index document counts and process log event
// counters and periodically ships them to a Graphite endpoint.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/bodgit/elasticsearch-metrics/config"
	"github.com/bodgit/elasticsearch-metrics/service"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "elasticsearch-metrics"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()

	if cliCfg.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}

	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfiguration(cliCfg)
	if err != nil {
		return err
	}

	if cliCfg.Validate {
		logger.Info("Configuration is valid")
		return nil
	}

	logger.Debug("Loaded configuration", "config", cfg.Redacted())

	svc := service.NewMetricsService(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start metrics service: %w", err)
	}

	logger.Info("Metrics service started",
		"reporting_enabled", cfg.Enabled,
		"indices", cfg.Stats.Indices)

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	if err := svc.Stop(cliCfg.ShutdownTimeout); err != nil {
		logger.Warn("Stop reported an error", "error", err)
	}

	return svc.Close()
}

// loadConfiguration loads the config file when one was given, otherwise
// builds the configuration from defaults and environment overrides.
func loadConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()

	if cliCfg.ConfigPath != "" {
		return loader.LoadFile(cliCfg.ConfigPath)
	}
	return loader.Load()
}
