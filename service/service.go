// Package service wires the metrics registry, Graphite reporter, log event
// counter, and index gauges into the host lifecycle.
//
// Creation order on Start is registry, reporter, log counter, gauges;
// Close tears down in reverse. Stop is deliberately a no-op: the host may
// cycle start/stop during recovery, and teardown is deferred to Close.
// Every transition is guarded so repeated lifecycle calls are absorbed as
// no-ops rather than surfaced as errors.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bodgit/elasticsearch-metrics/config"
	"github.com/bodgit/elasticsearch-metrics/errors"
	"github.com/bodgit/elasticsearch-metrics/graphite"
	"github.com/bodgit/elasticsearch-metrics/logcounter"
	"github.com/bodgit/elasticsearch-metrics/metric"
	"github.com/bodgit/elasticsearch-metrics/stats"
)

// MetricsService orchestrates the metrics subsystem lifecycle
type MetricsService struct {
	cfg    *config.Config
	source stats.Source
	logger *slog.Logger

	reporterOpts []graphite.Option

	mu        sync.Mutex
	started   bool
	closed    bool
	registry  *metric.MetricsRegistry
	reporter  *graphite.Reporter
	logHandle *logcounter.Handle
}

// Option is a functional option for configuring MetricsService
type Option func(*MetricsService)

// WithSource overrides the statistics source built from the configuration
func WithSource(source stats.Source) Option {
	return func(s *MetricsService) {
		s.source = source
	}
}

// WithReporterOptions forwards options to the Graphite reporter
func WithReporterOptions(opts ...graphite.Option) Option {
	return func(s *MetricsService) {
		s.reporterOpts = opts
	}
}

// NewMetricsService creates the service from a validated configuration
func NewMetricsService(cfg *config.Config, logger *slog.Logger, opts ...Option) *MetricsService {
	if logger == nil {
		logger = slog.Default()
	}

	service := &MetricsService{
		cfg:    cfg,
		logger: logger.With("component", "MetricsService"),
	}

	for _, opt := range opts {
		opt(service)
	}

	if service.source == nil {
		var sourceOpts []stats.Option
		if cfg.Elasticsearch.Username != "" {
			sourceOpts = append(sourceOpts,
				stats.WithBasicAuth(cfg.Elasticsearch.Username, cfg.Elasticsearch.Password))
		}
		service.source = stats.NewHTTPSource(cfg.Elasticsearch.Address, sourceOpts...)
	}

	return service
}

// Registry returns the active metrics registry, or nil before Start
func (s *MetricsService) Registry() *metric.MetricsRegistry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry
}

// Start creates the registry, reporter, log counter, and index gauges.
// A misconfigured reporter disables the reporting feature only; the rest
// of the subsystem still comes up and the host continues. Starting an
// already started or closed service is a no-op.
func (s *MetricsService) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.closed {
		s.logger.Warn("Ignoring start request",
			"started", s.started, "closed", s.closed)
		return nil
	}

	s.registry = metric.NewMetricsRegistry(s.logger)

	s.createReporter()
	s.createLogCounter()
	s.createIndexGauges()

	s.started = true
	return nil
}

// createReporter builds and starts the Graphite reporter when reporting is
// enabled
func (s *MetricsService) createReporter() {
	if !s.cfg.Enabled {
		s.logger.Info("Graphite reporting disabled")
		return
	}

	reporter, err := graphite.NewReporter(s.registry, graphite.Config{
		Hostname: s.cfg.Graphite.Hostname,
		Port:     s.cfg.Graphite.Port,
		Interval: s.cfg.Graphite.ReportInterval,
		Prefix:   s.cfg.Graphite.Prefix,
	}, s.logger, s.reporterOpts...)
	if err != nil {
		// Reporting feature only; everything else still starts
		s.logger.Error("Could not create Graphite reporter, reporting disabled", "error", err)
		return
	}

	s.reporter = reporter
	s.reporter.Start()
}

// createLogCounter attaches the log event counter to the process-wide
// logging pipeline
func (s *MetricsService) createLogCounter() {
	handle, err := logcounter.Attach(s.registry)
	if err != nil {
		s.logger.Error("Could not attach log event counter", "error", err)
		return
	}
	s.logHandle = handle
}

// createIndexGauges registers one document-count gauge per configured index
func (s *MetricsService) createIndexGauges() {
	for _, index := range s.cfg.Stats.Indices {
		s.logger.Debug("Enabling index metrics", "index", index)

		gauge := stats.NewDocumentCountGauge(s.source, index, s.cfg.Elasticsearch.QueryTimeout, s.logger)
		if err := s.registry.RegisterGaugeFunc("index.document_count."+index, gauge); err != nil {
			if errors.IsInvalid(err) {
				s.logger.Warn("Skipping duplicate index gauge", "index", index, "error", err)
				continue
			}
			s.logger.Error("Could not register index gauge", "index", index, "error", err)
		}
	}
}

// Stop intentionally defers teardown to Close. The host may invoke
// stop/start cycles during recovery and the metrics subsystem survives
// them.
func (s *MetricsService) Stop(_ time.Duration) error {
	s.logger.Debug("Stop requested, teardown deferred to Close")
	return nil
}

// Close tears everything down in reverse creation order: reporter, log
// counter, registry. It is idempotent and safe to call before Start.
func (s *MetricsService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.reporter != nil {
		s.reporter.Shutdown()
		s.reporter = nil
	}

	if s.logHandle != nil {
		s.logHandle.Detach()
		s.logHandle = nil
	}

	if s.registry != nil {
		s.registry.Shutdown()
		s.registry = nil
	}

	s.started = false
	return nil
}
