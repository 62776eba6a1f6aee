// Package graphite periodically ships every metric registered in the
// metrics registry to a Graphite endpoint using the plaintext line
// protocol.
//
// A Reporter owns one background timer goroutine. On each tick it
// snapshots the registry, opens a TCP connection to the configured
// endpoint, writes one line per sample, and closes the connection. A
// failed tick is logged and abandoned; the next scheduled tick is the only
// retry mechanism, and no data from a failed tick is buffered or resent.
package graphite

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/bodgit/elasticsearch-metrics/errors"
	"github.com/bodgit/elasticsearch-metrics/metric"
)

const (
	dialTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second

	// shutdownGrace bounds how long Shutdown waits for an in-flight
	// tick before giving up on it
	shutdownGrace = 15 * time.Second
)

// Config holds the immutable reporter settings
type Config struct {
	Hostname string
	Port     int
	Interval time.Duration
	Prefix   string
}

// state tracks the reporter lifecycle; Stopped is terminal
type state int

const (
	stateUninitialized state = iota
	stateRunning
	stateStopped
)

// String returns a string representation of the reporter state
func (s state) String() string {
	switch s {
	case stateUninitialized:
		return "uninitialized"
	case stateRunning:
		return "running"
	case stateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Reporter periodically transmits registry snapshots to Graphite
type Reporter struct {
	registry *metric.MetricsRegistry
	config   Config
	logger   *slog.Logger
	clock    clock.Clock

	mu     sync.Mutex
	state  state
	stopCh chan struct{}
	doneCh chan struct{}
}

// Option is a functional option for configuring a Reporter
type Option func(*Reporter)

// WithClock overrides the wall clock, letting tests drive ticks
func WithClock(c clock.Clock) Option {
	return func(r *Reporter) {
		r.clock = c
	}
}

// NewReporter validates the configuration and creates a reporter
// subscribed to the registry. A missing hostname is an
// invalid-configuration error; callers treat it as disabling the
// reporting feature, not as fatal to the host.
func NewReporter(registry *metric.MetricsRegistry, cfg Config, logger *slog.Logger, opts ...Option) (*Reporter, error) {
	if cfg.Hostname == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig,
			"Reporter", "NewReporter", "graphite hostname not specified")
	}
	if cfg.Port == 0 {
		cfg.Port = 2003
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}

	if logger == nil {
		logger = slog.Default()
	}

	reporter := &Reporter{
		registry: registry,
		config:   cfg,
		logger:   logger.With("component", "Reporter"),
		clock:    clock.New(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	for _, opt := range opts {
		opt(reporter)
	}

	return reporter, nil
}

// Start spawns the background timer goroutine. Starting a running or
// stopped reporter is absorbed as a no-op.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != stateUninitialized {
		r.logger.Warn("Ignoring start request", "state", r.state.String())
		return
	}
	r.state = stateRunning

	session := uuid.NewString()
	r.logger = r.logger.With("session", session)
	r.logger.Info("Starting Graphite reporter",
		"hostname", r.config.Hostname,
		"port", r.config.Port,
		"prefix", r.config.Prefix,
		"interval", r.config.Interval)

	go r.run()
}

// run is the reporter's timer loop
func (r *Reporter) run() {
	defer close(r.doneCh)

	ticker := r.clock.Ticker(r.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := r.report(); err != nil {
				// Tick abandoned; the next tick retries
				r.logger.Warn("Report tick failed", "error", err)
			}
		}
	}
}

// report performs one tick: snapshot, connect, transmit, close
func (r *Reporter) report() error {
	families, err := r.registry.Gather()
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(r.config.Hostname, fmt.Sprintf("%d", r.config.Port))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return errors.WrapTransient(err, "Reporter", "report", "dial graphite")
	}
	defer func() { _ = conn.Close() }()

	// A stalled consumer must not wedge the timer loop
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return errors.WrapTransient(err, "Reporter", "report", "set write deadline")
	}

	writer := bufio.NewWriter(conn)
	lines, err := writeFamilies(writer, r.config.Prefix, families, r.clock.Now().Unix())
	if err != nil {
		return errors.WrapTransient(err, "Reporter", "report", "write metric lines")
	}
	if err := writer.Flush(); err != nil {
		return errors.WrapTransient(err, "Reporter", "report", "flush metric lines")
	}

	r.logger.Debug("Reported metrics", "lines", lines)
	return nil
}

// Shutdown cancels the timer and waits, within a bounded grace period,
// for an in-flight tick to finish. It is idempotent and safe to call on a
// reporter that was never started.
func (r *Reporter) Shutdown() {
	r.mu.Lock()

	switch r.state {
	case stateStopped:
		r.mu.Unlock()
		return
	case stateUninitialized:
		// Never started: no goroutine to wait for
		r.state = stateStopped
		r.mu.Unlock()
		return
	case stateRunning:
		r.state = stateStopped
		close(r.stopCh)
	}
	r.mu.Unlock()

	select {
	case <-r.doneCh:
		r.logger.Info("Graphite reporter stopped")
	case <-time.After(shutdownGrace):
		r.logger.Warn("Graphite reporter did not stop within grace period")
	}
}
