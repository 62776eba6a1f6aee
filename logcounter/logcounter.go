// Package logcounter instruments the process-wide slog pipeline with
// per-severity event counters. The observer delegates every record
// unchanged; it never filters, alters, or blocks log events.
//
// Counting has two pieces. Instrument installs an observation point inside
// a handler chain, so every logger later derived from it carries the
// point, and Attach activates counting process-wide and registers the
// counter. A logger built before Attach still reports, as long as its
// chain was instrumented. Attach also instruments the default logger when
// the host did not, so package-level slog calls never bypass the counter.
//
// Attachment is handle-based: Attach returns a Handle, and only that
// Handle can detach it. This makes double counting and leaked observer
// references structurally impossible rather than a runtime convention.
package logcounter

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bodgit/elasticsearch-metrics/metric"
)

// registryKey is the name the event counter is registered under
const registryKey = "log.events_total"

// levelLabels pre-seeds the counter so every severity series exists from
// the first reporting tick, even before any event of that level occurred.
var levelLabels = []string{"debug", "info", "warn", "error"}

// active is the counter every observation point reports to. Nil between
// attachments; observation points stay installed but dormant.
var active atomic.Pointer[prometheus.CounterVec]

// Handler is an observation point in an slog handler chain. It counts
// records by severity while an attachment is active and delegates to the
// wrapped handler either way.
type Handler struct {
	inner slog.Handler
}

// Instrument wraps a handler with an observation point. Wrapping an
// already instrumented handler returns it unchanged, so a record is never
// counted twice.
func Instrument(inner slog.Handler) slog.Handler {
	if h, ok := inner.(*Handler); ok {
		return h
	}
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if events := active.Load(); events != nil {
		events.WithLabelValues(levelLabel(record.Level)).Inc()
	}
	return h.inner.Handle(ctx, record)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name)}
}

// levelLabel buckets an slog level into the four counted severities
func levelLabel(level slog.Level) string {
	switch {
	case level < slog.LevelInfo:
		return "debug"
	case level < slog.LevelWarn:
		return "info"
	case level < slog.LevelError:
		return "warn"
	default:
		return "error"
	}
}

// Handle represents an active log pipeline attachment. Detach deactivates
// counting, restores the default logger when Attach replaced it, and
// removes the counter from the registry.
type Handle struct {
	registry *metric.MetricsRegistry
	previous *slog.Logger
	mu       sync.Mutex
	detached bool
}

// Attach registers a per-severity event counter in the registry and
// activates every installed observation point. When the default logger
// was built without Instrument, Attach wraps it so package-level slog
// calls are counted too.
func Attach(registry *metric.MetricsRegistry) (*Handle, error) {
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "elasticsearch",
			Subsystem: "log",
			Name:      "events_total",
			Help:      "Log events observed on the process-wide pipeline, by severity",
		},
		[]string{"level"},
	)

	if err := registry.RegisterCounterVec(registryKey, events); err != nil {
		return nil, err
	}

	for _, label := range levelLabels {
		events.WithLabelValues(label)
	}

	handle := &Handle{registry: registry}
	if _, ok := slog.Default().Handler().(*Handler); !ok {
		handle.previous = slog.Default()
		slog.SetDefault(slog.New(Instrument(handle.previous.Handler())))
	}

	active.Store(events)
	return handle, nil
}

// Detach deactivates the observation points and unregisters the counter.
// It is idempotent; calling it on an already detached handle is a no-op.
func (h *Handle) Detach() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.detached {
		return
	}
	h.detached = true

	active.Store(nil)
	if h.previous != nil {
		slog.SetDefault(h.previous)
	}
	h.registry.Unregister(registryKey)
}
