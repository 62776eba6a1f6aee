package metric

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/bodgit/elasticsearch-metrics/errors"
)

// Registrar defines the interface for registering named metrics
type Registrar interface {
	RegisterGauge(name string, gauge prometheus.Gauge) error
	RegisterGaugeFunc(name string, gauge prometheus.GaugeFunc) error
	RegisterCounter(name string, counter prometheus.Counter) error
	RegisterCounterVec(name string, counterVec *prometheus.CounterVec) error
	Unregister(name string) bool
}

// MetricsRegistry manages the registration and lifecycle of metrics.
// Registering a metric under a name already present replaces the previous
// collector and logs a warning.
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	registeredMetrics  map[string]prometheus.Collector
	logger             *slog.Logger
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a new empty metrics registry
func NewMetricsRegistry(logger *slog.Logger) *MetricsRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	return &MetricsRegistry{
		prometheusRegistry: prometheus.NewRegistry(),
		registeredMetrics:  make(map[string]prometheus.Collector),
		logger:             logger.With("component", "MetricsRegistry"),
	}
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// RegisterGauge registers a gauge metric under the given name
func (r *MetricsRegistry) RegisterGauge(name string, gauge prometheus.Gauge) error {
	return r.register("RegisterGauge", name, gauge)
}

// RegisterGaugeFunc registers a lazily-computed gauge under the given name.
// The gauge's function is invoked on every registry snapshot.
func (r *MetricsRegistry) RegisterGaugeFunc(name string, gauge prometheus.GaugeFunc) error {
	return r.register("RegisterGaugeFunc", name, gauge)
}

// RegisterCounter registers a counter metric under the given name
func (r *MetricsRegistry) RegisterCounter(name string, counter prometheus.Counter) error {
	return r.register("RegisterCounter", name, counter)
}

// RegisterCounterVec registers a labelled counter vector under the given name
func (r *MetricsRegistry) RegisterCounterVec(name string, counterVec *prometheus.CounterVec) error {
	return r.register("RegisterCounterVec", name, counterVec)
}

// register implements the shared replace-on-duplicate registration policy
func (r *MetricsRegistry) register(method, name string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, exists := r.registeredMetrics[name]; exists {
		r.logger.Warn("Replacing previously registered metric", "metric", name)
		r.prometheusRegistry.Unregister(previous)
		delete(r.registeredMetrics, name)
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			// A collector registered under a different registry name
			// collides with this one at the Prometheus level.
			return errors.WrapInvalid(err, "MetricsRegistry", method,
				fmt.Sprintf("prometheus conflict for metric %s", name))
		}
		return errors.WrapFatal(err, "MetricsRegistry", method,
			fmt.Sprintf("register metric %s", name))
	}

	r.registeredMetrics[name] = collector
	return nil
}

// Unregister removes a metric from the registry
func (r *MetricsRegistry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	collector, exists := r.registeredMetrics[name]
	if !exists {
		return false
	}

	success := r.prometheusRegistry.Unregister(collector)
	if success {
		delete(r.registeredMetrics, name)
	}

	return success
}

// Names returns the registered metric names in sorted order
func (r *MetricsRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.registeredMetrics))
	for name := range r.registeredMetrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered metrics
func (r *MetricsRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.registeredMetrics)
}

// Gather snapshots the current value of every registered metric. Lazily
// computed gauges are evaluated during the snapshot.
func (r *MetricsRegistry) Gather() ([]*dto.MetricFamily, error) {
	families, err := r.prometheusRegistry.Gather()
	if err != nil {
		return nil, errors.WrapTransient(err, "MetricsRegistry", "Gather", "snapshot metrics")
	}
	return families, nil
}

// Shutdown removes every registered metric. It is idempotent; calling it
// on an already empty registry is a no-op.
func (r *MetricsRegistry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for name, collector := range r.registeredMetrics {
		r.prometheusRegistry.Unregister(collector)
		delete(r.registeredMetrics, name)
	}
}
