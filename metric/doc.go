// Package metric provides the Prometheus-backed metrics registry used by
// the elasticsearch-metrics service.
//
// The registry maps stable metric names to Prometheus collectors so that
// components can register, replace, and remove instruments independently of
// the Prometheus naming rules. The Graphite reporter enumerates registered
// metrics through Gather, which snapshots the current value of every
// instrument, evaluating lazily-computed gauges as it goes.
//
// Registering under a name that is already present replaces the previous
// collector and logs a warning; removal and shutdown are idempotent.
package metric
