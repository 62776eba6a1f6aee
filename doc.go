// Package elasticsearchmetrics collects a small set of numeric gauges from
// an Elasticsearch cluster and ships them to Graphite.
//
// The module wires four pieces into a lifecycle-managed service:
//
//   - metric: a Prometheus-backed registry of named gauges and counters
//   - stats: per-index document-count gauges queried from the cluster
//   - logcounter: per-severity counters observing the slog pipeline
//   - graphite: a periodic reporter speaking the plaintext line protocol
//
// The service package orchestrates creation on start and reverse-order
// teardown on close; cmd/elasticsearch-metrics runs it as a standalone
// daemon. Failures in the reporting path are logged and absorbed: a failed
// gauge read yields zero, a failed transmission abandons that tick, and
// the next scheduled tick is the only retry mechanism.
package elasticsearchmetrics
