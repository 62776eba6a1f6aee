package stats

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DocumentCountFunc returns a gauge read function for the named index.
// Each invocation performs a timeout-bounded query against the source and
// returns the latest count, or 0 with a logged warning when the query
// fails. The function captures no mutable state beyond the index name and
// is safe to call concurrently from the reporter's timer goroutine.
func DocumentCountFunc(source Source, index string, timeout time.Duration, logger *slog.Logger) func() float64 {
	if logger == nil {
		logger = slog.Default()
	}

	return func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		count, err := source.DocumentCount(ctx, index)
		if err != nil {
			logger.Warn("Could not collect index stats", "index", index, "error", err)
			return 0
		}

		return float64(count)
	}
}

// NewDocumentCountGauge builds a lazily-computed gauge for the named index,
// suitable for registration in the metrics registry.
func NewDocumentCountGauge(source Source, index string, timeout time.Duration, logger *slog.Logger) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace:   "elasticsearch",
			Subsystem:   "index",
			Name:        "document_count",
			Help:        "Primary-shard document count for the index",
			ConstLabels: prometheus.Labels{"index": index},
		},
		DocumentCountFunc(source, index, timeout, logger),
	)
}
