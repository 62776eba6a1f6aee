package graphite

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	dto "github.com/prometheus/client_model/go"
)

// writeFamilies encodes a registry snapshot as Graphite plaintext lines,
// one line per sample:
//
//	<prefix>.<metric path> <value> <unix timestamp>\n
//
// Label values are folded into the metric path in label order. Histogram
// and summary samples are skipped; the registry only carries gauges and
// counters. It returns the number of lines written.
func writeFamilies(w io.Writer, prefix string, families []*dto.MetricFamily, timestamp int64) (int, error) {
	lines := 0

	for _, family := range families {
		for _, m := range family.GetMetric() {
			value, ok := sampleValue(family.GetType(), m)
			if !ok {
				continue
			}

			path := samplePath(prefix, family.GetName(), m)
			if _, err := fmt.Fprintf(w, "%s %s %d\n", path, formatValue(value), timestamp); err != nil {
				return lines, err
			}
			lines++
		}
	}

	return lines, nil
}

// sampleValue extracts the numeric value for a gauge, counter, or untyped
// sample
func sampleValue(metricType dto.MetricType, m *dto.Metric) (float64, bool) {
	switch metricType {
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue(), true
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue(), true
	case dto.MetricType_UNTYPED:
		return m.GetUntyped().GetValue(), true
	default:
		return 0, false
	}
}

// samplePath builds the dotted metric path from the prefix, family name,
// and label values
func samplePath(prefix, name string, m *dto.Metric) string {
	parts := make([]string, 0, 2+len(m.GetLabel()))
	if prefix != "" {
		parts = append(parts, sanitizePathPart(prefix))
	}
	parts = append(parts, sanitizePathPart(name))
	for _, label := range m.GetLabel() {
		parts = append(parts, sanitizePathPart(label.GetValue()))
	}
	return strings.Join(parts, ".")
}

// formatValue renders a sample value without trailing zeros
func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// sanitizePathPart replaces characters that would corrupt a Graphite path
func sanitizePathPart(part string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, part)
}
