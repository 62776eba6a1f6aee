// Package stats queries index statistics from an Elasticsearch cluster and
// exposes them as lazily-computed gauges. Query failures never propagate:
// a gauge read that fails yields zero and a logged warning so that a bad
// read can never abort a reporting cycle.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bodgit/elasticsearch-metrics/errors"
)

// Source provides the latest primary-shard document count for an index
type Source interface {
	DocumentCount(ctx context.Context, index string) (int64, error)
}

// HTTPSource queries index statistics over the Elasticsearch HTTP API
type HTTPSource struct {
	address  string
	username string
	password string
	client   *http.Client
}

// Option is a functional option for configuring HTTPSource
type Option func(*HTTPSource)

// WithBasicAuth sets credentials for clusters behind basic authentication
func WithBasicAuth(username, password string) Option {
	return func(s *HTTPSource) {
		s.username = username
		s.password = password
	}
}

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(s *HTTPSource) {
		s.client = client
	}
}

// NewHTTPSource creates a stats source for the cluster at address,
// e.g. "http://localhost:9200".
func NewHTTPSource(address string, opts ...Option) *HTTPSource {
	source := &HTTPSource{
		address: strings.TrimRight(address, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}

	for _, opt := range opts {
		opt(source)
	}

	return source
}

// indexStatsResponse mirrors the subset of the _stats API the gauge needs
type indexStatsResponse struct {
	All struct {
		Primaries struct {
			Docs struct {
				Count int64 `json:"count"`
			} `json:"docs"`
		} `json:"primaries"`
	} `json:"_all"`
}

// DocumentCount returns the primary-shard document count for the named
// index. The context bounds the whole request.
func (s *HTTPSource) DocumentCount(ctx context.Context, index string) (int64, error) {
	statsURL := fmt.Sprintf("%s/%s/_stats/docs", s.address, url.PathEscape(index))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, statsURL, nil)
	if err != nil {
		return 0, errors.WrapInvalid(err, "HTTPSource", "DocumentCount", "build stats request")
	}
	if s.username != "" {
		req.SetBasicAuth(s.username, s.password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, errors.WrapTransient(err, "HTTPSource", "DocumentCount", "query index stats")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, errors.WrapTransient(
			fmt.Errorf("%w: status %d for index %q", errors.ErrQueryFailed, resp.StatusCode, index),
			"HTTPSource", "DocumentCount", "query index stats")
	}

	var stats indexStatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return 0, errors.WrapTransient(err, "HTTPSource", "DocumentCount", "decode stats response")
	}

	return stats.All.Primaries.Docs.Count, nil
}
