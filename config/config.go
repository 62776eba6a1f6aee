// Package config handles loading and validation of the metrics service
// configuration: which indices to sample, where the Elasticsearch cluster
// lives, and where (and how often) to ship metrics to Graphite.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bodgit/elasticsearch-metrics/errors"
)

// Defaults applied by Loader when the file or environment leaves a
// setting unset.
const (
	DefaultGraphitePort   = 2003
	DefaultReportInterval = time.Minute
	DefaultQueryTimeout   = 10 * time.Second
)

// redactedPlaceholder replaces credential values in diagnostics output.
const redactedPlaceholder = "[REDACTED]"

// Config represents the complete service configuration
type Config struct {
	Enabled       bool                `json:"enabled"`
	Graphite      GraphiteConfig      `json:"graphite"`
	Elasticsearch ElasticsearchConfig `json:"elasticsearch"`
	Stats         StatsConfig         `json:"stats"`
}

// GraphiteConfig defines the Graphite reporting endpoint
type GraphiteConfig struct {
	Hostname       string        `json:"hostname"`
	Port           int           `json:"port,omitempty"`
	ReportInterval time.Duration `json:"report_interval,omitempty"`
	Prefix         string        `json:"prefix,omitempty"`
}

// ElasticsearchConfig defines how to reach the cluster being sampled
type ElasticsearchConfig struct {
	Address      string        `json:"address,omitempty"`
	Username     string        `json:"username,omitempty"`
	Password     string        `json:"password,omitempty"`
	QueryTimeout time.Duration `json:"query_timeout,omitempty"`
}

// StatsConfig selects which index statistics are collected
type StatsConfig struct {
	Indices []string `json:"indices,omitempty"`
}

// Validate checks if the config is valid. A missing Graphite hostname while
// reporting is enabled is an invalid-configuration error; callers disable
// the reporting feature but keep the host process running.
func (c *Config) Validate() error {
	if c.Enabled && c.Graphite.Hostname == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig,
			"Config", "Validate", "graphite.hostname is required when reporting is enabled")
	}

	if c.Graphite.Port <= 0 || c.Graphite.Port > 65535 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Config", "Validate", fmt.Sprintf("graphite.port %d out of range", c.Graphite.Port))
	}

	if c.Graphite.ReportInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Config", "Validate", "graphite.report_interval must be positive")
	}

	if c.Elasticsearch.QueryTimeout <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Config", "Validate", "elasticsearch.query_timeout must be positive")
	}

	for _, index := range c.Stats.Indices {
		if index == "" {
			return errors.WrapInvalid(errors.ErrInvalidConfig,
				"Config", "Validate", "stats.indices entries cannot be empty")
		}
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}

	copied := *c
	if c.Stats.Indices != nil {
		copied.Stats.Indices = make([]string, len(c.Stats.Indices))
		copy(copied.Stats.Indices, c.Stats.Indices)
	}
	return &copied
}

// Redacted returns a copy of the configuration with credential values
// masked, suitable for logging and diagnostics endpoints.
func (c *Config) Redacted() *Config {
	copied := c.Clone()
	if copied.Elasticsearch.Username != "" {
		copied.Elasticsearch.Username = redactedPlaceholder
	}
	if copied.Elasticsearch.Password != "" {
		copied.Elasticsearch.Password = redactedPlaceholder
	}
	return copied
}

// String returns a JSON representation of the redacted config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c.Redacted(), "", "  ")
	return string(data)
}

// UnmarshalJSON implements custom JSON unmarshaling so durations may be
// given as strings ("30s", "1m") or as raw nanosecond numbers.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config
	aux := &struct {
		Graphite struct {
			Hostname       string `json:"hostname"`
			Port           int    `json:"port,omitempty"`
			ReportInterval any    `json:"report_interval,omitempty"`
			Prefix         string `json:"prefix,omitempty"`
		} `json:"graphite"`
		Elasticsearch struct {
			Address      string `json:"address,omitempty"`
			Username     string `json:"username,omitempty"`
			Password     string `json:"password,omitempty"`
			QueryTimeout any    `json:"query_timeout,omitempty"`
		} `json:"elasticsearch"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	c.Graphite.Hostname = aux.Graphite.Hostname
	c.Graphite.Port = aux.Graphite.Port
	c.Graphite.Prefix = aux.Graphite.Prefix
	c.Elasticsearch.Address = aux.Elasticsearch.Address
	c.Elasticsearch.Username = aux.Elasticsearch.Username
	c.Elasticsearch.Password = aux.Elasticsearch.Password

	interval, err := parseDurationValue(aux.Graphite.ReportInterval)
	if err != nil {
		return fmt.Errorf("graphite.report_interval: %w", err)
	}
	c.Graphite.ReportInterval = interval

	timeout, err := parseDurationValue(aux.Elasticsearch.QueryTimeout)
	if err != nil {
		return fmt.Errorf("elasticsearch.query_timeout: %w", err)
	}
	c.Elasticsearch.QueryTimeout = timeout

	return nil
}

// parseDurationValue accepts a duration string, a numeric nanosecond value,
// or nil (zero duration).
func parseDurationValue(v any) (time.Duration, error) {
	switch value := v.(type) {
	case nil:
		return 0, nil
	case string:
		return time.ParseDuration(value)
	case float64:
		return time.Duration(value), nil
	default:
		return 0, fmt.Errorf("unsupported duration value %v", v)
	}
}
