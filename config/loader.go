package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Loader handles configuration loading with defaults, an optional file
// layer, and environment overrides.
type Loader struct {
	validation bool
	envPrefix  string
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		validation: true,
		envPrefix:  "ESMETRICS",
	}
}

// EnableValidation enables or disables configuration validation
func (l *Loader) EnableValidation(enable bool) {
	l.validation = enable
}

// LoadFile loads configuration from a JSON file, applying defaults and
// environment overrides.
func (l *Loader) LoadFile(path string) (*Config, error) {
	cfg := l.getDefaults()

	data, err := safeReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	if err := cfg.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	l.applyDefaults(cfg)
	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Load builds a configuration from defaults and environment overrides only
func (l *Loader) Load() (*Config, error) {
	cfg := l.getDefaults()
	l.applyEnvOverrides(cfg)

	if l.validation {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// getDefaults returns default configuration
func (l *Loader) getDefaults() *Config {
	return &Config{
		Enabled: false,
		Graphite: GraphiteConfig{
			Port:           DefaultGraphitePort,
			ReportInterval: DefaultReportInterval,
		},
		Elasticsearch: ElasticsearchConfig{
			Address:      "http://localhost:9200",
			QueryTimeout: DefaultQueryTimeout,
		},
	}
}

// applyDefaults backfills zero values left by an explicit file layer
func (l *Loader) applyDefaults(cfg *Config) {
	if cfg.Graphite.Port == 0 {
		cfg.Graphite.Port = DefaultGraphitePort
	}
	if cfg.Graphite.ReportInterval == 0 {
		cfg.Graphite.ReportInterval = DefaultReportInterval
	}
	if cfg.Elasticsearch.Address == "" {
		cfg.Elasticsearch.Address = "http://localhost:9200"
	}
	if cfg.Elasticsearch.QueryTimeout == 0 {
		cfg.Elasticsearch.QueryTimeout = DefaultQueryTimeout
	}
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err == nil {
			cfg.Enabled = enabled
		}
	}

	// Graphite overrides
	if val := os.Getenv(l.envPrefix + "_GRAPHITE_HOSTNAME"); val != "" {
		cfg.Graphite.Hostname = val
	}
	if val := os.Getenv(l.envPrefix + "_GRAPHITE_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Graphite.Port = port
		}
	}
	if val := os.Getenv(l.envPrefix + "_GRAPHITE_REPORT_INTERVAL"); val != "" {
		if interval, err := time.ParseDuration(val); err == nil {
			cfg.Graphite.ReportInterval = interval
		}
	}
	if val := os.Getenv(l.envPrefix + "_GRAPHITE_PREFIX"); val != "" {
		cfg.Graphite.Prefix = val
	}

	// Elasticsearch overrides
	if val := os.Getenv(l.envPrefix + "_ELASTICSEARCH_ADDRESS"); val != "" {
		cfg.Elasticsearch.Address = val
	}
	if val := os.Getenv(l.envPrefix + "_ELASTICSEARCH_USERNAME"); val != "" {
		cfg.Elasticsearch.Username = val
	}
	if val := os.Getenv(l.envPrefix + "_ELASTICSEARCH_PASSWORD"); val != "" {
		cfg.Elasticsearch.Password = val
	}

	// Stats overrides
	if val := os.Getenv(l.envPrefix + "_STATS_INDICES"); val != "" {
		cfg.Stats.Indices = splitNonEmpty(val)
	}
}

// splitNonEmpty splits a comma-separated list, dropping empty entries
func splitNonEmpty(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
