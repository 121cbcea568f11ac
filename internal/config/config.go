// Package config defines service configuration and its loading.
//
// Conventions:
// - New returns a Config populated with defaults.
// - Load layers a YAML file and PROCTOR_* environment variables on top.
// - Validation failures wrap ErrInvalidConfig; load failures wrap
//   ErrLoadConfig.
package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Analyzer modes.
const (
	AnalyzerSimulated = "simulated"
	AnalyzerHTTP      = "http"
)

// Sink drivers.
const (
	SinkHTTP  = "http"
	SinkKafka = "kafka"
	SinkNone  = "none"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoding: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// FrameIntervalMS is the frame analysis period.
	FrameIntervalMS int `koanf:"frame_interval_ms"`

	// ViolationThreshold is the score that terminates a session.
	ViolationThreshold int `koanf:"violation_threshold"`

	// LedgerCapacity bounds the alerts kept per session; 0 keeps all.
	LedgerCapacity int `koanf:"ledger_capacity"`

	// AnalyzerMode selects the frame analyzer: simulated or http.
	AnalyzerMode      string `koanf:"analyzer_mode"`
	AnalyzerURL       string `koanf:"analyzer_url"`
	AnalyzerToken     string `koanf:"analyzer_token"`
	AnalyzerTimeoutMS int    `koanf:"analyzer_timeout_ms"`

	// AnalyzerLatencyMinMS and AnalyzerLatencyMaxMS bound the simulated
	// analyzer's latency.
	AnalyzerLatencyMinMS int     `koanf:"analyzer_latency_min_ms"`
	AnalyzerLatencyMaxMS int     `koanf:"analyzer_latency_max_ms"`
	AnalyzerViolationP   float64 `koanf:"analyzer_violation_rate"`
	AnalyzerSeed         int64   `koanf:"analyzer_seed"`

	// AttemptLogURL is the attempt log base URL; empty disables
	// registration.
	AttemptLogURL       string `koanf:"attempt_log_url"`
	AttemptLogToken     string `koanf:"attempt_log_token"`
	AttemptLogTimeoutMS int    `koanf:"attempt_log_timeout_ms"`

	// SinkDriver selects where attempt-log events go: http, kafka or none.
	SinkDriver      string `koanf:"sink_driver"`
	SinkQueueSize   int    `koanf:"sink_queue_size"`
	SinkWorkerCount int    `koanf:"sink_worker_count"`

	// KafkaBrokers is a comma-separated broker list.
	KafkaBrokers string `koanf:"kafka_brokers"`
	KafkaTopic   string `koanf:"kafka_topic"`

	// StoreDriver selects the session record store: memory, sqlite,
	// postgres or bolt. StoreDSN is its DSN or file path.
	StoreDriver string `koanf:"store_driver"`
	StoreDSN    string `koanf:"store_dsn"`

	// FrameMaxBytes caps an uploaded camera frame.
	FrameMaxBytes int `koanf:"frame_max_bytes"`

	// MetricsEnabled turns the gauge refresher and the /metrics families on.
	MetricsEnabled   bool   `koanf:"metrics_enabled"`
	MetricsRefreshMS int    `koanf:"metrics_refresh_ms"`
	MetricsNamespace string `koanf:"metrics_namespace"`
	MetricsSubsystem string `koanf:"metrics_subsystem"`
	MetricsPrefix    string `koanf:"metrics_prefix"`

	// MetricsLabels holds constant labels as "k=v,k=v".
	MetricsLabels string `koanf:"metrics_labels"`

	// MetricsBuckets holds histogram buckets in milliseconds as "5,10,25";
	// empty keeps the Prometheus defaults.
	MetricsBuckets string `koanf:"metrics_buckets"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		FrameIntervalMS:      5000,
		ViolationThreshold:   5,
		LedgerCapacity:       0,
		AnalyzerMode:         AnalyzerSimulated,
		AnalyzerTimeoutMS:    10_000,
		AnalyzerLatencyMinMS: 80,
		AnalyzerLatencyMaxMS: 150,
		AnalyzerViolationP:   0.1,
		AnalyzerSeed:         42,
		AttemptLogTimeoutMS:  10_000,
		SinkDriver:           SinkHTTP,
		SinkQueueSize:        1024,
		SinkWorkerCount:      runtime.NumCPU(),
		KafkaTopic:           "proctor.events",
		StoreDriver:          "memory",
		FrameMaxBytes:        2 << 20,
		MetricsEnabled:       true,
		MetricsRefreshMS:     10_000,
		MetricsNamespace:     "proctor",
		MetricsSubsystem:     "integrity",
	}
}

// FrameInterval returns the frame analysis period.
func (c *Config) FrameInterval() time.Duration {
	return time.Duration(c.FrameIntervalMS) * time.Millisecond
}

// Brokers splits KafkaBrokers.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// MetricsRefresh returns the gauge refresh period.
func (c *Config) MetricsRefresh() time.Duration {
	return time.Duration(c.MetricsRefreshMS) * time.Millisecond
}

// MetricLabels parses MetricsLabels.
func (c *Config) MetricLabels() (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(c.MetricsLabels, ",") {
		if pair = strings.TrimSpace(pair); pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" {
			return nil, fmt.Errorf("%w: metrics_labels entry %q is not k=v", ErrInvalidConfig, pair)
		}
		out[k] = v
	}
	return out, nil
}

// HistogramBuckets parses MetricsBuckets; the result is nil when unset.
func (c *Config) HistogramBuckets() ([]float64, error) {
	var out []float64
	for _, b := range strings.Split(c.MetricsBuckets, ",") {
		if b = strings.TrimSpace(b); b == "" {
			continue
		}
		f, err := strconv.ParseFloat(b, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: metrics_buckets entry %q: %w", ErrInvalidConfig, b, err)
		}
		if len(out) > 0 && f <= out[len(out)-1] {
			return nil, fmt.Errorf("%w: metrics_buckets must increase", ErrInvalidConfig)
		}
		out = append(out, f)
	}
	return out, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.FrameIntervalMS <= 0:
		return fmt.Errorf("%w: frame_interval_ms must be positive", ErrInvalidConfig)
	case c.ViolationThreshold <= 0:
		return fmt.Errorf("%w: violation_threshold must be positive", ErrInvalidConfig)
	case c.AnalyzerLatencyMaxMS < c.AnalyzerLatencyMinMS:
		return fmt.Errorf("%w: analyzer latency max below min", ErrInvalidConfig)
	case c.AnalyzerViolationP < 0 || c.AnalyzerViolationP > 1:
		return fmt.Errorf("%w: analyzer_violation_rate must be within [0,1]", ErrInvalidConfig)
	case c.MetricsRefreshMS <= 0:
		return fmt.Errorf("%w: metrics_refresh_ms must be positive", ErrInvalidConfig)
	case c.MetricsNamespace == "":
		return fmt.Errorf("%w: metrics_namespace must not be empty", ErrInvalidConfig)
	}
	if _, err := c.MetricLabels(); err != nil {
		return err
	}
	if _, err := c.HistogramBuckets(); err != nil {
		return err
	}

	switch c.AnalyzerMode {
	case AnalyzerSimulated:
	case AnalyzerHTTP:
		if c.AnalyzerURL == "" {
			return fmt.Errorf("%w: analyzer_url is required in http mode", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown analyzer_mode %q", ErrInvalidConfig, c.AnalyzerMode)
	}

	switch c.SinkDriver {
	case SinkNone, SinkHTTP:
	case SinkKafka:
		if len(c.Brokers()) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("%w: kafka sink requires kafka_brokers and kafka_topic", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown sink_driver %q", ErrInvalidConfig, c.SinkDriver)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	}
	return nil
}
