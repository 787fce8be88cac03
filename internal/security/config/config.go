// Package config defines the tunable thresholds of the admission pipeline.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/netip"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	dErrors "edgeguard/pkg/domain-errors"
)

// Config holds every threshold the pipeline uses. It is immutable after startup.
type Config struct {
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	TokenBucket TokenBucketConfig `yaml:"token_bucket"`
	DDoS        DDoSConfig        `yaml:"ddos"`
	Input       InputConfig       `yaml:"input"`
	Anomaly     AnomalyConfig     `yaml:"anomaly"`
	Audit       AuditConfig       `yaml:"audit"`
	Cleanup     CleanupConfig     `yaml:"cleanup"`

	// Allowlist holds addresses or CIDR prefixes that skip the DDoS, rate and
	// anomaly stages. Input validation still applies.
	Allowlist []string `yaml:"allowlist"`
}

// RateLimitConfig is the fixed-window request limit per client key.
type RateLimitConfig struct {
	MaxRequests int           `yaml:"max_requests"`
	Window      time.Duration `yaml:"window"`
	MaxKeys     int           `yaml:"max_keys"`
}

// TokenBucketConfig smooths steady-state traffic per client key.
type TokenBucketConfig struct {
	Enabled         bool    `yaml:"enabled"`
	MaxTokens       float64 `yaml:"max_tokens"`
	RefillPerSecond float64 `yaml:"refill_per_second"`
	// WaitBudget > 0 lets a request wait for a token instead of failing fast,
	// bounded by the request deadline.
	WaitBudget time.Duration `yaml:"wait_budget"`
	MaxKeys    int           `yaml:"max_keys"`
	IdleTTL    time.Duration `yaml:"idle_ttl"`
}

// DDoSConfig is the burst detector that escalates to a timed block.
type DDoSConfig struct {
	Threshold     int           `yaml:"threshold"`
	Window        time.Duration `yaml:"window"`
	BlockDuration time.Duration `yaml:"block_duration"`
	MaxKeys       int           `yaml:"max_keys"`
}

// InputConfig drives the stateless body checks.
type InputConfig struct {
	MaxBodyBytes        int64    `yaml:"max_body_bytes"`
	AllowedContentTypes []string `yaml:"allowed_content_types"`
	ScanQuery           bool     `yaml:"scan_query"`
}

// AnomalyConfig drives the heuristic detector.
type AnomalyConfig struct {
	ScanWindow            time.Duration `yaml:"scan_window"`
	ScanRequestThreshold  int           `yaml:"scan_request_threshold"`
	ScanDistinctEndpoints int           `yaml:"scan_distinct_endpoints"`
	BlockOnScan           bool          `yaml:"block_on_scan"`
	BlockDuration         time.Duration `yaml:"block_duration"`
	HistoryLimit          int           `yaml:"history_limit"`
}

// AuditConfig sizes the asynchronous audit sink.
type AuditConfig struct {
	QueueSize     int           `yaml:"queue_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxRetries    int           `yaml:"max_retries"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
	// MemoryRetention caps each in-memory table when no database is configured.
	MemoryRetention int `yaml:"memory_retention"`
}

// CleanupConfig schedules the sweep worker.
type CleanupConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		RateLimit: RateLimitConfig{
			MaxRequests: 100,
			Window:      time.Minute,
			MaxKeys:     100_000,
		},
		TokenBucket: TokenBucketConfig{
			Enabled:         true,
			MaxTokens:       20,
			RefillPerSecond: 10,
			MaxKeys:         100_000,
			IdleTTL:         10 * time.Minute,
		},
		DDoS: DDoSConfig{
			Threshold:     50,
			Window:        time.Second,
			BlockDuration: 15 * time.Minute,
			MaxKeys:       100_000,
		},
		Input: InputConfig{
			MaxBodyBytes: 1 << 20,
			AllowedContentTypes: []string{
				"application/json",
				"text/plain",
				"application/x-www-form-urlencoded",
				"multipart/form-data",
			},
			ScanQuery: true,
		},
		Anomaly: AnomalyConfig{
			ScanWindow:            60 * time.Second,
			ScanRequestThreshold:  20,
			ScanDistinctEndpoints: 10,
			BlockOnScan:           true,
			BlockDuration:         time.Hour,
			HistoryLimit:          200,
		},
		Audit: AuditConfig{
			QueueSize:       10_000,
			BatchSize:       100,
			FlushInterval:   time.Second,
			MaxRetries:      3,
			RetryBackoff:    100 * time.Millisecond,
			MemoryRetention: 100_000,
		},
		Cleanup: CleanupConfig{
			Interval: time.Minute,
		},
	}
}

// Load overlays the YAML file at path onto the defaults and validates the
// result. An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "open security config")
	}
	defer f.Close()
	if err := cfg.decode(f); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// Parse overlays raw YAML onto the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "parse security config: "+err.Error())
	}
	return nil
}

// Validate rejects configurations the pipeline cannot run with. Errors carry
// CodeInvariantViolation and are fatal at startup.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.RateLimit.MaxRequests > 0, "rate_limit.max_requests must be positive")
	check(c.RateLimit.Window > 0, "rate_limit.window must be positive")
	check(c.DDoS.Threshold > 0, "ddos.threshold must be positive")
	check(c.DDoS.Window > 0, "ddos.window must be positive")
	check(c.DDoS.BlockDuration > 0, "ddos.block_duration must be positive")
	if c.TokenBucket.Enabled {
		check(c.TokenBucket.RefillPerSecond > 0, "token_bucket.refill_per_second must be positive")
		check(c.TokenBucket.MaxTokens >= 1, "token_bucket.max_tokens must be at least 1")
		check(c.TokenBucket.WaitBudget >= 0, "token_bucket.wait_budget must not be negative")
	}
	check(c.Input.MaxBodyBytes > 0, "input.max_body_bytes must be positive")
	check(len(c.Input.AllowedContentTypes) > 0, "input.allowed_content_types must not be empty")
	for _, ct := range c.Input.AllowedContentTypes {
		_, _, err := mime.ParseMediaType(ct)
		check(err == nil, "input.allowed_content_types: invalid media type %q", ct)
	}
	check(c.Anomaly.ScanWindow > 0, "anomaly.scan_window must be positive")
	check(c.Anomaly.ScanRequestThreshold > 0, "anomaly.scan_request_threshold must be positive")
	check(c.Anomaly.ScanDistinctEndpoints > 0, "anomaly.scan_distinct_endpoints must be positive")
	if c.Anomaly.BlockOnScan {
		check(c.Anomaly.BlockDuration > 0, "anomaly.block_duration must be positive when block_on_scan is set")
	}
	check(c.Audit.QueueSize > 0, "audit.queue_size must be positive")
	check(c.Audit.BatchSize > 0, "audit.batch_size must be positive")
	check(c.Audit.FlushInterval > 0, "audit.flush_interval must be positive")
	check(c.Audit.MaxRetries >= 0, "audit.max_retries must not be negative")
	check(c.Cleanup.Interval > 0, "cleanup.interval must be positive")
	if _, err := c.AllowlistPrefixes(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return nil
	}
	return dErrors.Wrap(errors.Join(errs...), dErrors.CodeInvariantViolation, "invalid security config: "+errors.Join(errs...).Error())
}

// AllowlistPrefixes parses Allowlist. Bare addresses become single-host prefixes.
func (c *Config) AllowlistPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.Allowlist))
	for _, raw := range c.Allowlist {
		if p, err := netip.ParsePrefix(raw); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("allowlist: invalid address or prefix %q", raw)
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
