package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration: listeners, infrastructure
// endpoints and secrets. Security thresholds live in the security config file.
type Server struct {
	Addr               string
	Environment        string
	LogLevel           string
	AdminToken         string
	UpstreamURL        string
	UpstreamRate       float64
	UpstreamBurst      int
	SecurityConfigPath string
	ShutdownTimeout    time.Duration

	TrustForwardHeaders bool
	TrustedProxies      []netip.Prefix

	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

type DatabaseConfig struct {
	URL string
}

// RedisConfig configures the block registry mirror. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the security event stream. Empty brokers disable it.
type KafkaConfig struct {
	Brokers string
	Topic   string
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Malformed values are errors; missing ones take defaults.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:               envOr("EDGEGUARD_ADDR", ":8080"),
		Environment:        envOr("EDGEGUARD_ENV", "development"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		AdminToken:         os.Getenv("ADMIN_TOKEN"),
		UpstreamURL:        os.Getenv("UPSTREAM_URL"),
		SecurityConfigPath: os.Getenv("EDGEGUARD_SECURITY_CONFIG"),
		Database:           DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Kafka: KafkaConfig{
			Brokers: os.Getenv("KAFKA_BROKERS"),
			Topic:   envOr("KAFKA_SECURITY_TOPIC", "edgeguard.security-events"),
		},
	}

	var err error
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		return Server{}, err
	}
	if cfg.UpstreamRate, err = envFloat("UPSTREAM_RATE_PER_SECOND", 500); err != nil {
		return Server{}, err
	}
	if cfg.UpstreamBurst, err = envInt("UPSTREAM_BURST", 1000); err != nil {
		return Server{}, err
	}
	cfg.TrustForwardHeaders = os.Getenv("TRUST_FORWARD_HEADERS") == "true"
	if cfg.TrustedProxies, err = parsePrefixes(os.Getenv("TRUSTED_PROXIES")); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envFloat(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func envInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// parsePrefixes reads a comma-separated list of CIDRs or bare addresses.
func parsePrefixes(raw string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
