package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"edgeguard/internal/audit"
	"edgeguard/internal/audit/store/memory"
	auditpg "edgeguard/internal/audit/store/postgres"
	"edgeguard/internal/audit/stream"
	"edgeguard/internal/platform/config"
	"edgeguard/internal/platform/database"
	"edgeguard/internal/platform/health"
	"edgeguard/internal/platform/kafka"
	"edgeguard/internal/platform/kafka/producer"
	"edgeguard/internal/platform/redis"
	"edgeguard/internal/security/anomaly"
	secconfig "edgeguard/internal/security/config"
	"edgeguard/internal/security/metrics"
	"edgeguard/internal/security/pipeline"
	"edgeguard/internal/security/service/blocking"
	"edgeguard/internal/security/store/blocklist"
	"edgeguard/internal/security/store/tokenbucket"
	"edgeguard/internal/security/store/window"
	"edgeguard/internal/security/validator"
	"edgeguard/internal/security/workers/cleanup"
	"edgeguard/migrations"
	"edgeguard/pkg/platform/circuit"
)

// app holds what run needs after wiring: the router, background workers and
// the resources to release on shutdown, in release order.
type app struct {
	router  http.Handler
	cleanup *cleanup.Service
	redis   *redis.Client
	closers []func() error
	log     *slog.Logger
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Error("shutdown step failed", "error", err)
		}
	}
}

// security bundles the pipeline stage stores so the cleanup worker can
// sweep the same instances the pipeline writes to.
type security struct {
	pipeline *pipeline.Pipeline
	blocks   *blocking.Service
	sink     *audit.Sink
	rate     *window.Store
	ddos     *window.Store
	buckets  *tokenbucket.Store
	maxBody  int64
}

func build(ctx context.Context, cfg config.Server, secCfg *secconfig.Config, log *slog.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{log: log}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	healthHandler := health.New(cfg.Environment)

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.Database.URL
	pool, err := database.New(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
		applied, err := pool.Migrate(ctx, migrations.FS)
		if err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("database ready", "migrations_applied", applied)
		healthHandler.RegisterCheck("postgres", pool.Health)
	}

	a.redis, err = redis.New(ctx, cfg.Redis, reg)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	if a.redis != nil {
		a.closers = append(a.closers, a.redis.Close)
		healthHandler.RegisterOptionalCheck("redis", a.redis.Health)
	}

	secMetrics := metrics.NewWith(reg)
	auditMetrics := audit.NewMetricsWith(reg)
	var store audit.Store = memory.New(secCfg.Audit.MemoryRetention)
	if pool != nil {
		store = auditpg.New(pool.DB())
	}
	if cfg.Kafka.Brokers != "" {
		pcfg := kafka.DefaultProducerConfig()
		pcfg.Brokers = cfg.Kafka.Brokers
		prod, err := producer.New(pcfg, log)
		if err != nil {
			return nil, fmt.Errorf("kafka: %w", err)
		}
		a.closers = append(a.closers, prod.Close)
		healthHandler.RegisterOptionalCheck("kafka", kafka.NewHealthChecker(prod).Check)
		store = stream.New(store, prod,
			stream.WithTopic(cfg.Kafka.Topic),
			stream.WithLogger(log),
			stream.WithMetrics(auditMetrics),
		)
	}

	sec, err := buildSecurity(ctx, secCfg, store, pool, a.redis, secMetrics, auditMetrics, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, sec.sink.Close)

	a.cleanup = cleanup.New(cleanup.Targets{
		Windows: map[string]cleanup.WindowStore{"rate_limit": sec.rate, "ddos": sec.ddos},
		Buckets: bucketTarget(sec.buckets),
		Blocks:  sec.blocks,
		History: sec.sink,
	},
		cleanup.WithLogger(log),
		cleanup.WithInterval(secCfg.Cleanup.Interval),
		cleanup.WithMetrics(secMetrics),
		cleanup.WithBucketIdleTTL(secCfg.TokenBucket.IdleTTL),
		cleanup.WithHistoryRetention(secCfg.Anomaly.ScanWindow),
	)

	router, err := newRouter(cfg, sec, healthHandler, log, reg)
	if err != nil {
		return nil, err
	}
	a.router = router
	ok = true
	return a, nil
}

// bucketTarget keeps a nil *tokenbucket.Store from becoming a non-nil
// interface when the bucket stage is disabled.
func bucketTarget(b *tokenbucket.Store) cleanup.BucketStore {
	if b == nil {
		return nil
	}
	return b
}

func buildSecurity(ctx context.Context, cfg *secconfig.Config, store audit.Store, pool *database.Pool, rc *redis.Client,
	m *metrics.Metrics, auditMetrics *audit.Metrics, log *slog.Logger,
) (*security, error) {

	sink, err := audit.New(store,
		audit.WithLogger(log),
		audit.WithMetrics(auditMetrics),
		audit.WithQueueSize(cfg.Audit.QueueSize),
		audit.WithBatchSize(cfg.Audit.BatchSize),
		audit.WithFlushInterval(cfg.Audit.FlushInterval),
		audit.WithMaxRetries(cfg.Audit.MaxRetries),
		audit.WithRetryBackoff(cfg.Audit.RetryBackoff),
		audit.WithHistory(cfg.Anomaly.HistoryLimit, cfg.RateLimit.MaxKeys),
	)
	if err != nil {
		return nil, fmt.Errorf("audit sink: %w", err)
	}
	sec := &security{sink: sink, maxBody: cfg.Input.MaxBodyBytes}

	blockOpts := []blocking.Option{
		blocking.WithEventLogger(sink),
		blocking.WithMetrics(m),
		blocking.WithLogger(log),
	}
	if pool != nil {
		blockOpts = append(blockOpts, blocking.WithDurableStore(blocklist.NewPostgres(pool.DB())))
	}
	if rc != nil {
		blockOpts = append(blockOpts,
			blocking.WithMirror(blocklist.NewRedisMirror(rc.Client)),
			blocking.WithBreaker(circuit.New("block_mirror")),
		)
	}
	if sec.blocks, err = blocking.New(blocklist.NewInMemoryStore(), blockOpts...); err != nil {
		return nil, fmt.Errorf("block registry: %w", err)
	}
	restored, err := sec.blocks.Restore(ctx)
	if err != nil {
		// The registry still works from memory; persisted blocks return on the next restart.
		log.Warn("failed to restore persisted blocks", "error", err)
	} else if restored > 0 {
		log.Info("persisted blocks restored", "count", restored)
	}

	if sec.ddos, err = window.New(cfg.DDoS.Threshold, cfg.DDoS.Window, cfg.DDoS.MaxKeys); err != nil {
		return nil, err
	}
	if sec.rate, err = window.New(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window, cfg.RateLimit.MaxKeys); err != nil {
		return nil, err
	}
	if cfg.TokenBucket.Enabled {
		sec.buckets, err = tokenbucket.New(tokenbucket.Config{
			MaxTokens:       cfg.TokenBucket.MaxTokens,
			RefillPerSecond: cfg.TokenBucket.RefillPerSecond,
			MaxKeys:         cfg.TokenBucket.MaxKeys,
		})
		if err != nil {
			return nil, err
		}
	}
	v, err := validator.New(validator.Config{
		MaxBodyBytes:        cfg.Input.MaxBodyBytes,
		AllowedContentTypes: cfg.Input.AllowedContentTypes,
		ScanQuery:           cfg.Input.ScanQuery,
	})
	if err != nil {
		return nil, err
	}
	detector, err := anomaly.New(anomaly.Config{
		ScanWindow:            cfg.Anomaly.ScanWindow,
		ScanRequestThreshold:  cfg.Anomaly.ScanRequestThreshold,
		ScanDistinctEndpoints: cfg.Anomaly.ScanDistinctEndpoints,
	})
	if err != nil {
		return nil, err
	}

	sec.pipeline, err = pipeline.New(cfg, pipeline.Stages{
		Blocks:    sec.blocks,
		DDoS:      sec.ddos,
		RateLimit: sec.rate,
		Buckets:   sec.buckets,
		Validator: v,
		Detector:  detector,
		Events:    sink,
		History:   sink,
	}, pipeline.WithLogger(log), pipeline.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return sec, nil
}

// routePattern labels latency by chi route so proxied paths share one series.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
