// Package cleanup periodically drops expired windows, idle token buckets,
// expired blocks and stale request history so in-memory state stays bounded
// by active clients rather than by every client ever seen.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"edgeguard/internal/security/metrics"
	"edgeguard/internal/security/models"
	"edgeguard/internal/security/store/tokenbucket"
	"edgeguard/pkg/requestcontext"
)

// Result contains the results of a cleanup run.
type Result struct {
	WindowsExpired map[string]int
	BucketsEvicted int
	BlocksExpired  int
	HistoryPruned  int
	Duration       time.Duration
}

type WindowStore interface {
	Sweep(now time.Time) int
	Len() int
}

type BucketStore interface {
	EvictIdle(cutoff time.Time) int
	Stats() tokenbucket.Stats
}

type BlockRegistry interface {
	Sweep(ctx context.Context) (int, error)
	List(ctx context.Context) ([]models.BlockEntry, error)
}

type History interface {
	PruneHistory(cutoff time.Time) int
	HistoryLen() int
}

// Targets lists what a run cleans. Nil members are skipped.
type Targets struct {
	// Windows maps a store name, used as the metrics label, to its counter.
	Windows map[string]WindowStore
	Buckets BucketStore
	Blocks  BlockRegistry
	History History
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithBucketIdleTTL sets how long a token bucket may sit untouched before it
// is evicted. Default 10m.
func WithBucketIdleTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.bucketIdleTTL = ttl
		}
	}
}

// WithHistoryRetention sets how far back request history must reach for the
// anomaly detector. Default 10m.
func WithHistoryRetention(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.historyRetention = d
		}
	}
}

type Service struct {
	targets          Targets
	logger           *slog.Logger
	interval         time.Duration
	metrics          *metrics.Metrics
	bucketIdleTTL    time.Duration
	historyRetention time.Duration
}

func New(targets Targets, opts ...Option) *Service {
	service := &Service{
		targets:          targets,
		logger:           slog.Default(),
		interval:         time.Minute,
		bucketIdleTTL:    10 * time.Minute,
		historyRetention: 10 * time.Minute,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			startTime := time.Now()
			res, err := s.RunOnce(ctx)
			duration := time.Since(startTime)
			s.metrics.ObserveCleanupDuration(duration.Seconds())

			if err != nil {
				s.logger.Error("security_cleanup_failed",
					"error", err,
					"duration_ms", duration.Milliseconds(),
				)
				s.metrics.IncrementCleanupRuns("error")
				continue
			}

			res.Duration = duration
			s.logger.Info("security_cleanup_completed",
				"windows_expired", res.WindowsExpired,
				"buckets_evicted", res.BucketsEvicted,
				"blocks_expired", res.BlocksExpired,
				"history_pruned", res.HistoryPruned,
				"duration_ms", duration.Milliseconds(),
			)
			s.metrics.IncrementCleanupRuns("success")

		case <-ctx.Done():
			s.logger.Info("security cleanup worker stopping", "reason", ctx.Err())
			return ctx.Err()
		}
	}
}

// RunOnce executes a single cleanup run. Logging is handled by the caller
// (Start). The in-memory sweeps cannot fail, so they always run; a block
// registry error is returned after them.
func (s *Service) RunOnce(ctx context.Context) (*Result, error) {
	now := requestcontext.Now(ctx)
	res := &Result{WindowsExpired: make(map[string]int, len(s.targets.Windows))}

	for name, w := range s.targets.Windows {
		n := w.Sweep(now)
		res.WindowsExpired[name] = n
		s.metrics.AddCleanupRemoved(name, n)
		s.metrics.SetTrackedKeys(name, w.Len())
	}

	if b := s.targets.Buckets; b != nil {
		res.BucketsEvicted = b.EvictIdle(now.Add(-s.bucketIdleTTL))
		s.metrics.AddCleanupRemoved("token_bucket", res.BucketsEvicted)
		s.metrics.SetTrackedKeys("token_bucket", b.Stats().Keys)
	}

	if h := s.targets.History; h != nil {
		res.HistoryPruned = h.PruneHistory(now.Add(-s.historyRetention))
		s.metrics.AddCleanupRemoved("history", res.HistoryPruned)
		s.metrics.SetTrackedKeys("history", h.HistoryLen())
	}

	if r := s.targets.Blocks; r != nil {
		expired, err := r.Sweep(ctx)
		if err != nil {
			return nil, err
		}
		res.BlocksExpired = expired
		s.metrics.AddCleanupRemoved("blocks", expired)

		active, err := r.List(ctx)
		if err != nil {
			return nil, err
		}
		s.metrics.SetBlockedClients(len(active))
	}
	return res, nil
}
