// Package tokenbucket implements per-key token buckets on top of
// golang.org/x/time/rate with bounded, LRU-evicted key storage.
package tokenbucket

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	dErrors "edgeguard/pkg/domain-errors"
	xsync "edgeguard/pkg/platform/sync"
)

// ErrWaitAborted is returned by AcquireBlocking when the context ends, or its
// deadline would pass, before a token becomes available.
var ErrWaitAborted = errors.New("token wait aborted")

// Config sizes every bucket held by a Store.
type Config struct {
	MaxTokens       float64
	RefillPerSecond float64
	// MaxKeys bounds the number of tracked keys; 0 means unbounded.
	MaxKeys int
}

// Stats reports store occupancy for metrics.
type Stats struct {
	Keys      int
	Evictions int64
}

// Store holds one bucket per key. Withdrawals are atomic per key: the
// refill-then-withdraw step runs under the limiter's own lock.
type Store struct {
	limit     rate.Limit
	burst     int
	maxTokens float64
	interval  time.Duration
	buckets   *xsync.ShardedMap[*rate.Limiter]
	evictions atomic.Int64
}

// New validates cfg and builds a Store. A non-positive refill rate or a
// capacity below one token is a configuration error.
func New(cfg Config) (*Store, error) {
	if cfg.RefillPerSecond <= 0 || math.IsNaN(cfg.RefillPerSecond) || math.IsInf(cfg.RefillPerSecond, 0) {
		return nil, dErrors.Configuration(fmt.Sprintf("token bucket refill rate must be positive, got %v", cfg.RefillPerSecond))
	}
	if cfg.MaxTokens < 1 || math.IsInf(cfg.MaxTokens, 0) {
		return nil, dErrors.Configuration(fmt.Sprintf("token bucket capacity must be at least 1, got %v", cfg.MaxTokens))
	}

	s := &Store{
		limit:     rate.Limit(cfg.RefillPerSecond),
		burst:     int(math.Floor(cfg.MaxTokens)),
		maxTokens: math.Floor(cfg.MaxTokens),
		interval:  time.Duration(float64(time.Second) / cfg.RefillPerSecond),
	}
	s.buckets = xsync.NewShardedMap(cfg.MaxKeys, xsync.WithEvictionHook(func(string, *rate.Limiter) {
		s.evictions.Add(1)
	}))
	return s, nil
}

// TryAcquire withdraws one token for key at now, if one is available.
// New keys start with a full bucket.
func (s *Store) TryAcquire(key string, now time.Time) bool {
	var allowed bool
	s.buckets.Compute(key, now, func(l *rate.Limiter, ok bool) (*rate.Limiter, bool) {
		if !ok {
			l = rate.NewLimiter(s.limit, s.burst)
		}
		allowed = l.AllowN(now, 1)
		return l, true
	})
	return allowed
}

// AcquireBlocking polls for a token every refill interval until one is
// withdrawn. It returns ErrWaitAborted, wrapping the context error, when ctx
// is done or its deadline falls before the next attempt.
func (s *Store) AcquireBlocking(ctx context.Context, key string) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrWaitAborted, err)
		}
		now := time.Now()
		if s.TryAcquire(key, now) {
			return nil
		}
		if deadline, ok := ctx.Deadline(); ok && now.Add(s.interval).After(deadline) {
			return fmt.Errorf("%w: %w", ErrWaitAborted, context.DeadlineExceeded)
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrWaitAborted, ctx.Err())
		case <-timer.C:
		}
	}
}

// Tokens returns the tokens key would have at now. Unknown keys are full.
func (s *Store) Tokens(key string, now time.Time) float64 {
	l, ok := s.buckets.Get(key)
	if !ok {
		return s.maxTokens
	}
	return math.Max(0, math.Min(s.maxTokens, l.TokensAt(now)))
}

// Interval is the time one token takes to refill.
func (s *Store) Interval() time.Duration {
	return s.interval
}

// EvictIdle drops buckets untouched since cutoff. An idle bucket is full
// again, so dropping it loses nothing.
func (s *Store) EvictIdle(cutoff time.Time) int {
	return s.buckets.EvictIdle(cutoff)
}

func (s *Store) Stats() Stats {
	return Stats{Keys: s.buckets.Len(), Evictions: s.evictions.Load()}
}
