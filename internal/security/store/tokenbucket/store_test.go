package tokenbucket

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "edgeguard/pkg/domain-errors"
)

// TokenBucketSuite tests the per-key token bucket.
//
// Justification: token conservation and the blocking wait's deadline handling
// are what keep a slow client from tying up request goroutines.
type TokenBucketSuite struct {
	suite.Suite
	now time.Time
}

func TestTokenBucketSuite(t *testing.T) {
	suite.Run(t, new(TokenBucketSuite))
}

func (s *TokenBucketSuite) SetupTest() {
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *TokenBucketSuite) newStore(maxTokens, refill float64) *Store {
	store, err := New(Config{MaxTokens: maxTokens, RefillPerSecond: refill})
	s.Require().NoError(err)
	return store
}

// =============================================================================
// Construction
// =============================================================================

func (s *TokenBucketSuite) TestRejectsInvalidConfig() {
	for _, cfg := range []Config{
		{MaxTokens: 5, RefillPerSecond: 0},
		{MaxTokens: 5, RefillPerSecond: -2},
		{MaxTokens: 0.5, RefillPerSecond: 1},
	} {
		_, err := New(cfg)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	}
}

// =============================================================================
// Conservation
// =============================================================================

func (s *TokenBucketSuite) TestNeverWithdrawsMoreThanCapacity() {
	store := s.newStore(3, 1)

	s.True(store.TryAcquire("ip1", s.now))
	s.True(store.TryAcquire("ip1", s.now))
	s.True(store.TryAcquire("ip1", s.now))
	s.False(store.TryAcquire("ip1", s.now), "bucket is empty")
	s.InDelta(0, store.Tokens("ip1", s.now), 0.001)
}

func (s *TokenBucketSuite) TestRefillsOverTime() {
	store := s.newStore(2, 2)
	s.True(store.TryAcquire("ip1", s.now))
	s.True(store.TryAcquire("ip1", s.now))
	s.False(store.TryAcquire("ip1", s.now))

	s.False(store.TryAcquire("ip1", s.now.Add(100*time.Millisecond)), "0.2 tokens is not enough")
	s.True(store.TryAcquire("ip1", s.now.Add(600*time.Millisecond)))
}

func (s *TokenBucketSuite) TestTokensCappedAtCapacity() {
	store := s.newStore(4, 10)
	s.True(store.TryAcquire("ip1", s.now))
	s.InDelta(4, store.Tokens("ip1", s.now.Add(time.Hour)), 0.001)
	s.InDelta(4, store.Tokens("never-seen", s.now), 0.001)
}

func (s *TokenBucketSuite) TestKeysAreIndependent() {
	store := s.newStore(1, 1)
	s.True(store.TryAcquire("ip1", s.now))
	s.False(store.TryAcquire("ip1", s.now))
	s.True(store.TryAcquire("ip2", s.now))
}

func (s *TokenBucketSuite) TestConcurrentWithdrawalsConserveTokens() {
	store := s.newStore(50, 0.001)
	var granted atomic.Int64
	var wg sync.WaitGroup
	for range 200 {
		wg.Go(func() {
			if store.TryAcquire("hot-key", s.now) {
				granted.Add(1)
			}
		})
	}
	wg.Wait()
	s.Equal(int64(50), granted.Load())
}

// =============================================================================
// Blocking acquire
// =============================================================================

func (s *TokenBucketSuite) TestAcquireBlockingWaitsForRefill() {
	store := s.newStore(1, 100) // one token every 10ms
	s.Require().True(store.TryAcquire("ip1", time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.NoError(store.AcquireBlocking(ctx, "ip1"))
}

func (s *TokenBucketSuite) TestAcquireBlockingRespectsDeadline() {
	store := s.newStore(1, 0.5) // one token every 2s
	s.Require().True(store.TryAcquire("ip1", time.Now()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := store.AcquireBlocking(ctx, "ip1")
	s.Require().Error(err)
	s.True(errors.Is(err, ErrWaitAborted))
	s.True(errors.Is(err, context.DeadlineExceeded))
	s.Less(time.Since(start), time.Second, "must not sleep past the deadline")
}

func (s *TokenBucketSuite) TestAcquireBlockingHonoursCancellation() {
	store := s.newStore(1, 0.5)
	s.Require().True(store.TryAcquire("ip1", time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	err := store.AcquireBlocking(ctx, "ip1")
	s.True(errors.Is(err, ErrWaitAborted))
	s.True(errors.Is(err, context.Canceled))
}

// =============================================================================
// Memory bounds
// =============================================================================

func (s *TokenBucketSuite) TestEvictIdle() {
	store := s.newStore(2, 1)
	store.TryAcquire("old", s.now)
	store.TryAcquire("fresh", s.now.Add(time.Hour))

	s.Equal(1, store.EvictIdle(s.now.Add(30*time.Minute)))
	s.Equal(1, store.Stats().Keys)
}

func (s *TokenBucketSuite) TestMaxKeysEvicts() {
	store, err := New(Config{MaxTokens: 1, RefillPerSecond: 1, MaxKeys: 32})
	s.Require().NoError(err)
	for i := range 500 {
		store.TryAcquire(time.Duration(i).String(), s.now)
	}
	stats := store.Stats()
	s.LessOrEqual(stats.Keys, 32)
	s.Positive(stats.Evictions)
}
