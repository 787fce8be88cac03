// Package window implements the fixed-window counter used for both the
// per-key rate limit and DDoS burst detection.
//
// Windows are fixed, not sliding: a burst straddling a boundary can pass up
// to twice the threshold. The counter trades that precision for O(1) time
// and memory per key.
package window

import (
	"fmt"
	"time"

	"edgeguard/internal/security/models"
	dErrors "edgeguard/pkg/domain-errors"
	xsync "edgeguard/pkg/platform/sync"
)

// Result is the outcome of recording one request.
type Result struct {
	Allowed   bool
	Count     int
	Threshold int
	ResetAt   time.Time
}

// Store counts requests per key in fixed windows.
type Store struct {
	threshold int
	window    time.Duration
	counters  *xsync.ShardedMap[models.RateLimitState]
}

// New builds a counter allowing threshold requests per window.
// maxKeys bounds memory; 0 means unbounded.
func New(threshold int, window time.Duration, maxKeys int) (*Store, error) {
	if threshold <= 0 {
		return nil, dErrors.Configuration(fmt.Sprintf("window threshold must be positive, got %d", threshold))
	}
	if window <= 0 {
		return nil, dErrors.Configuration(fmt.Sprintf("window length must be positive, got %s", window))
	}
	return &Store{
		threshold: threshold,
		window:    window,
		counters:  xsync.NewShardedMap[models.RateLimitState](maxKeys),
	}, nil
}

// Record counts one request for key at now. A request at or after
// windowStart+window starts a new window with count 1.
func (s *Store) Record(key string, now time.Time) Result {
	var state models.RateLimitState
	s.counters.Compute(key, now, func(cur models.RateLimitState, ok bool) (models.RateLimitState, bool) {
		if !ok || !now.Before(cur.ResetAt()) {
			cur = models.RateLimitState{Count: 1, WindowStart: now, WindowLength: s.window}
		} else {
			cur.Count++
		}
		state = cur
		return cur, true
	})
	return Result{
		Allowed:   state.Count <= s.threshold,
		Count:     state.Count,
		Threshold: s.threshold,
		ResetAt:   state.ResetAt(),
	}
}

// Count returns the requests counted for key in the window containing now.
func (s *Store) Count(key string, now time.Time) int {
	state, ok := s.counters.Get(key)
	if !ok || !now.Before(state.ResetAt()) {
		return 0
	}
	return state.Count
}

// Reset forgets key so its next request opens a fresh window.
func (s *Store) Reset(key string) {
	s.counters.Delete(key)
}

// Sweep drops windows that closed before now.
func (s *Store) Sweep(now time.Time) int {
	return s.counters.Sweep(func(_ string, st models.RateLimitState) bool {
		return !now.Before(st.ResetAt())
	})
}

func (s *Store) Len() int {
	return s.counters.Len()
}

func (s *Store) Threshold() int {
	return s.threshold
}

func (s *Store) Window() time.Duration {
	return s.window
}
