// Package blocklist stores temporary and permanent client blocks.
package blocklist

import (
	"context"
	"fmt"
	"sort"
	"time"

	"edgeguard/internal/security/models"
	xsync "edgeguard/pkg/platform/sync"
)

// InMemoryStore keeps blocks in a sharded map. Expired entries are removed
// lazily on lookup and in bulk by Sweep.
type InMemoryStore struct {
	entries *xsync.ShardedMap[models.BlockEntry]
}

// NewInMemoryStore creates an unbounded in-memory block store. Blocks are
// never evicted for capacity: dropping one would silently unblock a client.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: xsync.NewShardedMap[models.BlockEntry](0)}
}

// Block inserts or replaces the block for entry.Key.
func (s *InMemoryStore) Block(_ context.Context, entry models.BlockEntry) error {
	if entry.Key == "" {
		return fmt.Errorf("block entry key is required")
	}
	s.entries.Compute(entry.Key, entry.BlockedAt, func(models.BlockEntry, bool) (models.BlockEntry, bool) {
		return entry, true
	})
	return nil
}

// Unblock removes the block for key and reports whether one existed.
func (s *InMemoryStore) Unblock(_ context.Context, key string) (bool, error) {
	return s.entries.Delete(key), nil
}

// IsBlocked returns the active block for key, or nil. An expired block found
// here is removed.
func (s *InMemoryStore) IsBlocked(_ context.Context, key string, now time.Time) (*models.BlockEntry, error) {
	var found *models.BlockEntry
	s.entries.Compute(key, now, func(cur models.BlockEntry, ok bool) (models.BlockEntry, bool) {
		if !ok {
			return cur, false
		}
		if !cur.Active(now) {
			return cur, false
		}
		entry := cur
		found = &entry
		return cur, true
	})
	return found, nil
}

// List returns the blocks active at now ordered by BlockedAt, newest first.
func (s *InMemoryStore) List(_ context.Context, now time.Time) ([]models.BlockEntry, error) {
	var out []models.BlockEntry
	s.entries.Range(func(_ string, entry models.BlockEntry) bool {
		if entry.Active(now) {
			out = append(out, entry)
		}
		return true
	})
	sortNewestFirst(out)
	return out, nil
}

// Sweep deletes every block expired at now.
func (s *InMemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	return s.entries.Sweep(func(_ string, entry models.BlockEntry) bool {
		return !entry.Active(now)
	}), nil
}

// Len counts stored entries, including expired ones not yet swept.
func (s *InMemoryStore) Len() int {
	return s.entries.Len()
}

func sortNewestFirst(entries []models.BlockEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].BlockedAt.Equal(entries[j].BlockedAt) {
			return entries[i].Key < entries[j].Key
		}
		return entries[i].BlockedAt.After(entries[j].BlockedAt)
	})
}
