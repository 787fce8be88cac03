// Package memory is the in-process audit store used when no database is
// configured, and in tests.
package memory

import (
	"context"
	"sync"

	"edgeguard/internal/security/models"
)

// Store keeps at most retention rows per table, discarding the oldest.
type Store struct {
	mu        sync.RWMutex
	retention int
	events    []models.SecurityEvent
	entries   []models.AuditEntry
}

// New creates a store. retention <= 0 means unbounded.
func New(retention int) *Store {
	return &Store{retention: retention}
}

func (s *Store) AppendEvents(_ context.Context, events []models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = trim(append(s.events, events...), s.retention)
	return nil
}

func (s *Store) AppendEntries(_ context.Context, entries []models.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = trim(append(s.entries, entries...), s.retention)
	return nil
}

func (s *Store) EventsInRange(_ context.Context, r models.TimeRange) ([]models.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.SecurityEvent, 0)
	for _, e := range s.events {
		if r.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) EntriesInRange(_ context.Context, r models.TimeRange) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AuditEntry, 0)
	for _, e := range s.entries {
		if r.Contains(e.Timestamp) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Counts returns the number of stored events and entries.
func (s *Store) Counts() (events, entries int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events), len(s.entries)
}

// trim drops the oldest rows beyond retention, copying so the discarded
// prefix can be collected.
func trim[T any](rows []T, retention int) []T {
	if retention <= 0 || len(rows) <= retention {
		return rows
	}
	kept := make([]T, retention, retention+retention/4)
	copy(kept, rows[len(rows)-retention:])
	return kept
}
