package audit

import (
	"time"

	"edgeguard/internal/security/models"
	xsync "edgeguard/pkg/platform/sync"
)

// recentHistory keeps the last few request summaries per client so the
// anomaly detector never waits on the audit store.
type recentHistory struct {
	limit   int
	entries *xsync.ShardedMap[[]models.AuditEntry]
}

func newRecentHistory(limit, maxKeys int) *recentHistory {
	return &recentHistory{
		limit:   limit,
		entries: xsync.NewShardedMap[[]models.AuditEntry](maxKeys),
	}
}

// record stores a body-less copy of entry, keeping at most limit per key.
func (h *recentHistory) record(entry models.AuditEntry) {
	if h.limit <= 0 || entry.ClientKey == "" {
		return
	}
	slim := models.AuditEntry{
		ID:             entry.ID,
		RequestID:      entry.RequestID,
		ClientKey:      entry.ClientKey,
		Method:         entry.Method,
		Endpoint:       entry.Endpoint,
		ResponseStatus: entry.ResponseStatus,
		ResponseTimeMs: entry.ResponseTimeMs,
		Success:        entry.Success,
		UserAgent:      entry.UserAgent,
		Timestamp:      entry.Timestamp,
	}
	h.entries.Compute(entry.ClientKey, entry.Timestamp, func(cur []models.AuditEntry, _ bool) ([]models.AuditEntry, bool) {
		if len(cur) >= h.limit {
			next := make([]models.AuditEntry, 0, h.limit)
			next = append(next, cur[len(cur)-h.limit+1:]...)
			cur = next
		}
		return append(cur, slim), true
	})
}

// since returns the key's entries with Timestamp >= cutoff, oldest first.
func (h *recentHistory) since(key string, cutoff time.Time) []models.AuditEntry {
	all, ok := h.entries.Get(key)
	if !ok {
		return nil
	}
	out := make([]models.AuditEntry, 0, len(all))
	for _, e := range all {
		if !e.Timestamp.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out
}

// prune drops keys idle since cutoff.
func (h *recentHistory) prune(cutoff time.Time) int {
	return h.entries.EvictIdle(cutoff)
}

func (h *recentHistory) len() int {
	return h.entries.Len()
}
