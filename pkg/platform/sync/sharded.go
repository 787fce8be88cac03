// Package sync provides the sharded, bounded key-value map behind every
// per-client counter in the gateway.
package sync

import (
	"container/list"
	"sync"
	"time"
)

const shardCount = 32

// ShardedMap spreads keys over 32 independently locked shards. Each shard
// keeps its entries in recency order and evicts the least recently touched
// key once it reaches its share of the configured capacity.
type ShardedMap[V any] struct {
	shards   [shardCount]*shard[V]
	perShard int
	onEvict  func(key string, value V)
}

type shard[V any] struct {
	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front = most recently touched
}

type entry[V any] struct {
	key      string
	value    V
	lastSeen time.Time
}

// Option configures a ShardedMap.
type Option[V any] func(*ShardedMap[V])

// WithEvictionHook is called, under the shard lock, for every capacity eviction.
func WithEvictionHook[V any](fn func(key string, value V)) Option[V] {
	return func(m *ShardedMap[V]) {
		m.onEvict = fn
	}
}

// NewShardedMap creates a map holding at most maxKeys entries (rounded up to
// a multiple of the shard count). maxKeys <= 0 means unbounded.
func NewShardedMap[V any](maxKeys int, opts ...Option[V]) *ShardedMap[V] {
	m := &ShardedMap[V]{}
	if maxKeys > 0 {
		m.perShard = (maxKeys + shardCount - 1) / shardCount
	}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]*list.Element), order: list.New()}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Compute runs fn atomically for key. fn receives the current value (zero
// value and false when absent) and returns the value to store and whether to
// keep the key at all. Returning keep=false deletes the key.
func (m *ShardedMap[V]) Compute(key string, now time.Time, fn func(cur V, ok bool) (next V, keep bool)) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	el, exists := s.items[key]
	var cur V
	if exists {
		cur = el.Value.(*entry[V]).value
	}

	next, keep := fn(cur, exists)
	switch {
	case !keep && exists:
		s.order.Remove(el)
		delete(s.items, key)
	case !keep:
	case exists:
		e := el.Value.(*entry[V])
		e.value = next
		e.lastSeen = now
		s.order.MoveToFront(el)
	default:
		if m.perShard > 0 && s.order.Len() >= m.perShard {
			m.evictOldest(s)
		}
		s.items[key] = s.order.PushFront(&entry[V]{key: key, value: next, lastSeen: now})
	}
}

// Get returns the value for key without touching its recency.
func (m *ShardedMap[V]) Get(key string) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.items[key]; ok {
		return el.Value.(*entry[V]).value, true
	}
	var zero V
	return zero, false
}

// Delete removes key and reports whether it was present.
func (m *ShardedMap[V]) Delete(key string) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.items[key]
	if !ok {
		return false
	}
	s.order.Remove(el)
	delete(s.items, key)
	return true
}

// Len returns the number of keys across all shards.
func (m *ShardedMap[V]) Len() int {
	n := 0
	for _, s := range m.shards {
		s.mu.Lock()
		n += len(s.items)
		s.mu.Unlock()
	}
	return n
}

// EvictIdle removes keys not touched since cutoff and returns how many went.
func (m *ShardedMap[V]) EvictIdle(cutoff time.Time) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for el := s.order.Back(); el != nil; {
			e := el.Value.(*entry[V])
			if !e.lastSeen.Before(cutoff) {
				break
			}
			prev := el.Prev()
			s.order.Remove(el)
			delete(s.items, e.key)
			removed++
			el = prev
		}
		s.mu.Unlock()
	}
	return removed
}

// Sweep removes every key for which remove returns true.
func (m *ShardedMap[V]) Sweep(remove func(key string, value V) bool) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for el := s.order.Front(); el != nil; {
			next := el.Next()
			e := el.Value.(*entry[V])
			if remove(e.key, e.value) {
				s.order.Remove(el)
				delete(s.items, e.key)
				removed++
			}
			el = next
		}
		s.mu.Unlock()
	}
	return removed
}

// Range calls fn for every entry until fn returns false. fn must not call
// back into the map.
func (m *ShardedMap[V]) Range(fn func(key string, value V) bool) {
	for _, s := range m.shards {
		s.mu.Lock()
		for el := s.order.Front(); el != nil; el = el.Next() {
			e := el.Value.(*entry[V])
			if !fn(e.key, e.value) {
				s.mu.Unlock()
				return
			}
		}
		s.mu.Unlock()
	}
}

func (m *ShardedMap[V]) evictOldest(s *shard[V]) {
	el := s.order.Back()
	if el == nil {
		return
	}
	e := el.Value.(*entry[V])
	s.order.Remove(el)
	delete(s.items, e.key)
	if m.onEvict != nil {
		m.onEvict(e.key, e.value)
	}
}

func (m *ShardedMap[V]) shardFor(key string) *shard[V] {
	return m.shards[shardIndex(key)]
}

// shardIndex returns the shard for key. Empty keys land on shard 0.
func shardIndex(key string) int {
	if key == "" {
		return 0
	}
	return int(hashString(key) % shardCount)
}

// hashString is a djb2-style hash used only for shard selection.
func hashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
