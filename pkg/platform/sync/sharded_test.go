package sync

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func incr(m *ShardedMap[int], key string, now time.Time) int {
	var out int
	m.Compute(key, now, func(cur int, _ bool) (int, bool) {
		out = cur + 1
		return out, true
	})
	return out
}

func TestShardedMap_ComputeIsAtomicPerKey(t *testing.T) {
	m := NewShardedMap[int](0)
	var wg sync.WaitGroup
	for range 200 {
		wg.Go(func() {
			incr(m, "203.0.113.7", t0)
		})
	}
	wg.Wait()

	v, ok := m.Get("203.0.113.7")
	require.True(t, ok)
	assert.Equal(t, 200, v)
}

func TestShardedMap_ComputeDeletesWhenNotKept(t *testing.T) {
	m := NewShardedMap[int](0)
	incr(m, "a", t0)
	m.Compute("a", t0, func(cur int, ok bool) (int, bool) {
		assert.True(t, ok)
		return 0, false
	})
	_, ok := m.Get("a")
	assert.False(t, ok)

	m.Compute("never", t0, func(int, bool) (int, bool) { return 0, false })
	assert.Equal(t, 0, m.Len())
}

func TestShardedMap_BoundedCapacityEvictsLeastRecent(t *testing.T) {
	var evicted []string
	// capacity 32 => one entry per shard
	m := NewShardedMap[int](shardCount, WithEvictionHook(func(key string, _ int) {
		evicted = append(evicted, key)
	}))

	keys := sameShardKeys(3)
	incr(m, keys[0], t0)
	incr(m, keys[1], t0.Add(time.Second))
	incr(m, keys[2], t0.Add(2*time.Second))

	assert.Equal(t, []string{keys[0], keys[1]}, evicted)
	assert.Equal(t, 1, m.Len())
}

func TestShardedMap_EvictIdle(t *testing.T) {
	m := NewShardedMap[int](0)
	for i := range 10 {
		incr(m, "k"+strconv.Itoa(i), t0.Add(time.Duration(i)*time.Minute))
	}

	removed := m.EvictIdle(t0.Add(5 * time.Minute))
	assert.Equal(t, 5, removed)
	assert.Equal(t, 5, m.Len())
	_, ok := m.Get("k5")
	assert.True(t, ok)
}

func TestShardedMap_SweepAndRange(t *testing.T) {
	m := NewShardedMap[int](0)
	for i := range 6 {
		m.Compute("k"+strconv.Itoa(i), t0, func(int, bool) (int, bool) { return i, true })
	}

	removed := m.Sweep(func(_ string, v int) bool { return v%2 == 0 })
	assert.Equal(t, 3, removed)

	seen := 0
	m.Range(func(_ string, v int) bool {
		assert.Equal(t, 1, v%2)
		seen++
		return true
	})
	assert.Equal(t, 3, seen)
	assert.True(t, m.Delete("k1"))
	assert.False(t, m.Delete("k1"))
}

func TestShardDistribution(t *testing.T) {
	shards := make(map[int]bool)
	keys := []string{"203.0.113.1", "203.0.113.2", "198.51.100.9", "2001:db8::1", "unknown", "10.0.0.1"}
	for _, key := range keys {
		shards[shardIndex(key)] = true
	}
	assert.GreaterOrEqual(t, len(shards), 3, "expected keys to distribute across multiple shards")
	assert.Equal(t, 0, shardIndex(""))
}

func TestHashString(t *testing.T) {
	assert.Equal(t, hashString("test"), hashString("test"))
	assert.NotEqual(t, hashString("test1"), hashString("test2"))
	assert.Equal(t, uint32(0), hashString(""))
}

// sameShardKeys finds n distinct keys hashing to the same shard.
func sameShardKeys(n int) []string {
	target := shardIndex("seed")
	out := []string{"seed"}
	for i := 0; len(out) < n; i++ {
		k := "key-" + strconv.Itoa(i)
		if shardIndex(k) == target {
			out = append(out, k)
		}
	}
	return out
}
