package blocklist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"edgeguard/internal/security/models"
)

const redisBlockKeyPrefix = "edgeguard:block:"

// RedisMirror shares blocks between gateway replicas. Temporary blocks are
// written with a TTL so Redis expires them on its own.
type RedisMirror struct {
	client *redis.Client
}

// NewRedisMirror constructs a mirror over a configured Redis client.
func NewRedisMirror(client *redis.Client) *RedisMirror {
	return &RedisMirror{client: client}
}

// Block writes entry. A block already expired at now is not written.
func (m *RedisMirror) Block(ctx context.Context, entry models.BlockEntry, now time.Time) error {
	ttl := time.Duration(0)
	if entry.ExpiresAt != nil {
		ttl = entry.Remaining(now)
		if ttl <= 0 {
			return nil
		}
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode block: %w", err)
	}
	if err := m.client.Set(ctx, blockKey(entry.Key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("mirror block: %w", err)
	}
	return nil
}

func (m *RedisMirror) Unblock(ctx context.Context, key string) (bool, error) {
	n, err := m.client.Del(ctx, blockKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("mirror unblock: %w", err)
	}
	return n > 0, nil
}

// IsBlocked returns the mirrored block for key, or nil when Redis has none
// or the entry expired before Redis evicted it.
func (m *RedisMirror) IsBlocked(ctx context.Context, key string, now time.Time) (*models.BlockEntry, error) {
	data, err := m.client.Get(ctx, blockKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("mirror lookup: %w", err)
	}
	var entry models.BlockEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode mirrored block: %w", err)
	}
	if !entry.Active(now) {
		return nil, nil
	}
	return &entry, nil
}

// Health pings Redis.
func (m *RedisMirror) Health(ctx context.Context) error {
	return m.client.Ping(ctx).Err()
}

func blockKey(key string) string {
	return redisBlockKeyPrefix + key
}
