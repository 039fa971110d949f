package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is the key the snapshot is stored under
const DefaultRedisKey = "linker:snapshot"

// RedisSnapshotCache keeps the snapshot as a JSON value in Redis, so that
// several server instances share one cached copy
type RedisSnapshotCache struct {
	client *redis.Client
	key    string
	config CacheConfig
}

// NewRedisSnapshotCache creates a cache storing under key
func NewRedisSnapshotCache(client *redis.Client, key string, config CacheConfig) *RedisSnapshotCache {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisSnapshotCache{client: client, key: key, config: config}
}

func (c *RedisSnapshotCache) Get(ctx context.Context) (*Snapshot, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &s, nil
}

func (c *RedisSnapshotCache) Set(ctx context.Context, s *Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if err := c.client.Set(ctx, c.key, data, c.config.TTL).Err(); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func (c *RedisSnapshotCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
