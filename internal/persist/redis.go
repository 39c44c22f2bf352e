package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis persists the snapshot under a single key in a Redis server.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedis creates a Redis backend. TTL of zero keeps the snapshot
// until the next save overwrites it.
func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if key == "" {
		key = "pulse:snapshot"
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

// Load fetches the stored snapshot. An absent key is not an error.
func (r *Redis) Load(ctx context.Context) ([]byte, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot from redis: %w", err)
	}
	return data, nil
}

// Save stores the snapshot.
func (r *Redis) Save(ctx context.Context, snapshot []byte) error {
	if err := r.client.Set(ctx, r.key, snapshot, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot to redis: %w", err)
	}
	return nil
}
