package bus

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a cache key does not exist.
var ErrNotFound = errors.New("bus: key not found")

// Get retrieves the raw bytes stored at key.
func (b *Bus) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores value at key with the given TTL. A zero TTL means no
// expiration.
func (b *Bus) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

// Exists reports whether key exists and has not expired.
func (b *Bus) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetIfAbsent stores value at key with ttl only if the key does not already
// exist, returning whether it set the value.
func (b *Bus) SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return b.client.SetNX(ctx, key, value, ttl).Result()
}

// TTL returns the remaining time-to-live for key.
func (b *Bus) TTL(ctx context.Context, key string) (time.Duration, error) {
	return b.client.TTL(ctx, key).Result()
}
