// Package bus implements the Message Bus (B) described in the spec: a
// single Redis deployment providing publish/subscribe with wildcard
// pattern support, a durable task queue, a key/value cache with TTL and
// list primitives, and the cross-instance channel the gateway uses for
// fan-out. Every capability is a thin wrapper over go-redis, grounded on
// the teacher's internal/cache and internal/queue packages.
package bus

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Bus is the concrete, Redis-backed implementation of every capability the
// core needs from the external message bus.
type Bus struct {
	client *redis.Client
}

// New builds a Bus from cfg. The client connects lazily on first use; New
// itself does not contact Redis (Dial does, with a ping).
func New(cfg Config) *Bus {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Bus{client: client}
}

// NewFromClient wraps an existing client, useful for tests against
// miniredis or a shared connection pool.
func NewFromClient(client *redis.Client) *Bus {
	return &Bus{client: client}
}

// Ping verifies connectivity to Redis.
func (b *Bus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (b *Bus) Close() error {
	return b.client.Close()
}

// Dial is a convenience constructor used by cmd/ binaries: build a Bus from
// config, ping it once with the given timeout, and surface any error.
func Dial(ctx context.Context, cfg Config, pingTimeout time.Duration) (*Bus, error) {
	b := New(cfg)
	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := b.Ping(pctx); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}
