package bus

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Publish publishes payload on channel. Per-channel publication order is
// preserved by Redis for a single publisher (§5's ordering guarantee).
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscription wraps a Redis pub/sub subscription, exposing a channel of
// raw message payloads and a Close method.
type Subscription struct {
	pubsub *redis.PubSub
	msgs   <-chan *redis.Message
}

// Messages returns the channel of incoming messages. It is closed when the
// subscription's context is cancelled or Close is called.
func (s *Subscription) Messages() <-chan *redis.Message {
	return s.msgs
}

// Close releases the subscription.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}

// Subscribe subscribes to one or more exact channel names.
func (b *Bus) Subscribe(ctx context.Context, channels ...string) *Subscription {
	ps := b.client.Subscribe(ctx, channels...)
	return &Subscription{pubsub: ps, msgs: ps.Channel()}
}

// PSubscribe subscribes to one or more glob-style channel patterns (e.g.
// "raw:*", "enriched:*"), satisfying B's wildcard/pattern requirement.
func (b *Bus) PSubscribe(ctx context.Context, patterns ...string) *Subscription {
	ps := b.client.PSubscribe(ctx, patterns...)
	return &Subscription{pubsub: ps, msgs: ps.Channel()}
}
