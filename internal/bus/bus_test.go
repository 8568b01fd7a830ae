package bus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/oriys/optionspulse/internal/domain"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(client)
}

func TestEnqueueDequeueAck(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	task := &domain.Task{ID: "t1", Kind: domain.TaskEnrichUnderlying, Args: []byte(`{"product":"NIFTY"}`)}
	require.NoError(t, b.Enqueue(ctx, "enrichment", task))

	depth, err := b.Depth(ctx, "enrichment")
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)

	got, err := b.Dequeue(ctx, "enrichment", time.Second, 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, task.ID, got.ID)

	depth, err = b.Depth(ctx, "enrichment")
	require.NoError(t, err)
	require.Equal(t, int64(0), depth)

	require.NoError(t, b.Ack(ctx, "enrichment", got))
}

func TestDequeueTimeout(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	task, err := b.Dequeue(ctx, "enrichment", 50*time.Millisecond, time.Second)
	require.NoError(t, err)
	require.Nil(t, task)
}

func TestRequeue(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	original := &domain.Task{ID: "t1", Kind: domain.TaskEnrichUnderlying, Retries: 0}
	require.NoError(t, b.Enqueue(ctx, "enrichment", original))

	dequeued, err := b.Dequeue(ctx, "enrichment", time.Second, 30*time.Second)
	require.NoError(t, err)

	updated := *dequeued
	updated.Retries = 1
	require.NoError(t, b.Requeue(ctx, "enrichment", dequeued, &updated))

	redelivered, err := b.Dequeue(ctx, "enrichment", time.Second, 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	require.Equal(t, 1, redelivered.Retries)
}

func TestReapExpiredLeases(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	task := &domain.Task{ID: "t1", Kind: domain.TaskEnrichUnderlying}
	require.NoError(t, b.Enqueue(ctx, "enrichment", task))

	_, err := b.Dequeue(ctx, "enrichment", time.Second, time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	reaped, err := b.ReapExpiredLeases(ctx, "enrichment")
	require.NoError(t, err)
	require.Equal(t, 1, reaped)

	depth, err := b.Depth(ctx, "enrichment")
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)
}

func TestCacheSetGetTTL(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	require.NoError(t, b.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := b.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	ok, err := b.Exists(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	_, err = b.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetIfAbsentIdempotency(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	claimed, err := b.SetIfAbsent(ctx, "gate", []byte("1"), time.Minute)
	require.NoError(t, err)
	require.True(t, claimed)

	claimedAgain, err := b.SetIfAbsent(ctx, "gate", []byte("1"), time.Minute)
	require.NoError(t, err)
	require.False(t, claimedAgain)
}

func TestPushAndListDLQ(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	e1 := &domain.DLQEntry{TaskID: "t1", TaskName: "enrich_underlying", Error: "boom"}
	e2 := &domain.DLQEntry{TaskID: "t2", TaskName: "ohlc", Error: "bust"}
	require.NoError(t, b.PushDLQ(ctx, "dlq:enrichment", e1))
	require.NoError(t, b.PushDLQ(ctx, "dlq:enrichment", e2))

	entries, err := b.ListDLQ(ctx, "dlq:enrichment", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// LPUSH means the most recently pushed entry is first.
	require.Equal(t, "t2", entries[0].TaskID)
}

func TestPublishSubscribe(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := b.Subscribe(ctx, "raw:underlying")
	defer sub.Close()

	time.Sleep(20 * time.Millisecond) // miniredis subscribe registration
	require.NoError(t, b.Publish(ctx, "raw:underlying", []byte(`{"product":"NIFTY"}`)))

	select {
	case msg := <-sub.Messages():
		require.Equal(t, "raw:underlying", msg.Channel)
		require.Equal(t, `{"product":"NIFTY"}`, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestPSubscribeWildcard(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := b.PSubscribe(ctx, "raw:*")
	defer sub.Close()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, "raw:option_chain", []byte("x")))

	select {
	case msg := <-sub.Messages():
		require.Equal(t, "raw:option_chain", msg.Channel)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pattern-matched message")
	}
}

func TestBackoffSequence(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second)

	require.Equal(t, time.Second, b.Next())
	require.Equal(t, 2*time.Second, b.Next())
	require.Equal(t, 4*time.Second, b.Next())
	require.Equal(t, 8*time.Second, b.Next())
	require.Equal(t, 8*time.Second, b.Next()) // capped

	b.Reset()
	require.Equal(t, time.Second, b.Next())
}
