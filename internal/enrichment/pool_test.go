package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/oriys/optionspulse/internal/bus"
	"github.com/oriys/optionspulse/internal/config"
	"github.com/oriys/optionspulse/internal/domain"
)

func newTestPool(t *testing.T, cfg config.Config) (*Pool, *bus.Bus) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := bus.NewFromClient(client)
	return New(b, nil, cfg), b
}

// failNTimesStore is a Store fake whose InsertTick fails with a transient
// error on its first n calls, then succeeds, letting a test drive the
// retry/DLQ state machine without a live MongoDB.
type failNTimesStore struct {
	n     int32
	calls int32
}

func (f *failNTimesStore) InsertTick(ctx context.Context, tick *domain.UnderlyingTick) error {
	if atomic.AddInt32(&f.calls, 1) <= f.n {
		return errors.New("simulated transient store failure")
	}
	return nil
}

func (f *failNTimesStore) InsertQuote(context.Context, *domain.OptionQuote) error   { return nil }
func (f *failNTimesStore) InsertChain(context.Context, *domain.EnrichedChain) error { return nil }
func (f *failNTimesStore) TickRange(context.Context, string, time.Time, time.Time) ([]domain.UnderlyingTick, error) {
	return nil, nil
}
func (f *failNTimesStore) QuoteRange(context.Context, string, time.Time, time.Time) ([]domain.OptionQuote, error) {
	return nil, nil
}

func newTestPoolWithStore(t *testing.T, cfg config.Config, s Store) (*Pool, *bus.Bus) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	b := bus.NewFromClient(client)
	return New(b, s, cfg), b
}

func minimalConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Worker.Workers = 2
	cfg.Worker.Pollers = 1
	cfg.Worker.PollInterval = 10 * time.Millisecond
	cfg.Timeouts.BusRead = 100 * time.Millisecond
	cfg.Timeouts.StoreOp = time.Second
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.Delays = []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}
	return *cfg
}

func TestRetryDelayClampsToLastConfigured(t *testing.T) {
	cfg := minimalConfig()
	p := &Pool{cfg: cfg}

	require.Equal(t, 10*time.Millisecond, p.retryDelay(0))
	require.Equal(t, 20*time.Millisecond, p.retryDelay(1))
	require.Equal(t, 20*time.Millisecond, p.retryDelay(5)) // schedule exhausted, clamp to last
}

func TestRetryDelayDefaultsWhenUnconfigured(t *testing.T) {
	p := &Pool{cfg: config.Config{}}
	require.Equal(t, time.Second, p.retryDelay(0))
}

// TestPoolRoutesUnknownKindToDLQ drives the full poller -> worker -> dispatch
// -> DLQ path for a task whose kind has no known handler, which dispatch
// treats as a permanent error without touching the store. This exercises
// Start/Stop and the process() DLQ branch without needing a live Mongo.
func TestPoolRoutesUnknownKindToDLQ(t *testing.T) {
	cfg := minimalConfig()
	p, b := newTestPool(t, cfg)
	ctx := context.Background()

	task := &domain.Task{ID: "bad-1", Kind: "not_a_real_kind", Args: []byte(`{}`)}
	require.NoError(t, b.Enqueue(ctx, Queue, task))

	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		entries, err := b.ListDLQ(ctx, cfg.DLQ.Key, 0)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := b.ListDLQ(ctx, cfg.DLQ.Key, 0)
	require.NoError(t, err)
	require.Equal(t, "bad-1", entries[0].TaskID)

	depth, err := b.Depth(ctx, Queue)
	require.NoError(t, err)
	require.Equal(t, int64(0), depth)
}

func TestRequeueAfterReschedulesWithIncrementedRetries(t *testing.T) {
	cfg := minimalConfig()
	p, b := newTestPool(t, cfg)
	ctx := context.Background()

	original := &domain.Task{ID: "t1", Kind: domain.TaskEnrichUnderlying, Retries: 0}
	require.NoError(t, b.Enqueue(ctx, Queue, original))

	dequeued, err := b.Dequeue(ctx, Queue, time.Second, 30*time.Second)
	require.NoError(t, err)

	updated := *dequeued
	updated.Retries = 1
	p.requeueAfter(5*time.Millisecond, dequeued, &updated)

	redelivered, err := b.Dequeue(ctx, Queue, time.Second, 30*time.Second)
	require.NoError(t, err)
	require.NotNil(t, redelivered)
	require.Equal(t, 1, redelivered.Retries)
}

func TestStartIsIdempotent(t *testing.T) {
	cfg := minimalConfig()
	p, _ := newTestPool(t, cfg)

	p.Start()
	p.Start() // must not double-spawn goroutines or deadlock
	p.Stop()
}

// TestGateDoesNotBlockRetryAfterFailedAttempt pins down the fix for the
// idempotency gate claiming its key before side effects run: a retry of a
// fingerprint that never reached markDone must still see itself as
// unprocessed, or a transiently-failing task would return success on its
// first retry without ever persisting, caching, or publishing anything
// (§8 scenario 6).
func TestGateDoesNotBlockRetryAfterFailedAttempt(t *testing.T) {
	cfg := minimalConfig()
	p, _ := newTestPool(t, cfg)
	ctx := context.Background()

	key := "test:idempotency:gate"

	done, err := p.gate(ctx, key)
	require.NoError(t, err)
	require.False(t, done)

	// Simulate a worker that gated the task but failed before its side
	// effects completed: markDone was never called.
	done, err = p.gate(ctx, key)
	require.NoError(t, err)
	require.False(t, done, "a retry after a failed attempt must redo the work, not observe a stale claim")

	require.NoError(t, p.markDone(ctx, key))

	done, err = p.gate(ctx, key)
	require.NoError(t, err)
	require.True(t, done, "once markDone has run, a duplicate delivery must short-circuit")
}

// TestEnrichUnderlyingTransientStoreFailureRetriesThenDLQs drives the full
// poller -> worker -> retry -> DLQ path for a task whose store write always
// fails transiently, using a fake Store so no live MongoDB is required. It
// asserts both that every retry actually re-attempts the store write (the
// idempotency key is never claimed early) and that the task ends up in the
// DLQ once its retry budget is exhausted (§4.2.1, §8 scenario 6).
func TestEnrichUnderlyingTransientStoreFailureRetriesThenDLQs(t *testing.T) {
	cfg := minimalConfig()
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.Delays = []time.Duration{5 * time.Millisecond, 5 * time.Millisecond}

	fs := &failNTimesStore{n: 100} // every attempt fails transiently
	p, b := newTestPoolWithStore(t, cfg, fs)
	ctx := context.Background()

	tick := domain.UnderlyingTick{Product: "NIFTY", TickID: 42, GeneratedAt: time.Now()}
	args, err := json.Marshal(&tick)
	require.NoError(t, err)
	task := &domain.Task{ID: "u-1", Kind: domain.TaskEnrichUnderlying, Args: args}
	require.NoError(t, b.Enqueue(ctx, Queue, task))

	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		entries, err := b.ListDLQ(ctx, cfg.DLQ.Key, 0)
		return err == nil && len(entries) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.GreaterOrEqual(t, atomic.LoadInt32(&fs.calls), int32(cfg.Retry.MaxAttempts+1),
		"store must be retried on every attempt, not short-circuited by a stale idempotency claim")

	exists, err := b.Exists(ctx, processedUnderlyingKey(tick.Product, tick.TickID))
	require.NoError(t, err)
	require.False(t, exists, "a task that never completed its side effects must not be marked processed")
}
