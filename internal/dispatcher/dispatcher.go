// Package dispatcher is the subscriber-dispatcher (S): it subscribes to the
// raw ingestion channels on the bus and turns each message into one or more
// enrichment tasks, doing the minimum possible work on the hot path.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/optionspulse/internal/bus"
	"github.com/oriys/optionspulse/internal/config"
	"github.com/oriys/optionspulse/internal/domain"
	"github.com/oriys/optionspulse/internal/enrichment"
	"github.com/oriys/optionspulse/internal/logging"
	"github.com/oriys/optionspulse/internal/metrics"
)

const pattern = "raw:*"

// Dispatcher subscribes to raw:* and enqueues enrichment tasks.
type Dispatcher struct {
	bus    *bus.Bus
	cfg    config.Config
	stopCh chan struct{}
	done   chan struct{}
}

// New creates a Dispatcher bound to bus b.
func New(b *bus.Bus, cfg config.Config) *Dispatcher {
	return &Dispatcher{
		bus:    b,
		cfg:    cfg,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run subscribes and processes messages until ctx is cancelled or Stop is
// called. On bus disconnection it reconnects with exponential backoff
// (§4.1: 1s, doubling, capped at 30s) and resubscribes.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	backoff := bus.NewBackoff(d.cfg.Reconnect.InitialDelay, d.cfg.Reconnect.MaxDelay)

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		default:
		}

		sub := d.bus.PSubscribe(ctx, pattern)
		logging.Op().Info("dispatcher subscribed", "pattern", pattern)
		backoff.Reset()

		d.consume(ctx, sub)
		sub.Close()

		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		default:
		}

		delay := backoff.Next()
		logging.Op().Warn("dispatcher disconnected, reconnecting", "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		}
	}
}

// consume drains sub until its message channel closes (connection lost) or
// the dispatcher is asked to stop.
func (d *Dispatcher) consume(ctx context.Context, sub *bus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case msg, ok := <-sub.Messages():
			if !ok {
				return
			}
			d.handle(ctx, msg.Channel, []byte(msg.Payload))
		}
	}
}

// Stop signals Run to exit and waits for it to return.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.done
}

// handle decodes one raw message and enqueues its task(s). Malformed
// payloads are logged and dropped, never retried (§4.1).
func (d *Dispatcher) handle(ctx context.Context, channel string, payload []byte) {
	entry, ok := decodeTable[channel]
	if !ok {
		logging.Op().Warn("dispatcher received unknown channel", "channel", channel)
		return
	}

	tasks, err := entry(payload)
	if err != nil {
		logging.Op().Warn("dispatcher dropped malformed message", "channel", channel, "error", err)
		if m := metrics.Get(); m != nil {
			m.DispatchDroppedTotal.WithLabelValues("malformed").Inc()
		}
		return
	}

	for _, task := range tasks {
		d.enqueue(ctx, task)
	}
}

// enqueue pushes task onto the shared queue within a bounded budget,
// retrying once before dropping the message and incrementing a metric, per
// §4.1's "S never blocks on enqueue beyond a bounded timeout."
func (d *Dispatcher) enqueue(ctx context.Context, task *domain.Task) {
	budget := d.cfg.Timeouts.EnqueueBudget
	for attempt := 0; attempt < 2; attempt++ {
		enqueueCtx, cancel := context.WithTimeout(ctx, budget)
		err := d.bus.Enqueue(enqueueCtx, enrichment.Queue, task)
		cancel()
		if err == nil {
			if m := metrics.Get(); m != nil {
				m.TasksEnqueuedTotal.WithLabelValues(string(task.Kind)).Inc()
			}
			return
		}
		logging.Op().Warn("enqueue attempt failed", "task", task.ID, "attempt", attempt, "error", err)
	}

	logging.Op().Error("dropping task after enqueue retries exhausted", "task", task.ID, "kind", task.Kind)
	if m := metrics.Get(); m != nil {
		m.DispatchDroppedTotal.WithLabelValues("enqueue_timeout").Inc()
	}
}

// newTask wraps args for kind into a queued Task envelope.
func newTask(kind domain.TaskKind, args any) (*domain.Task, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal %s args: %w", kind, err)
	}
	return &domain.Task{
		ID:         uuid.NewString(),
		Kind:       kind,
		Args:       raw,
		EnqueuedAt: time.Now(),
	}, nil
}
