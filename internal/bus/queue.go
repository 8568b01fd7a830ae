package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oriys/optionspulse/internal/domain"
)

// Queue task-dispatch keys, generalized from the teacher's
// RedisListNotifier LPUSH/BRPOP push-pull pattern, extended to carry the
// task payload itself (not just a wakeup signal) and to support late-ack
// redelivery via a per-queue processing list + lease hash.
func processingKey(queue string) string { return "queue:" + queue + ":processing" }
func inflightKey(queue string) string   { return "queue:" + queue + ":inflight" }
func leaseKey(queue string) string      { return "queue:" + queue + ":leases" }
func mainKey(queue string) string       { return "queue:" + queue }

// Enqueue pushes a task onto the named queue. Each raw:* channel maps to
// exactly one queue name (see internal/dispatcher).
func (b *Bus) Enqueue(ctx context.Context, queue string, task *domain.Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	return b.client.LPush(ctx, mainKey(queue), raw).Err()
}

// Dequeue blocks up to timeout for the next task on queue. On success, the
// task is moved into a processing list and a lease deadline is recorded so
// a worker crash mid-task results in redelivery once the lease expires
// (§4.2.7: RUNNING -> QUEUED on crash). Returns (nil, nil) on timeout.
func (b *Bus) Dequeue(ctx context.Context, queue string, timeout, lease time.Duration) (*domain.Task, error) {
	raw, err := b.client.BRPopLPush(ctx, mainKey(queue), processingKey(queue), timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var task domain.Task
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		// Poison entry: drop it from processing so it doesn't wedge the
		// lease reaper forever, and surface the decode error.
		b.client.LRem(ctx, processingKey(queue), 1, raw)
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.HSet(ctx, inflightKey(queue), task.ID, raw)
	pipe.HSet(ctx, leaseKey(queue), task.ID, time.Now().Add(lease).UnixNano())
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return &task, nil
}

// Ack removes a successfully completed (or permanently failed/DLQ'd) task
// from the processing list and clears its lease, matching §4.2.1's
// "acknowledged only after completion" contract.
func (b *Bus) Ack(ctx context.Context, queue string, task *domain.Task) error {
	raw, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal task: %w", err)
	}
	pipe := b.client.TxPipeline()
	pipe.LRem(ctx, processingKey(queue), 1, raw)
	pipe.HDel(ctx, inflightKey(queue), task.ID)
	pipe.HDel(ctx, leaseKey(queue), task.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// Requeue re-enqueues task for retry: it removes the processing entry and
// lease, then re-publishes the task (with its updated Retries counter) onto
// the main queue for pickup by any worker.
func (b *Bus) Requeue(ctx context.Context, queue string, original, updated *domain.Task) error {
	if err := b.Ack(ctx, queue, original); err != nil {
		return err
	}
	return b.Enqueue(ctx, queue, updated)
}

// ReapExpiredLeases scans the lease hash for entries past their deadline
// and moves the corresponding in-flight task back onto the main queue,
// implementing redelivery for a worker that crashed mid-task without
// acking or requeuing. Called periodically by the worker pool's single
// reaper goroutine.
func (b *Bus) ReapExpiredLeases(ctx context.Context, queue string) (int, error) {
	leases, err := b.client.HGetAll(ctx, leaseKey(queue)).Result()
	if err != nil {
		return 0, err
	}

	now := time.Now().UnixNano()
	reaped := 0
	for taskID, deadlineStr := range leases {
		var deadline int64
		if _, err := fmt.Sscanf(deadlineStr, "%d", &deadline); err != nil {
			continue
		}
		if now < deadline {
			continue
		}

		raw, err := b.client.HGet(ctx, inflightKey(queue), taskID).Result()
		if err == redis.Nil {
			b.client.HDel(ctx, leaseKey(queue), taskID)
			continue
		}
		if err != nil {
			continue
		}

		pipe := b.client.TxPipeline()
		pipe.LRem(ctx, processingKey(queue), 1, raw)
		pipe.HDel(ctx, inflightKey(queue), taskID)
		pipe.HDel(ctx, leaseKey(queue), taskID)
		pipe.LPush(ctx, mainKey(queue), raw)
		if _, err := pipe.Exec(ctx); err == nil {
			reaped++
		}
	}
	return reaped, nil
}

// Depth returns the approximate number of tasks waiting on queue (not
// counting in-flight tasks), used by the queue_depth metric.
func (b *Bus) Depth(ctx context.Context, queue string) (int64, error) {
	return b.client.LLen(ctx, mainKey(queue)).Result()
}
