package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oriys/optionspulse/internal/bus"
	"github.com/oriys/optionspulse/internal/config"
	"github.com/oriys/optionspulse/internal/domain"
	"github.com/oriys/optionspulse/internal/logging"
	"github.com/oriys/optionspulse/internal/metrics"
)

// Queue is the single task queue every dispatched task kind shares. A
// dedicated queue per kind isn't needed: the worker pool dispatches on
// domain.Task.Kind once a task is dequeued.
const Queue = "enrichment"

// Store is the persistence surface the worker pool needs, narrowed at the
// point of use the way the teacher's GatewayStore and ArtifactStore
// interfaces are: *store.Store satisfies it, and tests can substitute a
// fake to drive the retry/DLQ state machine without a live MongoDB.
type Store interface {
	InsertTick(ctx context.Context, tick *domain.UnderlyingTick) error
	InsertQuote(ctx context.Context, quote *domain.OptionQuote) error
	InsertChain(ctx context.Context, chain *domain.EnrichedChain) error
	TickRange(ctx context.Context, product string, from, to time.Time) ([]domain.UnderlyingTick, error)
	QuoteRange(ctx context.Context, product string, from, to time.Time) ([]domain.OptionQuote, error)
}

// Pool is the enrichment worker pool (W): a bounded set of pollers pulling
// tasks off the bus queue and workers running them to completion, adapted
// from the teacher's poller/worker split over a fixed-size channel instead
// of the teacher's adaptive-concurrency DB-backed batch fetch.
type Pool struct {
	bus    *bus.Bus
	store  Store
	cfg    config.Config
	taskCh chan *domain.Task
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// New creates a worker pool bound to bus b and persistent store s.
func New(b *bus.Bus, s Store, cfg config.Config) *Pool {
	return &Pool{
		bus:    b,
		store:  s,
		cfg:    cfg,
		taskCh: make(chan *domain.Task, cfg.Worker.Workers),
		stopCh: make(chan struct{}),
	}
}

// Start launches the pollers, workers, and lease-reaper goroutine.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < p.cfg.Worker.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	for i := 0; i < p.cfg.Worker.Pollers; i++ {
		p.wg.Add(1)
		go p.poller(i)
	}
	p.wg.Add(1)
	go p.reaper()

	logging.Op().Info("enrichment pool started",
		"workers", p.cfg.Worker.Workers,
		"pollers", p.cfg.Worker.Pollers,
	)
}

// Stop signals every goroutine to exit and waits for them to drain.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	logging.Op().Info("enrichment pool stopped")
}

// poller blocks on the bus queue and forwards tasks onto the shared
// worker channel, mirroring the teacher's poller/worker split but with a
// blocking BRPOPLPUSH in place of a timer-driven DB batch fetch.
func (p *Pool) poller(id int) {
	defer p.wg.Done()
	pollerID := fmt.Sprintf("enrichment-poller-%d", id)
	leaseDuration := p.leaseDuration()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeouts.BusRead+leaseDuration)
		task, err := p.bus.Dequeue(ctx, Queue, p.cfg.Timeouts.BusRead, leaseDuration)
		cancel()
		if err != nil {
			logging.Op().Error("dequeue failed", "poller", pollerID, "error", err)
			continue
		}
		if task == nil {
			continue
		}

		select {
		case p.taskCh <- task:
		case <-p.stopCh:
			return
		}
	}
}

// leaseDuration bounds how long a task may run before its lease expires and
// it is redelivered to another worker; set generously above the longest
// retry delay so a healthy worker never loses its own task mid-processing.
func (p *Pool) leaseDuration() time.Duration {
	return 30 * time.Second
}

// worker drains taskCh and runs each task to completion.
func (p *Pool) worker(id int) {
	defer p.wg.Done()
	workerID := fmt.Sprintf("enrichment-worker-%d", id)

	for {
		select {
		case <-p.stopCh:
			return
		case task := <-p.taskCh:
			p.process(workerID, task)
		}
	}
}

// reaper periodically reclaims tasks whose lease expired because the
// worker holding them crashed, per §4.2.7's RUNNING -> QUEUED transition.
func (p *Pool) reaper() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.cfg.Worker.PollInterval * 10)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeouts.BusRead)
			n, err := p.bus.ReapExpiredLeases(ctx, Queue)
			cancel()
			if err != nil {
				logging.Op().Error("reap expired leases failed", "error", err)
				continue
			}
			if n > 0 {
				logging.Op().Info("reclaimed expired leases", "count", n)
			}
		}
	}
}

// process runs task and applies the retry/DLQ state machine described in
// §4.2.1: up to cfg.Retry.MaxAttempts retries at the configured delays,
// then an append to the dead-letter queue.
func (p *Pool) process(workerID string, task *domain.Task) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeouts.StoreOp)
	defer cancel()

	result := p.dispatch(ctx, task)
	duration := time.Since(start)

	log := &logging.TaskLog{
		Timestamp:  start,
		TaskID:     task.ID,
		Kind:       string(task.Kind),
		DurationMs: duration.Milliseconds(),
		Attempt:    task.Retries,
	}

	if result.Succeeded() {
		log.Success = true
		logging.Default().Log(log)
		if m := metrics.Get(); m != nil {
			m.TasksProcessedTotal.WithLabelValues(string(task.Kind), "ok").Inc()
			m.TaskDuration.WithLabelValues(string(task.Kind)).Observe(float64(duration.Milliseconds()))
		}
		if err := p.bus.Ack(context.Background(), Queue, task); err != nil {
			logging.Op().Error("ack task failed", "worker", workerID, "task", task.ID, "error", err)
		}
		return
	}

	err := result.Err()
	log.Error = err.Error()

	if result.PermanentErr != nil || task.Retries >= p.cfg.Retry.MaxAttempts {
		log.DLQ = true
		logging.Default().Log(log)
		if m := metrics.Get(); m != nil {
			m.TasksProcessedTotal.WithLabelValues(string(task.Kind), "failed").Inc()
			m.TasksDLQTotal.WithLabelValues(string(task.Kind)).Inc()
		}
		p.sendToDLQ(task, err)
		if ackErr := p.bus.Ack(context.Background(), Queue, task); ackErr != nil {
			logging.Op().Error("ack dlq task failed", "worker", workerID, "task", task.ID, "error", ackErr)
		}
		return
	}

	logging.Default().Log(log)
	if m := metrics.Get(); m != nil {
		m.TasksRetriedTotal.WithLabelValues(string(task.Kind)).Inc()
	}

	delay := p.retryDelay(task.Retries)
	updated := *task
	updated.Retries++
	go p.requeueAfter(delay, task, &updated)
}

// retryDelay returns the configured delay for the given zero-based attempt,
// clamping to the last configured delay if the schedule runs short.
func (p *Pool) retryDelay(attempt int) time.Duration {
	delays := p.cfg.Retry.Delays
	if len(delays) == 0 {
		return time.Second
	}
	if attempt >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempt]
}

// requeueAfter waits delay then re-enqueues updated in place of original,
// running in its own goroutine so it doesn't block a worker slot.
func (p *Pool) requeueAfter(delay time.Duration, original, updated *domain.Task) {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-p.stopCh:
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeouts.BusRead)
	defer cancel()
	if err := p.bus.Requeue(ctx, Queue, original, updated); err != nil {
		logging.Op().Error("requeue task failed", "task", original.ID, "error", err)
	}
}

// sendToDLQ appends an exhausted or permanently-failed task to the
// dead-letter list.
func (p *Pool) sendToDLQ(task *domain.Task, cause error) {
	args, _ := json.Marshal(task.Args)
	entry := &domain.DLQEntry{
		TaskID:     task.ID,
		TaskName:   string(task.Kind),
		Error:      cause.Error(),
		Args:       args,
		EnqueuedAt: task.EnqueuedAt,
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeouts.BusRead)
	defer cancel()
	if err := p.bus.PushDLQ(ctx, p.cfg.DLQ.Key, entry); err != nil {
		logging.Op().Error("push dlq entry failed", "task", task.ID, "error", err)
	}
}
