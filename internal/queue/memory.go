package queue

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// Memory is an in-process Queue. Jobs are sharded by account id across a
// fixed set of workers, so one account's jobs never run concurrently.
// Buffered jobs are lost on shutdown; the engine's sweeper re-enqueues them.
type Memory struct {
	shards []chan Job
	policy RetryPolicy
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

var _ Queue = (*Memory)(nil)

// NewMemory creates a queue with the given number of workers, each with a
// buffer of the given size.
func NewMemory(workers, buffer int, policy RetryPolicy, logger *slog.Logger) *Memory {
	if workers < 1 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	shards := make([]chan Job, workers)
	for i := range shards {
		shards[i] = make(chan Job, buffer)
	}
	return &Memory{
		shards: shards,
		policy: policy.withDefaults(),
		logger: logger,
		done:   make(chan struct{}),
	}
}

func shardFor(accountID string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(accountID))
	return int(h.Sum32() % uint32(n))
}

// Enqueue blocks while the account's shard is full.
func (q *Memory) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	select {
	case q.shards[shardFor(job.AccountID, len(q.shards))] <- job:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume starts one worker per shard and blocks until ctx is cancelled
// or the queue is closed.
func (q *Memory) Consume(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	for i, ch := range q.shards {
		i, ch := i, ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx, i, ch, h)
		}()
	}
	wg.Wait()
	return nil
}

func (q *Memory) work(ctx context.Context, shard int, ch <-chan Job, h Handler) {
	q.logger.Debug("queue worker started", slog.Int("shard", shard))
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case job := <-ch:
			if err := deliver(ctx, h, job, q.policy, q.logger); err != nil {
				q.logger.Info("job interrupted by shutdown", slog.String("order_id", job.OrderID))
				return
			}
		}
	}
}

// Close stops accepting jobs and stops the workers after their current job.
func (q *Memory) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
