// Package queue delivers order-processing jobs to the execution engine
// asynchronously with at-least-once semantics. Jobs for one account are
// handled in submission order by a single worker.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// JobProcessOrder asks the engine to execute one order.
const JobProcessOrder = "process_order"

// ErrQueueClosed is returned by Enqueue after Close.
var ErrQueueClosed = errors.New("queue_closed")

// Job is a unit of work addressed to the execution engine.
type Job struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"order_id"`
	AccountID  string    `json:"account_id"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Handler processes jobs. Handle is retried on error until the retry
// policy gives up, after which Exhausted is called once.
type Handler interface {
	Handle(ctx context.Context, job Job) error
	Exhausted(ctx context.Context, job Job, err error)
}

// Queue is implemented by Memory and Kafka.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	// Consume delivers jobs to h until ctx is cancelled.
	Consume(ctx context.Context, h Handler) error
	Close() error
}

// RetryPolicy bounds redelivery of a failing job.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is used when a zero policy is supplied.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	return p
}

// Backoff returns the wait after the given number of failed attempts:
// BaseDelay * 2^(failures-1), capped at MaxDelay.
func (p RetryPolicy) Backoff(failures int) time.Duration {
	if failures < 1 {
		return p.BaseDelay
	}
	// Past 2^30 any sane base delay exceeds the cap.
	if failures > 31 {
		return p.MaxDelay
	}
	d := p.BaseDelay * time.Duration(1<<(failures-1))
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// deliver runs h.Handle with retries. It returns nil once the job was
// handled or exhausted, and ctx.Err() if shutdown interrupted it; in that
// case the job must not be acknowledged.
func deliver(ctx context.Context, h Handler, job Job, p RetryPolicy, logger *slog.Logger) error {
	for attempt := 1; ; attempt++ {
		job.Attempt = attempt
		err := h.Handle(ctx, job)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt >= p.MaxAttempts {
			logger.Error("job exhausted",
				slog.String("order_id", job.OrderID),
				slog.Int("attempts", attempt),
				slog.String("error", err.Error()),
			)
			h.Exhausted(ctx, job, err)
			return nil
		}

		wait := p.Backoff(attempt)
		logger.Warn("job failed, retrying",
			slog.String("order_id", job.OrderID),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.String("error", err.Error()),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
