package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/queue"
	"github.com/efreitasn/brokerage/internal/store"
)

const sweepBatch = 500

// Sweeper re-enqueues orders that have sat in PENDING or PROCESSING longer
// than staleAge, such as jobs lost from an in-memory queue on restart or
// jobs whose worker died mid-execution. Re-processing a settled order is a
// no-op.
type Sweeper struct {
	interval time.Duration
	staleAge time.Duration
	ledger   store.Ledger
	queue    queue.Queue
	logger   *slog.Logger
	now      func() time.Time
}

// NewSweeper creates a Sweeper that runs every interval.
func NewSweeper(interval, staleAge time.Duration, ledger store.Ledger, q queue.Queue, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		interval: interval,
		staleAge: staleAge,
		ledger:   ledger,
		queue:    q,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start sweeps once immediately, then on every tick until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		s.Sweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(ctx)
			}
		}
	}()
}

// Sweep re-enqueues one batch of stale orders and returns how many were
// enqueued. Each order is marked swept before it is enqueued, so it is not
// picked up again until it has been stale for another staleAge. Sweepers
// in other processes that listed the same order lose the mark and skip it.
func (s *Sweeper) Sweep(ctx context.Context) int {
	now := s.now()
	stale, err := s.ledger.ListStaleOrders(ctx,
		[]domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusProcessing},
		now.Add(-s.staleAge), sweepBatch)
	if err != nil {
		s.logger.Error("list stale orders", slog.String("error", err.Error()))
		return 0
	}

	n := 0
	for _, o := range stale {
		err := s.markSwept(ctx, o, now)
		if errors.Is(err, errAlreadySwept) {
			continue
		}
		if err != nil {
			s.logger.Warn("mark stale order", slog.String("order_id", o.OrderID), slog.String("error", err.Error()))
			continue
		}

		err = s.queue.Enqueue(ctx, queue.Job{
			Type:      queue.JobProcessOrder,
			OrderID:   o.OrderID,
			AccountID: o.AccountID,
		})
		if err != nil {
			s.logger.Warn("re-enqueue stale order", slog.String("order_id", o.OrderID), slog.String("error", err.Error()))
			continue
		}
		n++
	}
	if n > 0 {
		s.logger.Info("re-enqueued stale orders", slog.Int("count", n))
	}
	return n
}

var errAlreadySwept = errors.New("order changed since it was listed")

// markSwept bumps the order's updated_at to now if it still has the status
// and updated_at it was listed with.
func (s *Sweeper) markSwept(ctx context.Context, listed *domain.Order, now time.Time) error {
	return s.ledger.WithTx(ctx, func(tx store.Tx) error {
		o, err := tx.LockOrder(listed.OrderID)
		if errors.Is(err, domain.ErrOrderNotFound) {
			return errAlreadySwept
		}
		if err != nil {
			return err
		}
		if o.Status != listed.Status || !o.UpdatedAt.Equal(listed.UpdatedAt) {
			return errAlreadySwept
		}
		o.UpdatedAt = now
		return tx.SaveOrder(o)
	})
}
