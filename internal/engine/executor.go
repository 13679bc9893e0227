package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/notify"
	"github.com/efreitasn/brokerage/internal/queue"
	"github.com/efreitasn/brokerage/internal/store"
)

// errNotProcessing means another execution already finished the order.
var errNotProcessing = errors.New("order no longer processing")

// Executor runs queued orders against the ledger. Each execution moves
// cash, holdings, the trade, the wallet transaction and the order status
// in one unit of work; nothing is published until it commits.
type Executor struct {
	ledger   store.Ledger
	notifier notify.Notifier
	feeRate  decimal.Decimal
	logger   *slog.Logger
	now      func() time.Time
}

var _ queue.Handler = (*Executor)(nil)

// NewExecutor creates an Executor charging feeRate on every fill.
func NewExecutor(ledger store.Ledger, notifier notify.Notifier, feeRate decimal.Decimal, logger *slog.Logger) *Executor {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Executor{
		ledger:   ledger,
		notifier: notifier,
		feeRate:  feeRate,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle implements queue.Handler.
func (e *Executor) Handle(ctx context.Context, job queue.Job) error {
	if job.Type != queue.JobProcessOrder {
		e.logger.Warn("unknown job type", slog.String("type", job.Type))
		return nil
	}
	return e.Process(ctx, job.OrderID)
}

// Exhausted implements queue.Handler. The order is rejected with
// execution_error unless it already reached a terminal state.
func (e *Executor) Exhausted(ctx context.Context, job queue.Job, cause error) {
	from := []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusProcessing}
	o, err := e.reject(ctx, job.OrderID, from, domain.RejectExecutionError)
	if err != nil {
		e.logger.Error("reject exhausted order",
			slog.String("order_id", job.OrderID),
			slog.String("cause", cause.Error()),
			slog.String("error", err.Error()),
		)
		return
	}
	if o != nil {
		e.logger.Warn("order rejected after retries",
			slog.String("order_id", o.OrderID),
			slog.String("cause", cause.Error()),
		)
	}
}

// Process executes one order. Re-processing an order that already reached
// a terminal state is a no-op. Business rejections are recorded on the
// order and are not errors; any returned error is transient and the job
// should be retried.
func (e *Executor) Process(ctx context.Context, orderID string) error {
	o, err := e.ledger.GetOrder(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		e.logger.Warn("job for unknown order", slog.String("order_id", orderID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load order %s: %w", orderID, err)
	}
	if o.Status.Terminal() {
		e.logger.Debug("order already settled", slog.String("order_id", orderID), slog.String("status", string(o.Status)))
		return nil
	}

	if o.Status == domain.OrderStatusPending {
		_, err := e.ledger.TransitionOrder(ctx, orderID, []domain.OrderStatus{domain.OrderStatusPending}, func(o *domain.Order) {
			o.Status = domain.OrderStatusProcessing
			o.UpdatedAt = e.now()
		})
		if errors.Is(err, domain.ErrInvalidOrderState) {
			e.logger.Debug("lost claim", slog.String("order_id", orderID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim order %s: %w", orderID, err)
		}
	}

	filled, trade, err := e.execute(ctx, orderID)
	var rejection *domain.RejectionError
	switch {
	case errors.As(err, &rejection):
		e.logger.Info("order rejected",
			slog.String("order_id", orderID),
			slog.String("reason", string(rejection.Reason)),
		)
		processing := []domain.OrderStatus{domain.OrderStatusProcessing}
		if _, err := e.reject(ctx, orderID, processing, rejection.Reason); err != nil {
			return err
		}
		return nil
	case errors.Is(err, errNotProcessing):
		e.logger.Debug("order settled concurrently", slog.String("order_id", orderID))
		return nil
	case err != nil:
		return fmt.Errorf("execute order %s: %w", orderID, err)
	}

	e.logger.Info("order filled",
		slog.String("order_id", filled.OrderID),
		slog.String("account_id", filled.AccountID),
		slog.String("symbol", filled.Symbol),
		slog.String("side", string(filled.Side)),
		slog.Int64("quantity", filled.Quantity),
		slog.String("price", filled.AverageFillPrice.String()),
	)
	e.notifier.Publish(ctx, filled.AccountID, domain.EventOrderFilled, notify.NewOrderData(filled))
	e.notifier.Publish(ctx, trade.AccountID, domain.EventTradeExecuted, notify.NewTradeData(trade))
	return nil
}

func (e *Executor) execute(ctx context.Context, orderID string) (*domain.Order, *domain.Trade, error) {
	var (
		filled *domain.Order
		trade  *domain.Trade
	)
	err := e.ledger.WithTx(ctx, func(tx store.Tx) error {
		o, err := tx.LockOrder(orderID)
		if err != nil {
			return err
		}
		if o.Status != domain.OrderStatusProcessing {
			return errNotProcessing
		}

		inst, err := tx.GetInstrument(o.Symbol)
		if errors.Is(err, domain.ErrInstrumentNotFound) {
			return domain.Reject(err)
		}
		if err != nil {
			return err
		}
		if !inst.Tradeable() {
			return domain.Reject(domain.ErrInstrumentNotFound)
		}

		wallet, err := tx.LockWallet(o.AccountID)
		if errors.Is(err, domain.ErrAccountNotFound) {
			return domain.Reject(err)
		}
		if err != nil {
			return err
		}

		pos, err := tx.LockPosition(o.AccountID, o.Symbol)
		if err != nil && !errors.Is(err, domain.ErrPositionNotFound) {
			return err
		}

		now := e.now()
		price := o.ExecutionPrice(inst.CurrentPrice)
		gross := domain.GrossAmount(price, o.Quantity)
		fee := domain.Fee(gross, e.feeRate)

		txn := &domain.Transaction{
			TransactionID: uuid.New().String(),
			AccountID:     o.AccountID,
			Fee:           fee,
			Reference:     o.OrderID,
			Description:   fmt.Sprintf("%s %d %s @ %s", o.Side, o.Quantity, o.Symbol, price.StringFixed(domain.AmountScale)),
			CreatedAt:     now,
		}

		switch o.Side {
		case domain.OrderSideBuy:
			debit := gross.Add(fee)
			before, after, err := wallet.Debit(debit, now)
			if err != nil {
				return domain.Reject(err)
			}
			if pos == nil {
				pos = &domain.Position{AccountID: o.AccountID, Symbol: o.Symbol, CreatedAt: now}
			}
			pos.ApplyBuy(o.Quantity, gross, now)
			if err := tx.SavePosition(pos); err != nil {
				return err
			}
			txn.Type = domain.TransactionBuy
			txn.Amount = debit
			txn.BalanceBefore, txn.BalanceAfter = before, after

		case domain.OrderSideSell:
			if pos == nil {
				return domain.Reject(domain.ErrInsufficientHoldings)
			}
			if err := pos.ApplySell(o.Quantity, now); err != nil {
				return domain.Reject(err)
			}
			if pos.Closed() {
				err = tx.DeletePosition(o.AccountID, o.Symbol)
			} else {
				err = tx.SavePosition(pos)
			}
			if err != nil {
				return err
			}
			credit := gross.Sub(fee)
			before, after := wallet.Credit(credit, now)
			txn.Type = domain.TransactionSell
			txn.Amount = credit
			txn.BalanceBefore, txn.BalanceAfter = before, after

		default:
			return domain.Reject(fmt.Errorf("unknown side %q", o.Side))
		}

		if err := tx.SaveWallet(wallet); err != nil {
			return err
		}
		if err := tx.InsertTransaction(txn); err != nil {
			return err
		}

		t := &domain.Trade{
			TradeID:     uuid.New().String(),
			OrderID:     o.OrderID,
			AccountID:   o.AccountID,
			Symbol:      o.Symbol,
			Side:        o.Side,
			Quantity:    o.Quantity,
			Price:       price,
			TotalAmount: gross,
			Fee:         fee,
			ExecutedAt:  now,
		}
		if err := tx.InsertTrade(t); err != nil {
			return err
		}

		o.Status = domain.OrderStatusFilled
		o.FilledQuantity = o.Quantity
		o.AverageFillPrice = price
		o.Fee = fee
		o.TotalAmount = gross
		o.FilledAt = &now
		o.UpdatedAt = now
		if err := tx.SaveOrder(o); err != nil {
			return err
		}

		filled, trade = o, t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return filled, trade, nil
}

// reject moves the order to REJECTED if it is still in one of from and
// publishes order.rejected. It returns a nil order if the order had
// already moved on.
func (e *Executor) reject(ctx context.Context, orderID string, from []domain.OrderStatus, reason domain.RejectionReason) (*domain.Order, error) {
	o, err := e.ledger.TransitionOrder(ctx, orderID, from, func(o *domain.Order) {
		o.Status = domain.OrderStatusRejected
		o.RejectionReason = reason
		o.UpdatedAt = e.now()
	})
	if errors.Is(err, domain.ErrInvalidOrderState) || errors.Is(err, domain.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reject order %s: %w", orderID, err)
	}
	e.notifier.Publish(ctx, o.AccountID, domain.EventOrderRejected, notify.NewOrderData(o))
	return o, nil
}
