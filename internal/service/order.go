package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/engine"
	"github.com/efreitasn/brokerage/internal/notify"
	"github.com/efreitasn/brokerage/internal/queue"
	"github.com/efreitasn/brokerage/internal/store"
)

// OrderService handles order submission, retrieval, cancellation and
// listing. Execution happens asynchronously on the queue's workers.
type OrderService struct {
	ledger    store.Ledger
	validator *engine.Validator
	queue     queue.Queue
	notifier  notify.Notifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrderService creates a new OrderService with the given dependencies.
func NewOrderService(ledger store.Ledger, q queue.Queue, notifier notify.Notifier, logger *slog.Logger) *OrderService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &OrderService{
		ledger:    ledger,
		validator: engine.NewValidator(ledger),
		queue:     q,
		notifier:  notifier,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder admits the order, stores it as pending and enqueues it for
// execution. Admission errors are returned without persisting anything.
func (s *OrderService) CreateOrder(ctx context.Context, req engine.OrderRequest) (*domain.Order, error) {
	v, err := s.validator.Validate(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o := &domain.Order{
		OrderID:     uuid.New().String(),
		AccountID:   v.Request.AccountID,
		Symbol:      v.Request.Symbol,
		Side:        v.Request.Side,
		Type:        v.Request.Type,
		Quantity:    v.Request.Quantity,
		LimitPrice:  v.Request.LimitPrice,
		Status:      domain.OrderStatusPending,
		Fee:         decimal.Zero,
		TotalAmount: v.TotalAmount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.ledger.CreateOrder(ctx, o); err != nil {
		return nil, fmt.Errorf("store order: %w", err)
	}

	err = s.queue.Enqueue(ctx, queue.Job{
		Type:      queue.JobProcessOrder,
		OrderID:   o.OrderID,
		AccountID: o.AccountID,
	})
	if err != nil {
		s.logger.Error("enqueue order",
			slog.String("order_id", o.OrderID),
			slog.String("error", err.Error()),
		)
		s.abandon(o.OrderID)
		return nil, fmt.Errorf("enqueue order %s: %w", o.OrderID, err)
	}

	s.logger.Info("order accepted",
		slog.String("order_id", o.OrderID),
		slog.String("account_id", o.AccountID),
		slog.String("symbol", o.Symbol),
		slog.String("side", string(o.Side)),
		slog.Int64("quantity", o.Quantity),
	)
	return o, nil
}

// abandon rejects an order that never made it onto the queue. It runs
// detached from the request so a cancelled client cannot leave it pending.
func (s *OrderService) abandon(orderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	o, err := s.ledger.TransitionOrder(ctx, orderID, []domain.OrderStatus{domain.OrderStatusPending}, func(o *domain.Order) {
		o.Status = domain.OrderStatusRejected
		o.RejectionReason = domain.RejectExecutionError
		o.UpdatedAt = s.now()
	})
	if err != nil {
		s.logger.Error("reject unqueued order", slog.String("order_id", orderID), slog.String("error", err.Error()))
		return
	}
	s.notifier.Publish(ctx, o.AccountID, domain.EventOrderRejected, notify.NewOrderData(o))
}

// GetOrder returns one of the account's orders. Orders owned by another
// account are reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, accountID, orderID string) (*domain.Order, error) {
	o, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.AccountID != accountID {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// CancelOrder cancels a pending order. Once a worker has claimed the order
// it can no longer be cancelled.
func (s *OrderService) CancelOrder(ctx context.Context, accountID, orderID string) (*domain.Order, error) {
	if _, err := s.GetOrder(ctx, accountID, orderID); err != nil {
		return nil, err
	}

	o, err := s.ledger.TransitionOrder(ctx, orderID, []domain.OrderStatus{domain.OrderStatusPending}, func(o *domain.Order) {
		now := s.now()
		o.Status = domain.OrderStatusCancelled
		o.CancelledAt = &now
		o.UpdatedAt = now
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order cancelled", slog.String("order_id", o.OrderID))
	s.notifier.Publish(ctx, o.AccountID, domain.EventOrderCancelled, notify.NewOrderData(o))
	return o, nil
}

// ListOrders returns a page of the account's orders, newest first, with
// optional status filtering.
func (s *OrderService) ListOrders(ctx context.Context, accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	if status != nil && !status.Valid() {
		return nil, 0, &domain.ValidationError{
			Message: fmt.Sprintf("Invalid status filter: '%s'. Must be one of: pending, processing, filled, cancelled, rejected", *status),
		}
	}
	if err := checkPage(page, limit); err != nil {
		return nil, 0, err
	}
	if _, err := s.ledger.GetWallet(ctx, accountID); err != nil {
		return nil, 0, err
	}
	return s.ledger.ListOrders(ctx, accountID, status, page, limit)
}

// ListTrades returns a page of the account's executions, newest first.
func (s *OrderService) ListTrades(ctx context.Context, accountID string, page, limit int) ([]*domain.Trade, int, error) {
	if err := checkPage(page, limit); err != nil {
		return nil, 0, err
	}
	if _, err := s.ledger.GetWallet(ctx, accountID); err != nil {
		return nil, 0, err
	}
	return s.ledger.ListTrades(ctx, accountID, page, limit)
}
