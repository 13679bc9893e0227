// Package notify publishes order and trade events to accounts over
// webhooks, Kafka and websockets. Publishing is best-effort: it never
// blocks on delivery and never fails the caller.
package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
)

// Notifier publishes an event for one account.
type Notifier interface {
	Publish(ctx context.Context, accountID, eventType string, payload any)
}

// Event is the envelope every transport delivers.
type Event struct {
	Event     string `json:"event"`
	AccountID string `json:"account_id,omitempty"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

func newEvent(accountID, eventType string, payload any) Event {
	return Event{
		Event:     eventType,
		AccountID: accountID,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Data:      payload,
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, string, any) {}

// Multi fans an event out to several notifiers.
type Multi []Notifier

func (m Multi) Publish(ctx context.Context, accountID, eventType string, payload any) {
	for _, n := range m {
		n.Publish(ctx, accountID, eventType, payload)
	}
}

// OrderData is the payload of order.* events.
type OrderData struct {
	OrderID          string           `json:"order_id"`
	AccountID        string           `json:"account_id"`
	Symbol           string           `json:"symbol"`
	Side             string           `json:"side"`
	Type             string           `json:"type"`
	Quantity         int64            `json:"quantity"`
	LimitPrice       *decimal.Decimal `json:"limit_price,omitempty"`
	Status           string           `json:"status"`
	FilledQuantity   int64            `json:"filled_quantity"`
	AverageFillPrice decimal.Decimal  `json:"average_fill_price"`
	Fee              decimal.Decimal  `json:"fee"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
	RejectionReason  string           `json:"rejection_reason,omitempty"`
}

// NewOrderData builds an order event payload.
func NewOrderData(o *domain.Order) OrderData {
	return OrderData{
		OrderID:          o.OrderID,
		AccountID:        o.AccountID,
		Symbol:           o.Symbol,
		Side:             string(o.Side),
		Type:             string(o.Type),
		Quantity:         o.Quantity,
		LimitPrice:       o.LimitPrice,
		Status:           string(o.Status),
		FilledQuantity:   o.FilledQuantity,
		AverageFillPrice: o.AverageFillPrice,
		Fee:              o.Fee,
		TotalAmount:      o.TotalAmount,
		RejectionReason:  string(o.RejectionReason),
	}
}

// TradeData is the payload of trade.executed.
type TradeData struct {
	TradeID     string          `json:"trade_id"`
	OrderID     string          `json:"order_id"`
	AccountID   string          `json:"account_id"`
	Symbol      string          `json:"symbol"`
	Side        string          `json:"side"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Fee         decimal.Decimal `json:"fee"`
	ExecutedAt  time.Time       `json:"executed_at"`
}

// NewTradeData builds a trade event payload.
func NewTradeData(t *domain.Trade) TradeData {
	return TradeData{
		TradeID:     t.TradeID,
		OrderID:     t.OrderID,
		AccountID:   t.AccountID,
		Symbol:      t.Symbol,
		Side:        string(t.Side),
		Quantity:    t.Quantity,
		Price:       t.Price,
		TotalAmount: t.TotalAmount,
		Fee:         t.Fee,
		ExecutedAt:  t.ExecutedAt,
	}
}
