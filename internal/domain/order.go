package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes limit orders from market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderSide indicates whether an order buys or sells.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus represents the lifecycle state of an order.
//
//	pending -> processing -> filled | rejected
//	pending -> cancelled
//
// Every execution is all-or-nothing, so there is no partially filled state.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusFilled     OrderStatus = "filled"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRejected   OrderStatus = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// Order is one trade intent submitted by an account.
type Order struct {
	OrderID          string
	AccountID        string
	Symbol           string
	Side             OrderSide
	Type             OrderType
	Quantity         int64
	LimitPrice       *decimal.Decimal // nil for market orders
	Status           OrderStatus
	FilledQuantity   int64
	AverageFillPrice decimal.Decimal
	Fee              decimal.Decimal
	TotalAmount      decimal.Decimal // provisional at admission, actual once filled
	RejectionReason  RejectionReason
	CreatedAt        time.Time
	UpdatedAt        time.Time
	FilledAt         *time.Time
	CancelledAt      *time.Time
}

// Clone returns a deep copy of the order.
func (o *Order) Clone() *Order {
	c := *o
	if o.LimitPrice != nil {
		p := *o.LimitPrice
		c.LimitPrice = &p
	}
	if o.FilledAt != nil {
		t := *o.FilledAt
		c.FilledAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		c.CancelledAt = &t
	}
	return &c
}

// ExecutionPrice returns the price the order fills at given the current
// market price: the limit price for limit orders, the market price otherwise.
func (o *Order) ExecutionPrice(market decimal.Decimal) decimal.Decimal {
	if o.Type == OrderTypeLimit && o.LimitPrice != nil {
		return *o.LimitPrice
	}
	return market
}
