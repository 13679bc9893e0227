package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is the immutable execution record of a filled order.
type Trade struct {
	TradeID     string
	OrderID     string
	AccountID   string
	Symbol      string
	Side        OrderSide
	Quantity    int64
	Price       decimal.Decimal
	TotalAmount decimal.Decimal
	Fee         decimal.Decimal
	ExecutedAt  time.Time
}
