package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is an account's holding of one instrument with its cost basis.
// A position with zero quantity does not exist.
type Position struct {
	AccountID       string
	Symbol          string
	Quantity        int64
	AverageBuyPrice decimal.Decimal
	TotalInvested   decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// ApplyBuy adds quantity bought for gross and recomputes the weighted
// average cost basis.
func (p *Position) ApplyBuy(quantity int64, gross decimal.Decimal, now time.Time) {
	p.TotalInvested = p.TotalInvested.Add(gross)
	p.Quantity += quantity
	p.AverageBuyPrice = p.TotalInvested.DivRound(decimal.NewFromInt(p.Quantity), PriceScale)
	p.UpdatedAt = now
}

// ApplySell removes quantity and scales total invested down at the
// unchanged average buy price. It returns ErrInsufficientHoldings without
// mutating the position if quantity exceeds the holding.
func (p *Position) ApplySell(quantity int64, now time.Time) error {
	if p.Quantity < quantity {
		return ErrInsufficientHoldings
	}
	p.Quantity -= quantity
	p.TotalInvested = RoundAmount(p.AverageBuyPrice.Mul(decimal.NewFromInt(p.Quantity)))
	p.UpdatedAt = now
	return nil
}

// Closed reports whether the position should be deleted.
func (p *Position) Closed() bool {
	return p.Quantity == 0
}
