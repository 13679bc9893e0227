package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/store"
)

// OrderRequest is an order as submitted by an account.
type OrderRequest struct {
	AccountID  string
	Symbol     string
	Side       domain.OrderSide
	Type       domain.OrderType
	Quantity   int64
	LimitPrice *decimal.Decimal
}

// ValidatedOrder is a request that passed admission, with the price and
// provisional total it was checked against.
type ValidatedOrder struct {
	Request     OrderRequest
	Instrument  *domain.Instrument
	Price       decimal.Decimal
	TotalAmount decimal.Decimal
}

// Validator performs the synchronous, read-only admission check. Funds are
// checked against price × quantity without the fee; the fee is charged at
// execution.
type Validator struct {
	ledger store.Ledger
}

// NewValidator creates a Validator reading from ledger.
func NewValidator(ledger store.Ledger) *Validator {
	return &Validator{ledger: ledger}
}

// Validate returns the normalized request or the first admission error.
// It has no side effects.
func (v *Validator) Validate(ctx context.Context, req OrderRequest) (*ValidatedOrder, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))

	if err := checkShape(req); err != nil {
		return nil, err
	}

	inst, err := v.ledger.GetInstrument(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	if !inst.Tradeable() {
		return nil, domain.ErrInstrumentNotFound
	}

	wallet, err := v.ledger.GetWallet(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}

	price := inst.CurrentPrice
	if req.Type == domain.OrderTypeLimit {
		price = *req.LimitPrice
	}
	total := domain.GrossAmount(price, req.Quantity)

	switch req.Side {
	case domain.OrderSideBuy:
		if wallet.Balance.LessThan(total) {
			return nil, domain.ErrInsufficientFunds
		}
	case domain.OrderSideSell:
		pos, err := v.ledger.GetPosition(ctx, req.AccountID, req.Symbol)
		if errors.Is(err, domain.ErrPositionNotFound) {
			return nil, domain.ErrInsufficientHoldings
		}
		if err != nil {
			return nil, err
		}
		if pos.Quantity < req.Quantity {
			return nil, domain.ErrInsufficientHoldings
		}
	}

	return &ValidatedOrder{
		Request:     req,
		Instrument:  inst,
		Price:       price,
		TotalAmount: total,
	}, nil
}

func checkShape(req OrderRequest) error {
	if !domain.ValidAccountID(req.AccountID) {
		return &domain.ValidationError{Message: "account_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return &domain.ValidationError{Message: fmt.Sprintf("side must be buy or sell, got %q", req.Side)}
	}
	if req.Type != domain.OrderTypeMarket && req.Type != domain.OrderTypeLimit {
		return &domain.ValidationError{Message: fmt.Sprintf("type must be market or limit, got %q", req.Type)}
	}
	if !domain.ValidSymbol(req.Symbol) {
		return &domain.ValidationError{Message: "symbol must be 1-10 letters"}
	}
	if req.Quantity <= 0 {
		return domain.ErrInvalidQuantity
	}

	switch req.Type {
	case domain.OrderTypeLimit:
		if req.LimitPrice == nil || !req.LimitPrice.IsPositive() {
			return domain.ErrInvalidPrice
		}
		if !req.LimitPrice.Equal(req.LimitPrice.Truncate(domain.PriceScale)) {
			return domain.ErrInvalidPrice
		}
	case domain.OrderTypeMarket:
		if req.LimitPrice != nil {
			return &domain.ValidationError{Message: "limit_price must not be set for market orders"}
		}
	}
	return nil
}
