package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
)

// Ledger is the durable record of wallets, positions, orders, trades and
// wallet transactions. Reads outside WithTx see committed state only.
type Ledger interface {
	CreateWallet(ctx context.Context, w *domain.Wallet) error
	GetWallet(ctx context.Context, accountID string) (*domain.Wallet, error)
	GetPosition(ctx context.Context, accountID, symbol string) (*domain.Position, error)
	ListPositions(ctx context.Context, accountID string) ([]*domain.Position, error)
	ListTransactions(ctx context.Context, accountID string, page, limit int) ([]*domain.Transaction, int, error)

	UpsertInstrument(ctx context.Context, inst *domain.Instrument) error
	// SetInstrumentPrice changes only the price and updated_at of an
	// existing instrument and returns the stored record.
	SetInstrumentPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) (*domain.Instrument, error)
	GetInstrument(ctx context.Context, symbol string) (*domain.Instrument, error)

	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrders(ctx context.Context, accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error)
	ListStaleOrders(ctx context.Context, statuses []domain.OrderStatus, updatedBefore time.Time, limit int) ([]*domain.Order, error)
	ListTrades(ctx context.Context, accountID string, page, limit int) ([]*domain.Trade, int, error)

	// TransitionOrder applies fn to the order only if its current status is
	// one of from. The check and the write are atomic with respect to every
	// other writer of the order.
	TransitionOrder(ctx context.Context, orderID string, from []domain.OrderStatus, fn func(*domain.Order)) (*domain.Order, error)

	// WithTx runs fn in a single unit of work. If fn returns an error
	// nothing it wrote survives.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is a unit of work. Lock* methods take an exclusive row lock held until
// the unit of work ends. Callers lock in the order: order, wallet, position.
// Returned records are copies; changes only persist through Save*/Insert*.
type Tx interface {
	LockOrder(orderID string) (*domain.Order, error)
	LockWallet(accountID string) (*domain.Wallet, error)
	LockPosition(accountID, symbol string) (*domain.Position, error)
	GetInstrument(symbol string) (*domain.Instrument, error)

	// InsertWallet returns domain.ErrAccountAlreadyExists if the account
	// already has a wallet.
	InsertWallet(w *domain.Wallet) error
	SaveOrder(o *domain.Order) error
	SaveWallet(w *domain.Wallet) error
	SavePosition(p *domain.Position) error
	DeletePosition(accountID, symbol string) error
	InsertTrade(t *domain.Trade) error
	InsertTransaction(t *domain.Transaction) error
}

func transitionOrder(ctx context.Context, l Ledger, orderID string, from []domain.OrderStatus, fn func(*domain.Order)) (*domain.Order, error) {
	var out *domain.Order
	err := l.WithTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrder(orderID)
		if err != nil {
			return err
		}
		if !slices.Contains(from, o.Status) {
			return fmt.Errorf("%w: order is %s", domain.ErrInvalidOrderState, o.Status)
		}
		fn(o)
		if err := tx.SaveOrder(o); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// pageBounds converts a 1-based page and limit into slice bounds over total
// items.
func pageBounds(page, limit, total int) (start, end int) {
	start = (page - 1) * limit
	if start >= total {
		return total, total
	}
	end = start + limit
	if end > total {
		end = total
	}
	return start, end
}
