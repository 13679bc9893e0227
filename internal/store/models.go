package store

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
)

// Row types mirror migrations/00001_init.sql. Timestamps are written by the
// caller's clock, so gorm's automatic timestamping is turned off.

type walletRow struct {
	AccountID     string          `gorm:"primaryKey;size:64"`
	Balance       decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	LockedBalance decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Currency      string          `gorm:"size:3;not null"`
	CreatedAt     time.Time       `gorm:"autoCreateTime:false"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime:false"`
}

func (walletRow) TableName() string { return "wallets" }

func toWalletRow(w *domain.Wallet) *walletRow {
	return &walletRow{
		AccountID:     w.AccountID,
		Balance:       w.Balance,
		LockedBalance: w.LockedBalance,
		Currency:      w.Currency,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

func (r *walletRow) toDomain() *domain.Wallet {
	return &domain.Wallet{
		AccountID:     r.AccountID,
		Balance:       r.Balance,
		LockedBalance: r.LockedBalance,
		Currency:      r.Currency,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

type positionRow struct {
	AccountID       string          `gorm:"primaryKey;size:64"`
	Symbol          string          `gorm:"primaryKey;size:10"`
	Quantity        int64           `gorm:"not null"`
	AverageBuyPrice decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	TotalInvested   decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	CreatedAt       time.Time       `gorm:"autoCreateTime:false"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime:false"`
}

func (positionRow) TableName() string { return "positions" }

func toPositionRow(p *domain.Position) *positionRow {
	return &positionRow{
		AccountID:       p.AccountID,
		Symbol:          p.Symbol,
		Quantity:        p.Quantity,
		AverageBuyPrice: p.AverageBuyPrice,
		TotalInvested:   p.TotalInvested,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func (r *positionRow) toDomain() *domain.Position {
	return &domain.Position{
		AccountID:       r.AccountID,
		Symbol:          r.Symbol,
		Quantity:        r.Quantity,
		AverageBuyPrice: r.AverageBuyPrice,
		TotalInvested:   r.TotalInvested,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type instrumentRow struct {
	Symbol       string          `gorm:"primaryKey;size:10"`
	Name         string          `gorm:"not null"`
	CurrentPrice decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	IsActive     bool            `gorm:"not null"`
	IsTradeable  bool            `gorm:"not null"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime:false"`
}

func (instrumentRow) TableName() string { return "instruments" }

func toInstrumentRow(i *domain.Instrument) *instrumentRow {
	return &instrumentRow{
		Symbol:       i.Symbol,
		Name:         i.Name,
		CurrentPrice: i.CurrentPrice,
		IsActive:     i.IsActive,
		IsTradeable:  i.IsTradeable,
		UpdatedAt:    i.UpdatedAt,
	}
}

func (r *instrumentRow) toDomain() *domain.Instrument {
	return &domain.Instrument{
		Symbol:       r.Symbol,
		Name:         r.Name,
		CurrentPrice: r.CurrentPrice,
		IsActive:     r.IsActive,
		IsTradeable:  r.IsTradeable,
		UpdatedAt:    r.UpdatedAt,
	}
}

type orderRow struct {
	OrderID          string              `gorm:"primaryKey;size:36"`
	AccountID        string              `gorm:"size:64;not null;index:idx_orders_account_created,priority:1"`
	Symbol           string              `gorm:"size:10;not null"`
	Side             string              `gorm:"size:4;not null"`
	Type             string              `gorm:"size:6;not null"`
	Quantity         int64               `gorm:"not null"`
	LimitPrice       decimal.NullDecimal `gorm:"type:numeric(20,4)"`
	Status           string              `gorm:"size:10;not null;index:idx_orders_status_updated,priority:1"`
	FilledQuantity   int64               `gorm:"not null"`
	AverageFillPrice decimal.Decimal     `gorm:"type:numeric(20,4);not null"`
	Fee              decimal.Decimal     `gorm:"type:numeric(20,2);not null"`
	TotalAmount      decimal.Decimal     `gorm:"type:numeric(20,2);not null"`
	RejectionReason  string              `gorm:"size:32;not null"`
	CreatedAt        time.Time           `gorm:"autoCreateTime:false;index:idx_orders_account_created,priority:2"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime:false;index:idx_orders_status_updated,priority:2"`
	FilledAt         *time.Time
	CancelledAt      *time.Time
}

func (orderRow) TableName() string { return "orders" }

func toOrderRow(o *domain.Order) *orderRow {
	r := &orderRow{
		OrderID:          o.OrderID,
		AccountID:        o.AccountID,
		Symbol:           o.Symbol,
		Side:             string(o.Side),
		Type:             string(o.Type),
		Quantity:         o.Quantity,
		Status:           string(o.Status),
		FilledQuantity:   o.FilledQuantity,
		AverageFillPrice: o.AverageFillPrice,
		Fee:              o.Fee,
		TotalAmount:      o.TotalAmount,
		RejectionReason:  string(o.RejectionReason),
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		FilledAt:         o.FilledAt,
		CancelledAt:      o.CancelledAt,
	}
	if o.LimitPrice != nil {
		r.LimitPrice = decimal.NewNullDecimal(*o.LimitPrice)
	}
	return r
}

func (r *orderRow) toDomain() *domain.Order {
	o := &domain.Order{
		OrderID:          r.OrderID,
		AccountID:        r.AccountID,
		Symbol:           r.Symbol,
		Side:             domain.OrderSide(r.Side),
		Type:             domain.OrderType(r.Type),
		Quantity:         r.Quantity,
		Status:           domain.OrderStatus(r.Status),
		FilledQuantity:   r.FilledQuantity,
		AverageFillPrice: r.AverageFillPrice,
		Fee:              r.Fee,
		TotalAmount:      r.TotalAmount,
		RejectionReason:  domain.RejectionReason(r.RejectionReason),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
		FilledAt:         r.FilledAt,
		CancelledAt:      r.CancelledAt,
	}
	if r.LimitPrice.Valid {
		p := r.LimitPrice.Decimal
		o.LimitPrice = &p
	}
	return o
}

type tradeRow struct {
	TradeID     string          `gorm:"primaryKey;size:36"`
	OrderID     string          `gorm:"size:36;not null;uniqueIndex"`
	AccountID   string          `gorm:"size:64;not null;index:idx_trades_account_executed,priority:1"`
	Symbol      string          `gorm:"size:10;not null"`
	Side        string          `gorm:"size:4;not null"`
	Quantity    int64           `gorm:"not null"`
	Price       decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	TotalAmount decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Fee         decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	ExecutedAt  time.Time       `gorm:"not null;index:idx_trades_account_executed,priority:2"`
}

func (tradeRow) TableName() string { return "trades" }

func toTradeRow(t *domain.Trade) *tradeRow {
	return &tradeRow{
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

func (r *tradeRow) toDomain() *domain.Trade {
	return &domain.Trade{
		TradeID:     r.TradeID,
		OrderID:     r.OrderID,
		AccountID:   r.AccountID,
		Symbol:      r.Symbol,
		Side:        domain.OrderSide(r.Side),
		Quantity:    r.Quantity,
		Price:       r.Price,
		TotalAmount: r.TotalAmount,
		Fee:         r.Fee,
		ExecutedAt:  r.ExecutedAt,
	}
}

type transactionRow struct {
	TransactionID string          `gorm:"primaryKey;size:36"`
	AccountID     string          `gorm:"size:64;not null;index:idx_transactions_account_created,priority:1"`
	Type          string          `gorm:"size:16;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Fee           decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	Reference     string          `gorm:"size:64;not null"`
	Description   string          `gorm:"not null"`
	CreatedAt     time.Time       `gorm:"autoCreateTime:false;index:idx_transactions_account_created,priority:2"`
}

func (transactionRow) TableName() string { return "transactions" }

func toTransactionRow(t *domain.Transaction) *transactionRow {
	return &transactionRow{
		TransactionID: t.TransactionID,
		AccountID:     t.AccountID,
		Type:          string(t.Type),
		Amount:        t.Amount,
		Fee:           t.Fee,
		BalanceBefore: t.BalanceBefore,
		BalanceAfter:  t.BalanceAfter,
		Reference:     t.Reference,
		Description:   t.Description,
		CreatedAt:     t.CreatedAt,
	}
}

func (r *transactionRow) toDomain() *domain.Transaction {
	return &domain.Transaction{
		TransactionID: r.TransactionID,
		AccountID:     r.AccountID,
		Type:          domain.TransactionType(r.Type),
		Amount:        r.Amount,
		Fee:           r.Fee,
		BalanceBefore: r.BalanceBefore,
		BalanceAfter:  r.BalanceAfter,
		Reference:     r.Reference,
		Description:   r.Description,
		CreatedAt:     r.CreatedAt,
	}
}
