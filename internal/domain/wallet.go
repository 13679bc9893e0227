package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when an account is opened without one.
const DefaultCurrency = "USD"

// Wallet is an account's cash ledger. One per account.
type Wallet struct {
	AccountID     string
	Balance       decimal.Decimal
	LockedBalance decimal.Decimal
	Currency      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Credit adds amount to the balance and returns the balance before and after.
func (w *Wallet) Credit(amount decimal.Decimal, now time.Time) (before, after decimal.Decimal) {
	before = w.Balance
	w.Balance = w.Balance.Add(amount)
	w.UpdatedAt = now
	return before, w.Balance
}

// Debit subtracts amount from the balance. It returns ErrInsufficientFunds
// and leaves the wallet untouched if the balance would go negative.
func (w *Wallet) Debit(amount decimal.Decimal, now time.Time) (before, after decimal.Decimal, err error) {
	if w.Balance.LessThan(amount) {
		return w.Balance, w.Balance, ErrInsufficientFunds
	}
	before = w.Balance
	w.Balance = w.Balance.Sub(amount)
	w.UpdatedAt = now
	return before, w.Balance, nil
}

// TransactionType classifies a wallet ledger line.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionBuy        TransactionType = "buy"
	TransactionSell       TransactionType = "sell"
)

// Transaction is one line of a wallet's ledger. It is written in the same
// unit of work as the balance change it describes.
type Transaction struct {
	TransactionID string
	AccountID     string
	Type          TransactionType
	Amount        decimal.Decimal
	Fee           decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Reference     string
	Description   string
	CreatedAt     time.Time
}
