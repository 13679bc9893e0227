package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/store"
)

var currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)

// OpenAccountRequest represents the input for opening an account.
type OpenAccountRequest struct {
	AccountID   string
	InitialCash decimal.Decimal
	Currency    string
}

// PositionValue is a position marked to the instrument's current price.
type PositionValue struct {
	Position             *domain.Position
	CurrentPrice         decimal.Decimal
	CurrentValue         decimal.Decimal
	UnrealizedPnL        decimal.Decimal
	UnrealizedPnLPercent decimal.Decimal
}

// Portfolio is an account's cash and positions with unrealized P&L.
type Portfolio struct {
	AccountID                 string
	Cash                      decimal.Decimal
	Positions                 []PositionValue
	TotalInvested             decimal.Decimal
	TotalCurrentValue         decimal.Decimal
	TotalUnrealizedPnL        decimal.Decimal
	TotalUnrealizedPnLPercent decimal.Decimal
	ValuedAt                  time.Time
}

// AccountService handles wallets, cash movements and portfolio valuation.
type AccountService struct {
	ledger store.Ledger
	now    func() time.Time
}

// NewAccountService creates a new AccountService.
func NewAccountService(ledger store.Ledger) *AccountService {
	return &AccountService{
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// OpenAccount creates the account's wallet. A positive initial cash amount
// is recorded as a deposit in the same unit of work, so a failed deposit
// leaves no wallet behind.
func (s *AccountService) OpenAccount(ctx context.Context, req OpenAccountRequest) (*domain.Wallet, error) {
	if err := checkAccountID(req.AccountID); err != nil {
		return nil, err
	}
	if err := domain.CheckAmount(req.InitialCash); err != nil {
		return nil, &domain.ValidationError{Message: "initial_cash: " + err.Error()}
	}
	if req.Currency == "" {
		req.Currency = domain.DefaultCurrency
	}
	if !currencyRegex.MatchString(req.Currency) {
		return nil, &domain.ValidationError{Message: "currency must be a 3-letter ISO code"}
	}

	var w *domain.Wallet
	err := s.ledger.WithTx(ctx, func(tx store.Tx) error {
		now := s.now()
		w = &domain.Wallet{
			AccountID: req.AccountID,
			Currency:  req.Currency,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.InsertWallet(w); err != nil {
			return err
		}
		if !req.InitialCash.IsPositive() {
			return nil
		}
		if _, err := s.record(tx, w, domain.TransactionDeposit, req.InitialCash, "initial deposit"); err != nil {
			return fmt.Errorf("initial deposit: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetWallet returns the account's wallet.
func (s *AccountService) GetWallet(ctx context.Context, accountID string) (*domain.Wallet, error) {
	return s.ledger.GetWallet(ctx, accountID)
}

// Deposit credits amount to the wallet and records a deposit transaction.
func (s *AccountService) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	if err := checkMovement(amount); err != nil {
		return nil, err
	}
	return s.move(ctx, accountID, domain.TransactionDeposit, amount, description)
}

// Withdraw debits amount from the wallet. It returns
// domain.ErrInsufficientFunds if the balance does not cover it.
func (s *AccountService) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	if err := checkMovement(amount); err != nil {
		return nil, err
	}
	return s.move(ctx, accountID, domain.TransactionWithdrawal, amount, description)
}

func checkMovement(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return &domain.ValidationError{Message: "amount must be greater than 0"}
	}
	if err := domain.CheckAmount(amount); err != nil {
		return &domain.ValidationError{Message: "amount: " + err.Error()}
	}
	return nil
}

func (s *AccountService) move(ctx context.Context, accountID string, typ domain.TransactionType, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	var txn *domain.Transaction
	err := s.ledger.WithTx(ctx, func(tx store.Tx) error {
		w, err := tx.LockWallet(accountID)
		if err != nil {
			return err
		}
		txn, err = s.record(tx, w, typ, amount, description)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// record applies a cash movement to a wallet held by tx and writes its
// ledger line.
func (s *AccountService) record(tx store.Tx, w *domain.Wallet, typ domain.TransactionType, amount decimal.Decimal, description string) (*domain.Transaction, error) {
	now := s.now()
	var before, after decimal.Decimal
	var err error
	if typ == domain.TransactionWithdrawal {
		before, after, err = w.Debit(amount, now)
		if err != nil {
			return nil, err
		}
	} else {
		before, after = w.Credit(amount, now)
	}
	if err := tx.SaveWallet(w); err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		TransactionID: uuid.New().String(),
		AccountID:     w.AccountID,
		Type:          typ,
		Amount:        amount,
		BalanceBefore: before,
		BalanceAfter:  after,
		Reference:     uuid.New().String(),
		Description:   description,
		CreatedAt:     now,
	}
	if err := tx.InsertTransaction(txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// ListTransactions returns the wallet's ledger lines, newest first.
func (s *AccountService) ListTransactions(ctx context.Context, accountID string, page, limit int) ([]*domain.Transaction, int, error) {
	if err := checkPage(page, limit); err != nil {
		return nil, 0, err
	}
	if _, err := s.ledger.GetWallet(ctx, accountID); err != nil {
		return nil, 0, err
	}
	return s.ledger.ListTransactions(ctx, accountID, page, limit)
}

// GetPortfolio values every position at the instrument's current price.
// A position whose instrument is gone is valued at its cost basis.
func (s *AccountService) GetPortfolio(ctx context.Context, accountID string) (*Portfolio, error) {
	w, err := s.ledger.GetWallet(ctx, accountID)
	if err != nil {
		return nil, err
	}
	positions, err := s.ledger.ListPositions(ctx, accountID)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{
		AccountID: accountID,
		Cash:      w.Balance,
		Positions: make([]PositionValue, 0, len(positions)),
		ValuedAt:  s.now(),
	}
	for _, pos := range positions {
		price := pos.AverageBuyPrice
		inst, err := s.ledger.GetInstrument(ctx, pos.Symbol)
		if err == nil {
			price = inst.CurrentPrice
		}

		value := domain.GrossAmount(price, pos.Quantity)
		pnl := value.Sub(pos.TotalInvested)
		p.Positions = append(p.Positions, PositionValue{
			Position:             pos,
			CurrentPrice:         price,
			CurrentValue:         value,
			UnrealizedPnL:        pnl,
			UnrealizedPnLPercent: percent(pnl, pos.TotalInvested),
		})
		p.TotalInvested = p.TotalInvested.Add(pos.TotalInvested)
		p.TotalCurrentValue = p.TotalCurrentValue.Add(value)
		p.TotalUnrealizedPnL = p.TotalUnrealizedPnL.Add(pnl)
	}
	p.TotalUnrealizedPnLPercent = percent(p.TotalUnrealizedPnL, p.TotalInvested)
	return p, nil
}

func percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Mul(decimal.NewFromInt(100)).DivRound(whole, 2)
}
