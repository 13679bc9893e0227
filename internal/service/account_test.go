package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/store"
)

func TestOpenAccount(t *testing.T) {
	env := newTestEnv(t)

	w, err := env.accounts.OpenAccount(env.ctx, OpenAccountRequest{AccountID: "acc-1", InitialCash: dec("1000.00")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Balance.Equal(dec("1000")) || w.Currency != domain.DefaultCurrency {
		t.Fatalf("wallet = %+v", w)
	}

	txns, total, err := env.accounts.ListTransactions(env.ctx, "acc-1", 1, 10)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || txns[0].Type != domain.TransactionDeposit || !txns[0].BalanceAfter.Equal(dec("1000")) {
		t.Fatalf("initial deposit not recorded: total=%d %+v", total, txns)
	}

	if _, err := env.accounts.OpenAccount(env.ctx, OpenAccountRequest{AccountID: "acc-1"}); !errors.Is(err, domain.ErrAccountAlreadyExists) {
		t.Fatalf("expected ErrAccountAlreadyExists, got %v", err)
	}
}

type failingTx struct {
	store.Tx
	err error
}

func (tx failingTx) InsertTransaction(*domain.Transaction) error { return tx.err }

// failingDepositLedger fails every ledger line insert.
type failingDepositLedger struct {
	store.Ledger
	err error
}

func (l *failingDepositLedger) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return l.Ledger.WithTx(ctx, func(tx store.Tx) error {
		return fn(failingTx{Tx: tx, err: l.err})
	})
}

func TestOpenAccount_FailedDepositLeavesNoWallet(t *testing.T) {
	env := newTestEnv(t)
	boom := errors.New("disk full")
	broken := NewAccountService(&failingDepositLedger{Ledger: env.ledger, err: boom})

	_, err := broken.OpenAccount(env.ctx, OpenAccountRequest{AccountID: "acc-1", InitialCash: dec("1000.00")})
	if !errors.Is(err, boom) {
		t.Fatalf("expected deposit failure, got %v", err)
	}
	if _, err := env.accounts.GetWallet(env.ctx, "acc-1"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected no wallet after failed open, got %v", err)
	}

	w, err := env.accounts.OpenAccount(env.ctx, OpenAccountRequest{AccountID: "acc-1", InitialCash: dec("1000.00")})
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !w.Balance.Equal(dec("1000")) {
		t.Fatalf("balance = %s, want 1000", w.Balance)
	}
	if _, total, _ := env.accounts.ListTransactions(env.ctx, "acc-1", 1, 10); total != 1 {
		t.Fatalf("expected 1 transaction, got %d", total)
	}
}

func TestOpenAccount_ZeroCash(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.accounts.OpenAccount(env.ctx, OpenAccountRequest{AccountID: "acc-1", Currency: "EUR"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !w.Balance.IsZero() || w.Currency != "EUR" {
		t.Fatalf("wallet = %+v", w)
	}
	if _, total, _ := env.accounts.ListTransactions(env.ctx, "acc-1", 1, 10); total != 0 {
		t.Fatalf("expected no transactions, got %d", total)
	}
}

func TestOpenAccount_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  OpenAccountRequest
	}{
		{"bad id", OpenAccountRequest{AccountID: "has space"}},
		{"empty id", OpenAccountRequest{AccountID: ""}},
		{"negative cash", OpenAccountRequest{AccountID: "a", InitialCash: dec("-1")}},
		{"sub-cent cash", OpenAccountRequest{AccountID: "a", InitialCash: dec("1.001")}},
		{"bad currency", OpenAccountRequest{AccountID: "a", Currency: "usd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			_, err := env.accounts.OpenAccount(env.ctx, tt.req)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected *ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestDepositWithdraw(t *testing.T) {
	env := newTestEnv(t)
	env.openAccount(t, "acc-1", "100.00")

	dep, err := env.accounts.Deposit(env.ctx, "acc-1", dec("50.25"), "top up")
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if !dep.BalanceBefore.Equal(dec("100")) || !dep.BalanceAfter.Equal(dec("150.25")) {
		t.Fatalf("deposit balances = %s -> %s", dep.BalanceBefore, dep.BalanceAfter)
	}

	wd, err := env.accounts.Withdraw(env.ctx, "acc-1", dec("150.25"), "")
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !wd.BalanceAfter.IsZero() || wd.Type != domain.TransactionWithdrawal {
		t.Fatalf("withdrawal = %+v", wd)
	}

	if _, err := env.accounts.Withdraw(env.ctx, "acc-1", dec("0.01"), ""); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := env.accounts.Deposit(env.ctx, "ghost", dec("1"), ""); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	var ve *domain.ValidationError
	for _, amt := range []string{"0", "-5", "0.005"} {
		if _, err := env.accounts.Deposit(env.ctx, "acc-1", dec(amt), ""); !errors.As(err, &ve) {
			t.Errorf("deposit %s: expected *ValidationError, got %v", amt, err)
		}
	}

	_, total, _ := env.accounts.ListTransactions(env.ctx, "acc-1", 1, 10)
	if total != 3 {
		t.Fatalf("transactions = %d, want 3", total)
	}
}

func TestListTransactions_Errors(t *testing.T) {
	env := newTestEnv(t)
	if _, _, err := env.accounts.ListTransactions(env.ctx, "ghost", 1, 10); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	var ve *domain.ValidationError
	if _, _, err := env.accounts.ListTransactions(env.ctx, "ghost", 0, 10); !errors.As(err, &ve) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestGetPortfolio(t *testing.T) {
	env := newTestEnv(t)
	env.openAccount(t, "acc-1", "250.00")
	env.listInstrument(t, "AAPL", "120.00")
	env.listInstrument(t, "MSFT", "40.00")

	positions := []*domain.Position{
		{AccountID: "acc-1", Symbol: "AAPL", Quantity: 10, AverageBuyPrice: dec("100"), TotalInvested: dec("1000.00")},
		{AccountID: "acc-1", Symbol: "MSFT", Quantity: 5, AverageBuyPrice: dec("50"), TotalInvested: dec("250.00")},
		{AccountID: "acc-1", Symbol: "GONE", Quantity: 2, AverageBuyPrice: dec("10"), TotalInvested: dec("20.00")},
	}
	err := env.ledger.WithTx(env.ctx, func(tx store.Tx) error {
		for _, p := range positions {
			if err := tx.SavePosition(p); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	p, err := env.accounts.GetPortfolio(env.ctx, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.Cash.Equal(dec("250")) || len(p.Positions) != 3 {
		t.Fatalf("portfolio = %+v", p)
	}

	bySymbol := make(map[string]PositionValue)
	for _, pv := range p.Positions {
		bySymbol[pv.Position.Symbol] = pv
	}
	want := map[string]struct{ value, pnl, pct string }{
		"AAPL": {"1200", "200", "20"},
		"MSFT": {"200", "-50", "-20"},
		"GONE": {"20", "0", "0"},
	}
	for sym, w := range want {
		pv := bySymbol[sym]
		if !pv.CurrentValue.Equal(dec(w.value)) || !pv.UnrealizedPnL.Equal(dec(w.pnl)) || !pv.UnrealizedPnLPercent.Equal(dec(w.pct)) {
			t.Errorf("%s: value=%s pnl=%s pct=%s, want %s/%s/%s", sym, pv.CurrentValue, pv.UnrealizedPnL, pv.UnrealizedPnLPercent, w.value, w.pnl, w.pct)
		}
	}

	if !p.TotalInvested.Equal(dec("1270")) || !p.TotalCurrentValue.Equal(dec("1420")) || !p.TotalUnrealizedPnL.Equal(dec("150")) {
		t.Errorf("totals: invested=%s value=%s pnl=%s", p.TotalInvested, p.TotalCurrentValue, p.TotalUnrealizedPnL)
	}
	if !p.TotalUnrealizedPnLPercent.Equal(dec("11.81")) {
		t.Errorf("total pct = %s, want 11.81", p.TotalUnrealizedPnLPercent)
	}
}

func TestGetPortfolio_Empty(t *testing.T) {
	env := newTestEnv(t)
	env.openAccount(t, "acc-1", "0")

	p, err := env.accounts.GetPortfolio(env.ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Positions) != 0 || !p.TotalUnrealizedPnLPercent.Equal(decimal.Zero) {
		t.Fatalf("portfolio = %+v", p)
	}

	if _, err := env.accounts.GetPortfolio(env.ctx, "ghost"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
