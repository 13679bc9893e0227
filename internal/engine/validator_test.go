package engine

import (
	"errors"
	"testing"

	"github.com/efreitasn/brokerage/internal/domain"
)

func TestValidator_Validate(t *testing.T) {
	env := newTestEnv(t)
	env.openAccount(t, "u1", "1000.00")
	env.setPrice(t, "AAPL", "100.00", true)
	env.setPrice(t, "HALT", "10.00", false)
	env.process(t, env.place(t, marketBuy("u1", "AAPL", 3)).OrderID)

	var validation *domain.ValidationError
	tests := []struct {
		name    string
		req     OrderRequest
		wantErr error
		wantVE  bool
	}{
		{name: "valid market buy", req: marketBuy("u1", "AAPL", 5)},
		{name: "lowercase symbol normalized", req: marketBuy("u1", " aapl ", 1)},
		{name: "valid limit sell", req: OrderRequest{AccountID: "u1", Symbol: "AAPL", Side: domain.OrderSideSell, Type: domain.OrderTypeLimit, Quantity: 3, LimitPrice: decPtr("150.1234")}},
		{name: "bad account id", req: marketBuy("u 1", "AAPL", 1), wantVE: true},
		{name: "bad side", req: OrderRequest{AccountID: "u1", Symbol: "AAPL", Side: "hold", Type: domain.OrderTypeMarket, Quantity: 1}, wantVE: true},
		{name: "bad type", req: OrderRequest{AccountID: "u1", Symbol: "AAPL", Side: domain.OrderSideBuy, Type: "stop", Quantity: 1}, wantVE: true},
		{name: "bad symbol", req: marketBuy("u1", "AAPL1", 1), wantVE: true},
		{name: "market with price", req: OrderRequest{AccountID: "u1", Symbol: "AAPL", Side: domain.OrderSideBuy, Type: domain.OrderTypeMarket, Quantity: 1, LimitPrice: decPtr("1")}, wantVE: true},
		{name: "zero quantity", req: marketBuy("u1", "AAPL", 0), wantErr: domain.ErrInvalidQuantity},
		{name: "negative quantity", req: marketBuy("u1", "AAPL", -2), wantErr: domain.ErrInvalidQuantity},
		{name: "limit without price", req: OrderRequest{AccountID: "u1", Symbol: "AAPL", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Quantity: 1}, wantErr: domain.ErrInvalidPrice},
		{name: "limit zero price", req: OrderRequest{AccountID: "u1", Symbol: "AAPL", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Quantity: 1, LimitPrice: decPtr("0")}, wantErr: domain.ErrInvalidPrice},
		{name: "limit too precise", req: OrderRequest{AccountID: "u1", Symbol: "AAPL", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit, Quantity: 1, LimitPrice: decPtr("10.00001")}, wantErr: domain.ErrInvalidPrice},
		{name: "unknown instrument", req: marketBuy("u1", "MSFT", 1), wantErr: domain.ErrInstrumentNotFound},
		{name: "untradeable instrument", req: marketBuy("u1", "HALT", 1), wantErr: domain.ErrInstrumentNotFound},
		{name: "unknown account", req: marketBuy("ghost", "AAPL", 1), wantErr: domain.ErrAccountNotFound},
		{name: "insufficient funds", req: marketBuy("u1", "AAPL", 8), wantErr: domain.ErrInsufficientFunds},
		{name: "oversell", req: marketSell("u1", "AAPL", 4), wantErr: domain.ErrInsufficientHoldings},
		{name: "sell without position", req: marketSell("u1", "HALT", 1), wantErr: domain.ErrInstrumentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.validate.Validate(env.ctx, tt.req)
			switch {
			case tt.wantVE:
				if !errors.As(err, &validation) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if got.Request.Symbol != "AAPL" {
					t.Fatalf("symbol = %q, want AAPL", got.Request.Symbol)
				}
			}
		})
	}
}

func TestValidator_ProvisionalTotal(t *testing.T) {
	env := newTestEnv(t)
	env.openAccount(t, "u1", "1000.00")
	env.setPrice(t, "AAPL", "33.335", true)

	got, err := env.validate.Validate(env.ctx, marketBuy("u1", "AAPL", 3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.TotalAmount.Equal(dec("100.01")) {
		t.Fatalf("total = %s, want 100.01", got.TotalAmount)
	}

	limit, err := env.validate.Validate(env.ctx, OrderRequest{
		AccountID: "u1", Symbol: "AAPL", Side: domain.OrderSideBuy, Type: domain.OrderTypeLimit,
		Quantity: 10, LimitPrice: decPtr("100.00"),
	})
	if err != nil {
		t.Fatalf("limit at exactly the balance: %v", err)
	}
	if !limit.Price.Equal(dec("100")) {
		t.Fatalf("price = %s, want limit price", limit.Price)
	}
}

func TestValidator_NoSideEffects(t *testing.T) {
	env := newTestEnv(t)
	env.openAccount(t, "u1", "1000.00")
	env.setPrice(t, "AAPL", "100.00", true)

	for i := 0; i < 3; i++ {
		if _, err := env.validate.Validate(env.ctx, marketBuy("u1", "AAPL", 10)); err != nil {
			t.Fatalf("validate: %v", err)
		}
	}
	if b := env.balance(t, "u1"); !b.Equal(dec("1000")) {
		t.Fatalf("balance = %s", b)
	}
	if _, total, _ := env.ledger.ListOrders(env.ctx, "u1", nil, 1, 10); total != 0 {
		t.Fatalf("validate created %d orders", total)
	}
}
