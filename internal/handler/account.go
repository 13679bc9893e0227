package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/service"
)

// AccountHandler handles HTTP requests for account, wallet and portfolio
// endpoints.
type AccountHandler struct {
	accounts *service.AccountService
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts *service.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type openAccountRequest struct {
	AccountID   string          `json:"account_id"`
	InitialCash decimal.Decimal `json:"initial_cash"`
	Currency    string          `json:"currency"`
}

type cashMovementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type walletResponse struct {
	AccountID     string `json:"account_id"`
	Balance       string `json:"balance"`
	LockedBalance string `json:"locked_balance"`
	Currency      string `json:"currency"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

type transactionResponse struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	Fee           string `json:"fee"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	Reference     string `json:"reference"`
	Description   string `json:"description"`
	CreatedAt     string `json:"created_at"`
}

type transactionListResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	Pagination   pagination            `json:"pagination"`
}

type holdingResponse struct {
	Symbol               string `json:"symbol"`
	Quantity             int64  `json:"quantity"`
	AverageBuyPrice      string `json:"average_buy_price"`
	TotalInvested        string `json:"total_invested"`
	CurrentPrice         string `json:"current_price"`
	CurrentValue         string `json:"current_value"`
	UnrealizedPnL        string `json:"unrealized_pnl"`
	UnrealizedPnLPercent string `json:"unrealized_pnl_percent"`
}

type portfolioSummary struct {
	Cash                      string `json:"cash"`
	TotalInvested             string `json:"total_invested"`
	TotalCurrentValue         string `json:"total_current_value"`
	TotalUnrealizedPnL        string `json:"total_unrealized_pnl"`
	TotalUnrealizedPnLPercent string `json:"total_unrealized_pnl_percent"`
}

type portfolioResponse struct {
	AccountID string            `json:"account_id"`
	Holdings  []holdingResponse `json:"holdings"`
	Summary   portfolioSummary  `json:"summary"`
	ValuedAt  string            `json:"valued_at"`
}

// Open handles POST /accounts.
func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	wallet, err := h.accounts.OpenAccount(r.Context(), service.OpenAccountRequest{
		AccountID:   req.AccountID,
		InitialCash: req.InitialCash,
		Currency:    req.Currency,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildWalletResponse(wallet))
}

// GetWallet handles GET /accounts/{account_id}/wallet.
func (h *AccountHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := h.accounts.GetWallet(r.Context(), chi.URLParam(r, "account_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildWalletResponse(wallet))
}

// Deposit handles POST /accounts/{account_id}/deposits.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.accounts.Deposit)
}

// Withdraw handles POST /accounts/{account_id}/withdrawals.
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, h.accounts.Withdraw)
}

func (h *AccountHandler) move(w http.ResponseWriter, r *http.Request, fn func(context.Context, string, decimal.Decimal, string) (*domain.Transaction, error)) {
	var req cashMovementRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	txn, err := fn(r.Context(), chi.URLParam(r, "account_id"), req.Amount, req.Description)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, buildTransactionResponse(txn))
}

// ListTransactions handles GET /accounts/{account_id}/transactions.
func (h *AccountHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePage(r)
	if err != nil {
		mapError(w, err)
		return
	}

	txns, total, err := h.accounts.ListTransactions(r.Context(), chi.URLParam(r, "account_id"), page, limit)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := transactionListResponse{
		Transactions: make([]transactionResponse, len(txns)),
		Pagination:   pagination{Page: page, Limit: limit, Total: total},
	}
	for i, t := range txns {
		resp.Transactions[i] = buildTransactionResponse(t)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetPortfolio handles GET /accounts/{account_id}/portfolio.
func (h *AccountHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := h.accounts.GetPortfolio(r.Context(), chi.URLParam(r, "account_id"))
	if err != nil {
		mapError(w, err)
		return
	}

	resp := portfolioResponse{
		AccountID: p.AccountID,
		Holdings:  make([]holdingResponse, len(p.Positions)),
		Summary: portfolioSummary{
			Cash:                      money(p.Cash),
			TotalInvested:             money(p.TotalInvested),
			TotalCurrentValue:         money(p.TotalCurrentValue),
			TotalUnrealizedPnL:        money(p.TotalUnrealizedPnL),
			TotalUnrealizedPnLPercent: money(p.TotalUnrealizedPnLPercent),
		},
		ValuedAt: formatTime(p.ValuedAt),
	}
	for i, pv := range p.Positions {
		resp.Holdings[i] = holdingResponse{
			Symbol:               pv.Position.Symbol,
			Quantity:             pv.Position.Quantity,
			AverageBuyPrice:      price(pv.Position.AverageBuyPrice),
			TotalInvested:        money(pv.Position.TotalInvested),
			CurrentPrice:         price(pv.CurrentPrice),
			CurrentValue:         money(pv.CurrentValue),
			UnrealizedPnL:        money(pv.UnrealizedPnL),
			UnrealizedPnLPercent: money(pv.UnrealizedPnLPercent),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func buildWalletResponse(wallet *domain.Wallet) walletResponse {
	return walletResponse{
		AccountID:     wallet.AccountID,
		Balance:       money(wallet.Balance),
		LockedBalance: money(wallet.LockedBalance),
		Currency:      wallet.Currency,
		CreatedAt:     formatTime(wallet.CreatedAt),
		UpdatedAt:     formatTime(wallet.UpdatedAt),
	}
}

func buildTransactionResponse(t *domain.Transaction) transactionResponse {
	return transactionResponse{
		TransactionID: t.TransactionID,
		AccountID:     t.AccountID,
		Type:          string(t.Type),
		Amount:        money(t.Amount),
		Fee:           money(t.Fee),
		BalanceBefore: money(t.BalanceBefore),
		BalanceAfter:  money(t.BalanceAfter),
		Reference:     t.Reference,
		Description:   t.Description,
		CreatedAt:     formatTime(t.CreatedAt),
	}
}
