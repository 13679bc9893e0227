package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/engine"
	"github.com/efreitasn/brokerage/internal/service"
)

// OrderHandler handles HTTP requests for order and trade endpoints.
type OrderHandler struct {
	orders *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orders *service.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// createOrderRequest is the JSON request body for POST /accounts/{account_id}/orders.
type createOrderRequest struct {
	Symbol     string           `json:"symbol"`
	Side       string           `json:"side"`
	Type       string           `json:"type"`
	Quantity   int64            `json:"quantity"`
	LimitPrice *decimal.Decimal `json:"limit_price"`
}

// orderResponse is the JSON form of an order. Nullable fields are always
// present.
type orderResponse struct {
	OrderID          string  `json:"order_id"`
	AccountID        string  `json:"account_id"`
	Symbol           string  `json:"symbol"`
	Side             string  `json:"side"`
	Type             string  `json:"type"`
	Quantity         int64   `json:"quantity"`
	LimitPrice       *string `json:"limit_price"`
	Status           string  `json:"status"`
	FilledQuantity   int64   `json:"filled_quantity"`
	AverageFillPrice *string `json:"average_fill_price"`
	Fee              string  `json:"fee"`
	TotalAmount      string  `json:"total_amount"`
	RejectionReason  *string `json:"rejection_reason"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
	FilledAt         *string `json:"filled_at"`
	CancelledAt      *string `json:"cancelled_at"`
}

type orderListResponse struct {
	Orders     []orderResponse `json:"orders"`
	Pagination pagination      `json:"pagination"`
}

type tradeResponse struct {
	TradeID     string `json:"trade_id"`
	OrderID     string `json:"order_id"`
	Symbol      string `json:"symbol"`
	Side        string `json:"side"`
	Quantity    int64  `json:"quantity"`
	Price       string `json:"price"`
	TotalAmount string `json:"total_amount"`
	Fee         string `json:"fee"`
	ExecutedAt  string `json:"executed_at"`
}

type tradeListResponse struct {
	Trades     []tradeResponse `json:"trades"`
	Pagination pagination      `json:"pagination"`
}

// Create handles POST /accounts/{account_id}/orders. The order is accepted
// for asynchronous execution, so the response is 202 with status pending.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	order, err := h.orders.CreateOrder(r.Context(), engine.OrderRequest{
		AccountID:  chi.URLParam(r, "account_id"),
		Symbol:     req.Symbol,
		Side:       domain.OrderSide(req.Side),
		Type:       domain.OrderType(req.Type),
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, buildOrderResponse(order))
}

// Get handles GET /accounts/{account_id}/orders/{order_id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "account_id"), chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// Cancel handles DELETE /accounts/{account_id}/orders/{order_id}.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.CancelOrder(r.Context(), chi.URLParam(r, "account_id"), chi.URLParam(r, "order_id"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// List handles GET /accounts/{account_id}/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePage(r)
	if err != nil {
		mapError(w, err)
		return
	}
	var status *domain.OrderStatus
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.OrderStatus(s)
		status = &st
	}

	orders, total, err := h.orders.ListOrders(r.Context(), chi.URLParam(r, "account_id"), status, page, limit)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := orderListResponse{
		Orders:     make([]orderResponse, len(orders)),
		Pagination: pagination{Page: page, Limit: limit, Total: total},
	}
	for i, o := range orders {
		resp.Orders[i] = buildOrderResponse(o)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// ListTrades handles GET /accounts/{account_id}/trades.
func (h *OrderHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	page, limit, err := parsePage(r)
	if err != nil {
		mapError(w, err)
		return
	}

	trades, total, err := h.orders.ListTrades(r.Context(), chi.URLParam(r, "account_id"), page, limit)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := tradeListResponse{
		Trades:     make([]tradeResponse, len(trades)),
		Pagination: pagination{Page: page, Limit: limit, Total: total},
	}
	for i, t := range trades {
		resp.Trades[i] = tradeResponse{
			TradeID:     t.TradeID,
			OrderID:     t.OrderID,
			Symbol:      t.Symbol,
			Side:        string(t.Side),
			Quantity:    t.Quantity,
			Price:       price(t.Price),
			TotalAmount: money(t.TotalAmount),
			Fee:         money(t.Fee),
			ExecutedAt:  formatTime(t.ExecutedAt),
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

func buildOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:        o.OrderID,
		AccountID:      o.AccountID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		Type:           string(o.Type),
		Quantity:       o.Quantity,
		Status:         string(o.Status),
		FilledQuantity: o.FilledQuantity,
		Fee:            money(o.Fee),
		TotalAmount:    money(o.TotalAmount),
		CreatedAt:      formatTime(o.CreatedAt),
		UpdatedAt:      formatTime(o.UpdatedAt),
		FilledAt:       formatTimePtr(o.FilledAt),
		CancelledAt:    formatTimePtr(o.CancelledAt),
	}
	if o.LimitPrice != nil {
		p := price(*o.LimitPrice)
		resp.LimitPrice = &p
	}
	if o.Status == domain.OrderStatusFilled {
		p := price(o.AverageFillPrice)
		resp.AverageFillPrice = &p
	}
	if o.RejectionReason != "" {
		reason := string(o.RejectionReason)
		resp.RejectionReason = &reason
	}
	return resp
}
