package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/service"
)

// InstrumentHandler handles HTTP requests for instrument endpoints.
type InstrumentHandler struct {
	instruments *service.InstrumentService
}

// NewInstrumentHandler creates a new InstrumentHandler.
func NewInstrumentHandler(instruments *service.InstrumentService) *InstrumentHandler {
	return &InstrumentHandler{instruments: instruments}
}

type upsertInstrumentRequest struct {
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	IsActive    *bool           `json:"is_active"`
	IsTradeable *bool           `json:"is_tradeable"`
}

type setPriceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type instrumentResponse struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	CurrentPrice string `json:"current_price"`
	IsActive     bool   `json:"is_active"`
	IsTradeable  bool   `json:"is_tradeable"`
	UpdatedAt    string `json:"updated_at"`
}

// Upsert handles PUT /instruments/{symbol}.
func (h *InstrumentHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertInstrumentRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	inst, created, err := h.instruments.Upsert(r.Context(), service.UpsertInstrumentRequest{
		Symbol:      chi.URLParam(r, "symbol"),
		Name:        req.Name,
		Price:       req.Price,
		IsActive:    req.IsActive,
		IsTradeable: req.IsTradeable,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	WriteJSON(w, status, buildInstrumentResponse(inst))
}

// SetPrice handles PUT /instruments/{symbol}/price.
func (h *InstrumentHandler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req setPriceRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	inst, err := h.instruments.SetPrice(r.Context(), chi.URLParam(r, "symbol"), req.Price)
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildInstrumentResponse(inst))
}

// Get handles GET /instruments/{symbol}.
func (h *InstrumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	inst, err := h.instruments.Get(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		mapError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildInstrumentResponse(inst))
}

func buildInstrumentResponse(inst *domain.Instrument) instrumentResponse {
	return instrumentResponse{
		Symbol:       inst.Symbol,
		Name:         inst.Name,
		CurrentPrice: price(inst.CurrentPrice),
		IsActive:     inst.IsActive,
		IsTradeable:  inst.IsTradeable,
		UpdatedAt:    formatTime(inst.UpdatedAt),
	}
}
