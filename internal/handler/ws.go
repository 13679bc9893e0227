package handler

import (
	"log/slog"
	"net/http"

	"github.com/efreitasn/brokerage/internal/notify"
	"github.com/efreitasn/brokerage/internal/service"
)

// StreamHandler upgrades GET /ws to a websocket carrying the account's
// order and trade events.
type StreamHandler struct {
	hub      *notify.Hub
	accounts *service.AccountService
	logger   *slog.Logger
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(hub *notify.Hub, accounts *service.AccountService, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, accounts: accounts, logger: logger}
}

// Serve handles GET /ws?account_id=.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "account_id query parameter is required")
		return
	}
	if _, err := h.accounts.GetWallet(r.Context(), accountID); err != nil {
		mapError(w, err)
		return
	}

	// The upgrader writes its own error response.
	if err := h.hub.ServeWS(w, r, accountID); err != nil {
		h.logger.Debug("websocket upgrade", slog.String("account_id", accountID), slog.String("error", err.Error()))
	}
}
