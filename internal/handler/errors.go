package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/queue"
)

// mapError maps domain errors to HTTP responses.
func mapError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidPrice):
		WriteError(w, http.StatusBadRequest, sentinelCode(err), err.Error())

	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrInstrumentNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrPositionNotFound),
		errors.Is(err, domain.ErrWebhookNotFound):
		WriteError(w, http.StatusNotFound, sentinelCode(err), err.Error())

	case errors.Is(err, domain.ErrAccountAlreadyExists),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrInsufficientHoldings),
		errors.Is(err, domain.ErrInvalidOrderState):
		WriteError(w, http.StatusConflict, sentinelCode(err), err.Error())

	case errors.Is(err, queue.ErrQueueClosed):
		WriteError(w, http.StatusServiceUnavailable, "service_unavailable", "Order execution is unavailable, retry later")

	default:
		slog.Error("unhandled error", slog.String("error", err.Error()))
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

// sentinelCode returns the domain sentinel wrapped by err. The sentinels'
// messages double as error codes.
func sentinelCode(err error) string {
	for _, s := range []error{
		domain.ErrInvalidQuantity,
		domain.ErrInvalidPrice,
		domain.ErrAccountNotFound,
		domain.ErrInstrumentNotFound,
		domain.ErrOrderNotFound,
		domain.ErrPositionNotFound,
		domain.ErrWebhookNotFound,
		domain.ErrAccountAlreadyExists,
		domain.ErrInsufficientFunds,
		domain.ErrInsufficientHoldings,
		domain.ErrInvalidOrderState,
	} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal_error"
}
