package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrAccountAlreadyExists = errors.New("account_already_exists")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrInstrumentNotFound   = errors.New("instrument_not_found")
	ErrInvalidQuantity      = errors.New("invalid_quantity")
	ErrInvalidPrice         = errors.New("invalid_price")
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrInsufficientHoldings = errors.New("insufficient_holdings")
	ErrOrderNotFound        = errors.New("order_not_found")
	ErrInvalidOrderState    = errors.New("invalid_order_state")
	ErrPositionNotFound     = errors.New("position_not_found")
	ErrWebhookNotFound      = errors.New("webhook_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// RejectionReason is recorded on an order that reached REJECTED.
type RejectionReason string

const (
	RejectInsufficientFunds    RejectionReason = "insufficient_funds"
	RejectInsufficientHoldings RejectionReason = "insufficient_holdings"
	RejectInstrumentNotFound   RejectionReason = "instrument_not_found"
	RejectExecutionError       RejectionReason = "execution_error"
)

// RejectionError is a terminal business rejection raised while executing
// an order. It is never retried.
type RejectionError struct {
	Reason RejectionReason
	Err    error
}

func (e *RejectionError) Error() string {
	return string(e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// Reject builds a RejectionError whose reason is derived from err.
func Reject(err error) *RejectionError {
	reason := RejectExecutionError
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		reason = RejectInsufficientFunds
	case errors.Is(err, ErrInsufficientHoldings), errors.Is(err, ErrPositionNotFound):
		reason = RejectInsufficientHoldings
	case errors.Is(err, ErrInstrumentNotFound):
		reason = RejectInstrumentNotFound
	}
	return &RejectionError{Reason: reason, Err: err}
}
