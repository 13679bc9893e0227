package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "side must be 'buy' or 'sell'"}
	if err.Error() != "side must be 'buy' or 'sell'" {
		t.Errorf("Error() = %q, want %q", err.Error(), "side must be 'buy' or 'sell'")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrAccountAlreadyExists,
		ErrAccountNotFound,
		ErrInstrumentNotFound,
		ErrInvalidQuantity,
		ErrInvalidPrice,
		ErrInsufficientFunds,
		ErrInsufficientHoldings,
		ErrOrderNotFound,
		ErrInvalidOrderState,
		ErrPositionNotFound,
		ErrWebhookNotFound,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}

func TestReject(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want RejectionReason
	}{
		{"funds", ErrInsufficientFunds, RejectInsufficientFunds},
		{"wrapped funds", fmt.Errorf("debit: %w", ErrInsufficientFunds), RejectInsufficientFunds},
		{"holdings", ErrInsufficientHoldings, RejectInsufficientHoldings},
		{"missing position", ErrPositionNotFound, RejectInsufficientHoldings},
		{"instrument", ErrInstrumentNotFound, RejectInstrumentNotFound},
		{"anything else", errors.New("boom"), RejectExecutionError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rej := Reject(tt.err)
			if rej.Reason != tt.want {
				t.Errorf("Reject(%v).Reason = %q, want %q", tt.err, rej.Reason, tt.want)
			}
			if !errors.Is(rej, tt.err) {
				t.Errorf("Reject(%v) should unwrap to the original error", tt.err)
			}
			var target *RejectionError
			if !errors.As(fmt.Errorf("execute: %w", rej), &target) {
				t.Error("errors.As should find *RejectionError through wrapping")
			}
		})
	}
}
