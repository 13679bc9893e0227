// Package service implements the account, order, instrument and webhook
// use cases on top of the ledger, the execution queue and the notifiers.
package service

import (
	"github.com/efreitasn/brokerage/internal/domain"
)

const maxPageLimit = 100

func checkPage(page, limit int) error {
	if page < 1 {
		return &domain.ValidationError{Message: "page must be >= 1"}
	}
	if limit < 1 || limit > maxPageLimit {
		return &domain.ValidationError{Message: "limit must be between 1 and 100"}
	}
	return nil
}

func checkAccountID(id string) error {
	if !domain.ValidAccountID(id) {
		return &domain.ValidationError{Message: "account_id must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	return nil
}
