package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// AmountScale is the number of decimal places kept for cash amounts.
	AmountScale int32 = 2
	// PriceScale is the number of decimal places kept for average prices.
	PriceScale int32 = 4
)

// DefaultFeeRate is the execution fee charged on the gross trade amount (0.1%).
var DefaultFeeRate = decimal.RequireFromString("0.001")

// ParseAmount parses a non-negative cash amount with at most two decimal
// places, e.g. "148.50".
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if err := CheckAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// CheckAmount rejects negative values and values with more than two
// decimal places.
func CheckAmount(d decimal.Decimal) error {
	if d.IsNegative() {
		return fmt.Errorf("monetary values must be >= 0")
	}
	if !d.Equal(d.Truncate(AmountScale)) {
		return fmt.Errorf("monetary values must have at most 2 decimal places")
	}
	return nil
}

// RoundAmount rounds a cash amount to cents, half away from zero.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountScale)
}

// GrossAmount returns price × quantity rounded to cents.
func GrossAmount(price decimal.Decimal, quantity int64) decimal.Decimal {
	return RoundAmount(price.Mul(decimal.NewFromInt(quantity)))
}

// Fee returns the execution fee for a gross amount rounded to cents.
func Fee(gross, rate decimal.Decimal) decimal.Decimal {
	return RoundAmount(gross.Mul(rate))
}
