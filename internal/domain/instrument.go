package domain

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

var (
	symbolRegex    = regexp.MustCompile(`^[A-Z]{1,10}$`)
	accountIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

// ValidSymbol reports whether symbol is 1-10 upper-case letters.
func ValidSymbol(symbol string) bool {
	return symbolRegex.MatchString(symbol)
}

// ValidAccountID reports whether id matches ^[a-zA-Z0-9_-]{1,64}$.
func ValidAccountID(id string) bool {
	return accountIDRegex.MatchString(id)
}

// Instrument is a listed stock. Its current price is written by an
// external feed and only read by the execution engine.
type Instrument struct {
	Symbol       string
	Name         string
	CurrentPrice decimal.Decimal
	IsActive     bool
	IsTradeable  bool
	UpdatedAt    time.Time
}

// Tradeable reports whether orders may be admitted or executed against it.
func (i *Instrument) Tradeable() bool {
	return i.IsActive && i.IsTradeable && i.CurrentPrice.IsPositive()
}
