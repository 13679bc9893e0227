package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
	"github.com/efreitasn/brokerage/internal/store"
)

// PriceListener is told about every stored price change.
type PriceListener interface {
	PublishPrice(inst *domain.Instrument)
}

// UpsertInstrumentRequest represents the input for listing or updating an
// instrument. Nil flags keep the stored value, or default to true for a
// new listing.
type UpsertInstrumentRequest struct {
	Symbol      string
	Name        string
	Price       decimal.Decimal
	IsActive    *bool
	IsTradeable *bool
}

// InstrumentService maintains the listed instruments and their prices.
// Writes to the same symbol are serialized within the process.
type InstrumentService struct {
	ledger   store.Ledger
	listener PriceListener
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewInstrumentService creates a new InstrumentService. listener may be nil.
func NewInstrumentService(ledger store.Ledger, listener PriceListener) *InstrumentService {
	return &InstrumentService{
		ledger:   ledger,
		listener: listener,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockSymbol returns the unlock func for symbol's write lock.
func (s *InstrumentService) lockSymbol(symbol string) func() {
	s.mu.Lock()
	l, ok := s.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		s.locks[symbol] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// Upsert lists a new instrument or replaces an existing one's attributes.
func (s *InstrumentService) Upsert(ctx context.Context, req UpsertInstrumentRequest) (*domain.Instrument, bool, error) {
	symbol := normalizeSymbol(req.Symbol)
	if !domain.ValidSymbol(symbol) {
		return nil, false, &domain.ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}
	if err := checkPrice(req.Price); err != nil {
		return nil, false, err
	}

	defer s.lockSymbol(symbol)()

	inst, err := s.ledger.GetInstrument(ctx, symbol)
	created := errors.Is(err, domain.ErrInstrumentNotFound)
	if err != nil && !created {
		return nil, false, err
	}
	if created {
		inst = &domain.Instrument{Symbol: symbol, IsActive: true, IsTradeable: true}
	}

	oldPrice := inst.CurrentPrice
	if req.Name != "" {
		inst.Name = req.Name
	}
	if req.IsActive != nil {
		inst.IsActive = *req.IsActive
	}
	if req.IsTradeable != nil {
		inst.IsTradeable = *req.IsTradeable
	}
	inst.CurrentPrice = req.Price
	inst.UpdatedAt = s.now()

	if err := s.ledger.UpsertInstrument(ctx, inst); err != nil {
		return nil, false, err
	}
	if created || !oldPrice.Equal(inst.CurrentPrice) {
		s.notify(inst)
	}
	return inst, created, nil
}

// SetPrice records a new price from the market feed. Only the price and
// updated_at change; the instrument's other attributes are left as stored.
func (s *InstrumentService) SetPrice(ctx context.Context, symbol string, price decimal.Decimal) (*domain.Instrument, error) {
	if err := checkPrice(price); err != nil {
		return nil, err
	}
	symbol = normalizeSymbol(symbol)
	defer s.lockSymbol(symbol)()

	inst, err := s.ledger.SetInstrumentPrice(ctx, symbol, price, s.now())
	if err != nil {
		return nil, err
	}
	s.notify(inst)
	return inst, nil
}

// Get returns the instrument for symbol.
func (s *InstrumentService) Get(ctx context.Context, symbol string) (*domain.Instrument, error) {
	return s.ledger.GetInstrument(ctx, normalizeSymbol(symbol))
}

func (s *InstrumentService) notify(inst *domain.Instrument) {
	if s.listener != nil {
		s.listener.PublishPrice(inst)
	}
}

func checkPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return &domain.ValidationError{Message: "price must be greater than 0"}
	}
	if !price.Equal(price.Truncate(domain.PriceScale)) {
		return &domain.ValidationError{Message: "price must have at most 4 decimal places"}
	}
	return nil
}
