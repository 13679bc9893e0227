package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/brokerage/internal/domain"
)

const degree = 32

// orderKey orders an account's orders newest first. seq breaks ties between
// orders created in the same instant, later insertions first.
type orderKey struct {
	at  time.Time
	seq uint64
	id  string
}

func orderKeyLess(a, b orderKey) bool {
	if !a.at.Equal(b.at) {
		return a.at.After(b.at)
	}
	return a.seq > b.seq
}

// MemoryLedger is a thread-safe in-memory Ledger. Units of work hold
// per-row mutexes for the rows they lock and stage their writes, which are
// applied atomically on commit.
type MemoryLedger struct {
	mu            sync.RWMutex
	wallets       map[string]*domain.Wallet
	positions     map[string]*domain.Position // account_id|symbol → position
	instruments   map[string]*domain.Instrument
	orders        map[string]*domain.Order
	accountOrders map[string]*btree.BTreeG[orderKey]
	trades        map[string][]*domain.Trade       // account_id → trades (append-only)
	transactions  map[string][]*domain.Transaction // account_id → lines (append-only)
	seq           uint64

	rows rowLocks
}

var _ Ledger = (*MemoryLedger)(nil)

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		wallets:       make(map[string]*domain.Wallet),
		positions:     make(map[string]*domain.Position),
		instruments:   make(map[string]*domain.Instrument),
		orders:        make(map[string]*domain.Order),
		accountOrders: make(map[string]*btree.BTreeG[orderKey]),
		trades:        make(map[string][]*domain.Trade),
		transactions:  make(map[string][]*domain.Transaction),
		rows:          rowLocks{rows: make(map[string]*rowLock)},
	}
}

func positionKey(accountID, symbol string) string {
	return accountID + "|" + symbol
}

// CreateWallet stores w. It returns domain.ErrAccountAlreadyExists if the
// account already has a wallet.
func (l *MemoryLedger) CreateWallet(ctx context.Context, w *domain.Wallet) error {
	return l.WithTx(ctx, func(tx Tx) error {
		return tx.InsertWallet(w)
	})
}

// GetWallet returns a copy of the account's wallet.
func (l *MemoryLedger) GetWallet(_ context.Context, accountID string) (*domain.Wallet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	w, ok := l.wallets[accountID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	c := *w
	return &c, nil
}

// GetPosition returns a copy of the account's position in symbol.
func (l *MemoryLedger) GetPosition(_ context.Context, accountID, symbol string) (*domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.positions[positionKey(accountID, symbol)]
	if !ok {
		return nil, domain.ErrPositionNotFound
	}
	c := *p
	return &c, nil
}

// ListPositions returns the account's open positions sorted by symbol.
func (l *MemoryLedger) ListPositions(_ context.Context, accountID string) ([]*domain.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	prefix := accountID + "|"
	result := make([]*domain.Position, 0)
	for k, p := range l.positions {
		if strings.HasPrefix(k, prefix) {
			c := *p
			result = append(result, &c)
		}
	}
	slices.SortFunc(result, func(a, b *domain.Position) int {
		return strings.Compare(a.Symbol, b.Symbol)
	})
	return result, nil
}

// ListTransactions returns wallet ledger lines newest first.
func (l *MemoryLedger) ListTransactions(_ context.Context, accountID string, page, limit int) ([]*domain.Transaction, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.transactions[accountID]
	total := len(all)
	start, end := pageBounds(page, limit, total)

	result := make([]*domain.Transaction, 0, end-start)
	for i := total - 1 - start; i > total-1-end; i-- {
		c := *all[i]
		result = append(result, &c)
	}
	return result, total, nil
}

// UpsertInstrument stores a copy of inst, replacing any record for its symbol.
func (l *MemoryLedger) UpsertInstrument(_ context.Context, inst *domain.Instrument) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c := *inst
	l.instruments[inst.Symbol] = &c
	return nil
}

// SetInstrumentPrice updates the price of a listed instrument.
func (l *MemoryLedger) SetInstrumentPrice(_ context.Context, symbol string, price decimal.Decimal, at time.Time) (*domain.Instrument, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inst, ok := l.instruments[symbol]
	if !ok {
		return nil, domain.ErrInstrumentNotFound
	}
	inst.CurrentPrice = price
	inst.UpdatedAt = at
	c := *inst
	return &c, nil
}

// GetInstrument returns a copy of the instrument listed under symbol.
func (l *MemoryLedger) GetInstrument(_ context.Context, symbol string) (*domain.Instrument, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.instrumentLocked(symbol)
}

func (l *MemoryLedger) instrumentLocked(symbol string) (*domain.Instrument, error) {
	inst, ok := l.instruments[symbol]
	if !ok {
		return nil, domain.ErrInstrumentNotFound
	}
	c := *inst
	return &c, nil
}

// CreateOrder stores o and indexes it under its account.
func (l *MemoryLedger) CreateOrder(_ context.Context, o *domain.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.orders[o.OrderID]; ok {
		return fmt.Errorf("order %s already exists", o.OrderID)
	}
	l.orders[o.OrderID] = o.Clone()

	idx, ok := l.accountOrders[o.AccountID]
	if !ok {
		idx = btree.NewG[orderKey](degree, orderKeyLess)
		l.accountOrders[o.AccountID] = idx
	}
	l.seq++
	idx.ReplaceOrInsert(orderKey{at: o.CreatedAt, seq: l.seq, id: o.OrderID})
	return nil
}

// GetOrder returns a copy of the order.
func (l *MemoryLedger) GetOrder(_ context.Context, orderID string) (*domain.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	o, ok := l.orders[orderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o.Clone(), nil
}

// ListOrders returns an account's orders newest first. If status is non-nil
// only orders in that status are included. Pagination is 1-based; the total
// counts every match.
func (l *MemoryLedger) ListOrders(_ context.Context, accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	filtered := make([]*domain.Order, 0)
	if idx, ok := l.accountOrders[accountID]; ok {
		idx.Ascend(func(k orderKey) bool {
			o := l.orders[k.id]
			if status == nil || o.Status == *status {
				filtered = append(filtered, o)
			}
			return true
		})
	}

	total := len(filtered)
	start, end := pageBounds(page, limit, total)
	result := make([]*domain.Order, 0, end-start)
	for _, o := range filtered[start:end] {
		result = append(result, o.Clone())
	}
	return result, total, nil
}

// ListStaleOrders returns up to limit orders in one of statuses last updated
// before updatedBefore, least recently updated first.
func (l *MemoryLedger) ListStaleOrders(_ context.Context, statuses []domain.OrderStatus, updatedBefore time.Time, limit int) ([]*domain.Order, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*domain.Order, 0)
	for _, o := range l.orders {
		if slices.Contains(statuses, o.Status) && o.UpdatedAt.Before(updatedBefore) {
			result = append(result, o.Clone())
		}
	}
	slices.SortFunc(result, func(a, b *domain.Order) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// ListTrades returns an account's trades newest first.
func (l *MemoryLedger) ListTrades(_ context.Context, accountID string, page, limit int) ([]*domain.Trade, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	all := l.trades[accountID]
	total := len(all)
	start, end := pageBounds(page, limit, total)

	result := make([]*domain.Trade, 0, end-start)
	for i := total - 1 - start; i > total-1-end; i-- {
		c := *all[i]
		result = append(result, &c)
	}
	return result, total, nil
}

// TransitionOrder applies fn under the order's row lock if its status is
// one of from.
func (l *MemoryLedger) TransitionOrder(ctx context.Context, orderID string, from []domain.OrderStatus, fn func(*domain.Order)) (*domain.Order, error) {
	return transitionOrder(ctx, l, orderID, from, fn)
}

// WithTx runs fn with its writes staged, committing them only if fn
// returns nil. Row locks are released in reverse acquisition order.
func (l *MemoryLedger) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{
		l:         l,
		held:      make(map[string]struct{}),
		orders:    make(map[string]*domain.Order),
		wallets:   make(map[string]*domain.Wallet),
		positions: make(map[string]*domain.Position),
	}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memoryTx stages writes until commit. A nil entry in positions marks a
// deletion.
type memoryTx struct {
	l         *MemoryLedger
	held      map[string]struct{}
	order     []string
	orders    map[string]*domain.Order
	wallets   map[string]*domain.Wallet
	positions map[string]*domain.Position
	trades    []*domain.Trade
	txns      []*domain.Transaction
}

func (tx *memoryTx) lock(key string) {
	if _, ok := tx.held[key]; ok {
		return
	}
	tx.l.rows.lock(key)
	tx.held[key] = struct{}{}
	tx.order = append(tx.order, key)
}

func (tx *memoryTx) release() {
	for i := len(tx.order) - 1; i >= 0; i-- {
		tx.l.rows.unlock(tx.order[i])
	}
}

func (tx *memoryTx) LockOrder(orderID string) (*domain.Order, error) {
	tx.lock("order:" + orderID)
	if o, ok := tx.orders[orderID]; ok {
		return o.Clone(), nil
	}
	return tx.l.GetOrder(context.Background(), orderID)
}

func (tx *memoryTx) LockWallet(accountID string) (*domain.Wallet, error) {
	tx.lock("wallet:" + accountID)
	if w, ok := tx.wallets[accountID]; ok {
		c := *w
		return &c, nil
	}
	return tx.l.GetWallet(context.Background(), accountID)
}

func (tx *memoryTx) LockPosition(accountID, symbol string) (*domain.Position, error) {
	key := positionKey(accountID, symbol)
	tx.lock("position:" + key)
	if p, ok := tx.positions[key]; ok {
		if p == nil {
			return nil, domain.ErrPositionNotFound
		}
		c := *p
		return &c, nil
	}
	return tx.l.GetPosition(context.Background(), accountID, symbol)
}

func (tx *memoryTx) GetInstrument(symbol string) (*domain.Instrument, error) {
	return tx.l.GetInstrument(context.Background(), symbol)
}

func (tx *memoryTx) InsertWallet(w *domain.Wallet) error {
	tx.lock("wallet:" + w.AccountID)
	if _, ok := tx.wallets[w.AccountID]; ok {
		return domain.ErrAccountAlreadyExists
	}
	if _, err := tx.l.GetWallet(context.Background(), w.AccountID); err == nil {
		return domain.ErrAccountAlreadyExists
	}
	return tx.SaveWallet(w)
}

func (tx *memoryTx) SaveOrder(o *domain.Order) error {
	tx.orders[o.OrderID] = o.Clone()
	return nil
}

func (tx *memoryTx) SaveWallet(w *domain.Wallet) error {
	c := *w
	tx.wallets[w.AccountID] = &c
	return nil
}

func (tx *memoryTx) SavePosition(p *domain.Position) error {
	c := *p
	tx.positions[positionKey(p.AccountID, p.Symbol)] = &c
	return nil
}

func (tx *memoryTx) DeletePosition(accountID, symbol string) error {
	tx.positions[positionKey(accountID, symbol)] = nil
	return nil
}

func (tx *memoryTx) InsertTrade(t *domain.Trade) error {
	c := *t
	tx.trades = append(tx.trades, &c)
	return nil
}

func (tx *memoryTx) InsertTransaction(t *domain.Transaction) error {
	c := *t
	tx.txns = append(tx.txns, &c)
	return nil
}

func (tx *memoryTx) commit() {
	l := tx.l
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, o := range tx.orders {
		l.orders[id] = o
	}
	for id, w := range tx.wallets {
		l.wallets[id] = w
	}
	for k, p := range tx.positions {
		if p == nil {
			delete(l.positions, k)
			continue
		}
		l.positions[k] = p
	}
	for _, t := range tx.trades {
		l.trades[t.AccountID] = append(l.trades[t.AccountID], t)
	}
	for _, t := range tx.txns {
		l.transactions[t.AccountID] = append(l.transactions[t.AccountID], t)
	}
}

// rowLocks is a set of refcounted keyed mutexes.
type rowLocks struct {
	mu   sync.Mutex
	rows map[string]*rowLock
}

type rowLock struct {
	mu   sync.Mutex
	refs int
}

func (r *rowLocks) lock(key string) {
	r.mu.Lock()
	rl, ok := r.rows[key]
	if !ok {
		rl = &rowLock{}
		r.rows[key] = rl
	}
	rl.refs++
	r.mu.Unlock()

	rl.mu.Lock()
}

func (r *rowLocks) unlock(key string) {
	r.mu.Lock()
	rl := r.rows[key]
	rl.refs--
	if rl.refs == 0 {
		delete(r.rows, key)
	}
	r.mu.Unlock()

	rl.mu.Unlock()
}
