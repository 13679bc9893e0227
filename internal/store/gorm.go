package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/efreitasn/brokerage/internal/domain"
)

// GormLedger is a Ledger backed by a relational database through gorm.
// Row locks are SELECT ... FOR UPDATE on dialects that support it.
type GormLedger struct {
	db *gorm.DB
}

var _ Ledger = (*GormLedger)(nil)

// NewGormLedger wraps an open gorm connection. The schema must already exist.
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// AutoMigrate creates the schema from the row types. Production databases
// are migrated with Migrate instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&walletRow{},
		&positionRow{},
		&instrumentRow{},
		&orderRow{},
		&tradeRow{},
		&transactionRow{},
	)
}

func forUpdate(db *gorm.DB) *gorm.DB {
	// SQLite serializes writers at the database level and has no row locks.
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

// CreateWallet inserts w. It returns domain.ErrAccountAlreadyExists if the
// account already has a wallet.
func (l *GormLedger) CreateWallet(ctx context.Context, w *domain.Wallet) error {
	return insertWallet(l.db.WithContext(ctx), w)
}

func insertWallet(db *gorm.DB, w *domain.Wallet) error {
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(toWalletRow(w))
	if res.Error != nil {
		return fmt.Errorf("create wallet: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrAccountAlreadyExists
	}
	return nil
}

// GetWallet returns the account's wallet.
func (l *GormLedger) GetWallet(ctx context.Context, accountID string) (*domain.Wallet, error) {
	return getWallet(l.db.WithContext(ctx), accountID)
}

func getWallet(db *gorm.DB, accountID string) (*domain.Wallet, error) {
	var row walletRow
	if err := db.First(&row, "account_id = ?", accountID).Error; err != nil {
		return nil, notFound(err, domain.ErrAccountNotFound)
	}
	return row.toDomain(), nil
}

// GetPosition returns the account's position in symbol.
func (l *GormLedger) GetPosition(ctx context.Context, accountID, symbol string) (*domain.Position, error) {
	return getPosition(l.db.WithContext(ctx), accountID, symbol)
}

func getPosition(db *gorm.DB, accountID, symbol string) (*domain.Position, error) {
	var row positionRow
	if err := db.First(&row, "account_id = ? AND symbol = ?", accountID, symbol).Error; err != nil {
		return nil, notFound(err, domain.ErrPositionNotFound)
	}
	return row.toDomain(), nil
}

// ListPositions returns the account's open positions sorted by symbol.
func (l *GormLedger) ListPositions(ctx context.Context, accountID string) ([]*domain.Position, error) {
	var rows []positionRow
	err := l.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("symbol ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	result := make([]*domain.Position, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

// ListTransactions returns wallet ledger lines newest first, with the
// total line count.
func (l *GormLedger) ListTransactions(ctx context.Context, accountID string, page, limit int) ([]*domain.Transaction, int, error) {
	q := l.db.WithContext(ctx).Model(&transactionRow{}).Where("account_id = ?", accountID).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	var rows []transactionRow
	err := q.Order("created_at DESC").Order("transaction_id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	result := make([]*domain.Transaction, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, int(total), nil
}

// UpsertInstrument inserts inst or overwrites every column of the stored row.
func (l *GormLedger) UpsertInstrument(ctx context.Context, inst *domain.Instrument) error {
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(toInstrumentRow(inst)).Error
	if err != nil {
		return fmt.Errorf("upsert instrument: %w", err)
	}
	return nil
}

// SetInstrumentPrice updates the current_price and updated_at columns only,
// leaving concurrent attribute changes intact.
func (l *GormLedger) SetInstrumentPrice(ctx context.Context, symbol string, price decimal.Decimal, at time.Time) (*domain.Instrument, error) {
	var inst *domain.Instrument
	err := l.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		res := db.Model(&instrumentRow{}).
			Where("symbol = ?", symbol).
			Updates(map[string]any{"current_price": price, "updated_at": at})
		if res.Error != nil {
			return fmt.Errorf("set instrument price: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return domain.ErrInstrumentNotFound
		}
		var err error
		inst, err = getInstrument(db, symbol)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// GetInstrument returns the instrument listed under symbol.
func (l *GormLedger) GetInstrument(ctx context.Context, symbol string) (*domain.Instrument, error) {
	return getInstrument(l.db.WithContext(ctx), symbol)
}

func getInstrument(db *gorm.DB, symbol string) (*domain.Instrument, error) {
	var row instrumentRow
	if err := db.First(&row, "symbol = ?", symbol).Error; err != nil {
		return nil, notFound(err, domain.ErrInstrumentNotFound)
	}
	return row.toDomain(), nil
}

// CreateOrder inserts o.
func (l *GormLedger) CreateOrder(ctx context.Context, o *domain.Order) error {
	if err := l.db.WithContext(ctx).Create(toOrderRow(o)).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// GetOrder returns the order.
func (l *GormLedger) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var row orderRow
	if err := l.db.WithContext(ctx).First(&row, "order_id = ?", orderID).Error; err != nil {
		return nil, notFound(err, domain.ErrOrderNotFound)
	}
	return row.toDomain(), nil
}

// ListOrders returns an account's orders newest first, optionally
// filtered by status.
func (l *GormLedger) ListOrders(ctx context.Context, accountID string, status *domain.OrderStatus, page, limit int) ([]*domain.Order, int, error) {
	q := l.db.WithContext(ctx).Model(&orderRow{}).Where("account_id = ?", accountID)
	if status != nil {
		q = q.Where("status = ?", string(*status))
	}
	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	var rows []orderRow
	err := q.Order("created_at DESC").Order("order_id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	result := make([]*domain.Order, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, int(total), nil
}

// ListStaleOrders returns up to limit orders in one of statuses last updated
// before updatedBefore, least recently updated first.
func (l *GormLedger) ListStaleOrders(ctx context.Context, statuses []domain.OrderStatus, updatedBefore time.Time, limit int) ([]*domain.Order, error) {
	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	q := l.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", names, updatedBefore).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []orderRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list stale orders: %w", err)
	}
	result := make([]*domain.Order, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, nil
}

// ListTrades returns an account's trades newest first.
func (l *GormLedger) ListTrades(ctx context.Context, accountID string, page, limit int) ([]*domain.Trade, int, error) {
	q := l.db.WithContext(ctx).Model(&tradeRow{}).Where("account_id = ?", accountID).Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count trades: %w", err)
	}

	var rows []tradeRow
	err := q.Order("executed_at DESC").Order("trade_id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("list trades: %w", err)
	}
	result := make([]*domain.Trade, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toDomain())
	}
	return result, int(total), nil
}

// TransitionOrder applies fn to the order, locked FOR UPDATE, if its status
// is one of from.
func (l *GormLedger) TransitionOrder(ctx context.Context, orderID string, from []domain.OrderStatus, fn func(*domain.Order)) (*domain.Order, error) {
	return transitionOrder(ctx, l, orderID, from, fn)
}

// WithTx runs fn inside a database transaction.
func (l *GormLedger) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	return l.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return fn(&gormTx{db: db})
	})
}

type gormTx struct {
	db *gorm.DB
}

func (tx *gormTx) LockOrder(orderID string) (*domain.Order, error) {
	var row orderRow
	if err := forUpdate(tx.db).First(&row, "order_id = ?", orderID).Error; err != nil {
		return nil, notFound(err, domain.ErrOrderNotFound)
	}
	return row.toDomain(), nil
}

func (tx *gormTx) LockWallet(accountID string) (*domain.Wallet, error) {
	return getWallet(forUpdate(tx.db), accountID)
}

func (tx *gormTx) LockPosition(accountID, symbol string) (*domain.Position, error) {
	return getPosition(forUpdate(tx.db), accountID, symbol)
}

func (tx *gormTx) GetInstrument(symbol string) (*domain.Instrument, error) {
	return getInstrument(tx.db, symbol)
}

func (tx *gormTx) InsertWallet(w *domain.Wallet) error {
	return insertWallet(tx.db, w)
}

func (tx *gormTx) SaveOrder(o *domain.Order) error {
	if err := tx.db.Save(toOrderRow(o)).Error; err != nil {
		return fmt.Errorf("save order: %w", err)
	}
	return nil
}

func (tx *gormTx) SaveWallet(w *domain.Wallet) error {
	if err := tx.db.Save(toWalletRow(w)).Error; err != nil {
		return fmt.Errorf("save wallet: %w", err)
	}
	return nil
}

func (tx *gormTx) SavePosition(p *domain.Position) error {
	err := tx.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(toPositionRow(p)).Error
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

func (tx *gormTx) DeletePosition(accountID, symbol string) error {
	err := tx.db.Delete(&positionRow{}, "account_id = ? AND symbol = ?", accountID, symbol).Error
	if err != nil {
		return fmt.Errorf("delete position: %w", err)
	}
	return nil
}

func (tx *gormTx) InsertTrade(t *domain.Trade) error {
	if err := tx.db.Create(toTradeRow(t)).Error; err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

func (tx *gormTx) InsertTransaction(t *domain.Transaction) error {
	if err := tx.db.Create(toTransactionRow(t)).Error; err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}
