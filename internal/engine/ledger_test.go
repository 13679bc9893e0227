package engine

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/efreitasn/brokerage/internal/store"
)

// testLedgers are the Ledger implementations the execution scenarios run
// against. SQLite stands in for Postgres behind the gorm ledger.
var testLedgers = []struct {
	name string
	open func(t *testing.T) store.Ledger
}{
	{"memory", func(*testing.T) store.Ledger { return store.NewMemoryLedger() }},
	{"gorm", openSQLiteLedger},
}

func openSQLiteLedger(t *testing.T) store.Ledger {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := store.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.NewGormLedger(db)
}

// forEachLedger runs fn once per ledger implementation, each with a fresh
// environment.
func forEachLedger(t *testing.T, fn func(t *testing.T, env *testEnv)) {
	t.Helper()
	for _, l := range testLedgers {
		t.Run(l.name, func(t *testing.T) {
			fn(t, newTestEnvWith(t, l.open(t)))
		})
	}
}
