package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/brokerage/internal/domain"
)

func eachLedger(t *testing.T, fn func(t *testing.T, l Ledger)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryLedger()) })
	t.Run("gorm", func(t *testing.T) { fn(t, newSQLiteLedger(t)) })
}

func TestLedger_InsertWallet(t *testing.T) {
	eachLedger(t, func(t *testing.T, l Ledger) {
		ctx := context.Background()
		boom := errors.New("boom")

		err := l.WithTx(ctx, func(tx Tx) error {
			w := &domain.Wallet{AccountID: "acc-1", Currency: "USD"}
			require.NoError(t, tx.InsertWallet(w))
			w.Balance = d("50")
			require.NoError(t, tx.SaveWallet(w))
			return boom
		})
		require.ErrorIs(t, err, boom)
		_, err = l.GetWallet(ctx, "acc-1")
		assert.ErrorIs(t, err, domain.ErrAccountNotFound, "rolled back insert must leave no wallet")

		err = l.WithTx(ctx, func(tx Tx) error {
			w := &domain.Wallet{AccountID: "acc-1", Currency: "USD"}
			if err := tx.InsertWallet(w); err != nil {
				return err
			}
			w.Balance = d("50")
			return tx.SaveWallet(w)
		})
		require.NoError(t, err)

		w, err := l.GetWallet(ctx, "acc-1")
		require.NoError(t, err)
		assert.True(t, w.Balance.Equal(d("50")))

		err = l.WithTx(ctx, func(tx Tx) error {
			return tx.InsertWallet(&domain.Wallet{AccountID: "acc-1", Currency: "USD"})
		})
		assert.ErrorIs(t, err, domain.ErrAccountAlreadyExists)
	})
}

func TestLedger_SetInstrumentPrice(t *testing.T) {
	eachLedger(t, func(t *testing.T, l Ledger) {
		ctx := context.Background()
		listed := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
		require.NoError(t, l.UpsertInstrument(ctx, &domain.Instrument{
			Symbol: "AAPL", Name: "Apple", CurrentPrice: d("100"), IsActive: true, IsTradeable: false, UpdatedAt: listed,
		}))

		at := listed.Add(time.Minute)
		inst, err := l.SetInstrumentPrice(ctx, "AAPL", d("101.5"), at)
		require.NoError(t, err)
		assert.True(t, inst.CurrentPrice.Equal(d("101.5")))
		assert.True(t, inst.UpdatedAt.Equal(at))
		assert.Equal(t, "Apple", inst.Name)
		assert.False(t, inst.IsTradeable, "price update must not touch other attributes")

		got, err := l.GetInstrument(ctx, "AAPL")
		require.NoError(t, err)
		assert.True(t, got.CurrentPrice.Equal(d("101.5")))

		_, err = l.SetInstrumentPrice(ctx, "MSFT", d("1"), at)
		assert.ErrorIs(t, err, domain.ErrInstrumentNotFound)
	})
}
