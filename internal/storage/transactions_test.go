package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/service"
)

func TestSaveAndGetTransaction(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	date := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	txn := testTransaction(userOne, "t1", "Netflix Monthly Subscription", "29.99", model.DirectionDebit, date)
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{txn}))

	got, err := store.GetTransaction(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, userOne, got.Scope)
	assert.Equal(t, "Netflix Monthly Subscription", got.Description)
	assert.True(t, got.Amount.Equal(txn.Amount), "amount %s", got.Amount)
	assert.Equal(t, model.DirectionDebit, got.Direction)
	assert.True(t, got.Date.Equal(date))

	t.Run("duplicate ids are ignored", func(t *testing.T) {
		dup := txn
		dup.Description = "changed"
		require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{dup}))

		got, err := store.GetTransaction(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "Netflix Monthly Subscription", got.Description)
	})

	t.Run("missing transaction", func(t *testing.T) {
		_, err := store.GetTransaction(ctx, "nope")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestSaveTransactions_Validation(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		txns []model.Transaction
	}{
		{name: "nil slice", txns: nil},
		{name: "empty slice", txns: []model.Transaction{}},
		{name: "missing id", txns: []model.Transaction{testTransaction(userOne, "", "x", "1", model.DirectionDebit, date)}},
		{name: "missing date", txns: []model.Transaction{testTransaction(userOne, "a", "x", "1", model.DirectionDebit, time.Time{})}},
		{name: "bad direction", txns: []model.Transaction{testTransaction(userOne, "a", "x", "1", "sideways", date)}},
		{name: "bad scope", txns: []model.Transaction{testTransaction(model.Scope{Type: "team", ID: "x"}, "a", "x", "1", model.DirectionDebit, date)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.SaveTransactions(ctx, tt.txns)
			assert.ErrorIs(t, err, common.ErrInvalidInput)
		})
	}
}

func TestListTransactions(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	jan := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{
		testTransaction(userOne, "c", "march", "30", model.DirectionDebit, mar),
		testTransaction(userOne, "a", "january", "10", model.DirectionDebit, jan),
		testTransaction(userOne, "b", "february", "20", model.DirectionDebit, feb),
		testTransaction(userTwo, "z", "other tenant", "99", model.DirectionDebit, feb),
	}))

	t.Run("all for tenant oldest first", func(t *testing.T) {
		txns, err := store.ListTransactions(ctx, userOne, service.TransactionFilter{})
		require.NoError(t, err)
		require.Len(t, txns, 3)
		assert.Equal(t, "a", txns[0].ID)
		assert.Equal(t, "b", txns[1].ID)
		assert.Equal(t, "c", txns[2].ID)
	})

	t.Run("start inclusive end exclusive", func(t *testing.T) {
		txns, err := store.ListTransactions(ctx, userOne, service.TransactionFilter{Start: &feb, End: &mar})
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, "b", txns[0].ID)
	})

	t.Run("inverted range", func(t *testing.T) {
		_, err := store.ListTransactions(ctx, userOne, service.TransactionFilter{Start: &mar, End: &jan})
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("by ids stays within tenant", func(t *testing.T) {
		txns, err := store.GetTransactionsByIDs(ctx, userOne, []string{"a", "z", "missing"})
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, "a", txns[0].ID)
	})

	t.Run("by ids empty", func(t *testing.T) {
		txns, err := store.GetTransactionsByIDs(ctx, userOne, nil)
		require.NoError(t, err)
		assert.Empty(t, txns)
	})
}
