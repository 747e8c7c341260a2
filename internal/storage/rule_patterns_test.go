package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
)

func TestPatternTablePersistence(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	table := model.PatternTable{
		ClassificationPatterns: []model.PatternBucket{
			{Name: "SALARY_INCOME", Patterns: []string{`salary`, `payroll`}},
			{Name: "SUBSCRIPTION", Patterns: []string{`netflix`}},
		},
		CategoryPatterns: []model.PatternBucket{
			{Name: "FOOD_DINING", Patterns: []string{`coffee`}},
			{Name: "ENTERTAINMENT", Patterns: []string{`netflix`, `spotify`}},
		},
		Version: 1,
	}
	require.NoError(t, store.SavePatternTable(ctx, table, 0))

	loaded, err := store.LoadPatternTable(ctx)
	require.NoError(t, err)
	assert.Equal(t, table, loaded, "bucket and pattern order survive a round trip")

	t.Run("stale expected version conflicts", func(t *testing.T) {
		next := table.Clone()
		next.Version = 2
		err := store.SavePatternTable(ctx, next, 0)
		assert.ErrorIs(t, err, common.ErrVersionConflict)
		assert.True(t, common.IsRetryable(err))
	})

	t.Run("version must advance", func(t *testing.T) {
		err := store.SavePatternTable(ctx, table, 1)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("replace shrinks the stored table", func(t *testing.T) {
		next := model.PatternTable{
			ClassificationPatterns: []model.PatternBucket{{Name: "SUBSCRIPTION", Patterns: []string{`hulu`}}},
			Version:                2,
		}
		require.NoError(t, store.SavePatternTable(ctx, next, 1))

		loaded, err := store.LoadPatternTable(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, loaded.Version)
		assert.Equal(t, next.ClassificationPatterns, loaded.ClassificationPatterns)
		assert.Empty(t, loaded.CategoryPatterns)
	})
}

func TestMarkBusy(t *testing.T) {
	tests := []struct {
		err       error
		name      string
		retryable bool
	}{
		{name: "busy", err: fmt.Errorf("commit: %w", sqlite3.Error{Code: sqlite3.ErrBusy}), retryable: true},
		{name: "locked", err: sqlite3.Error{Code: sqlite3.ErrLocked}, retryable: true},
		{name: "constraint", err: sqlite3.Error{Code: sqlite3.ErrConstraint}},
		{name: "version conflict stays a conflict", err: common.ErrVersionConflict, retryable: true},
		{name: "plain", err: errors.New("disk full")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := markBusy(tt.err)
			assert.Equal(t, tt.retryable, common.IsRetryable(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}
	assert.Nil(t, markBusy(nil))
}
