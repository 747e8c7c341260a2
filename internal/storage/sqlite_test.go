package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spendtag/internal/model"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) (*SQLiteStorage, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStorage(dbPath)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		t.Fatalf("Failed to migrate: %v", err)
	}

	return store, func() { _ = store.Close() }
}

var (
	userOne = model.Scope{Type: model.TenantUser, ID: "u1"}
	userTwo = model.Scope{Type: model.TenantUser, ID: "u2"}
)

func testTransaction(scope model.Scope, id, description, amount string, direction model.Direction, date time.Time) model.Transaction {
	return model.Transaction{
		ID:          id,
		Scope:       scope,
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Direction:   direction,
		Date:        date,
	}
}

func testTag(scope model.Scope, resourceID, key, value string, at time.Time) model.Tag {
	return model.Tag{
		ID:        uuid.NewString(),
		Scope:     scope,
		Resource:  model.ResourceRef{Type: model.ResourceTransaction, ID: resourceID},
		Type:      model.TagTypeCategory,
		Key:       key,
		Value:     value,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func TestNewSQLiteStorage(t *testing.T) {
	t.Run("rejects empty path", func(t *testing.T) {
		_, err := NewSQLiteStorage("  ")
		require.ErrorIs(t, err, ErrEmptyString)
	})

	t.Run("creates nested directories", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "a", "b", "spendtag.db")
		store, err := NewSQLiteStorage(dbPath)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		assert.FileExists(t, dbPath)
	})

	t.Run("in-memory database", func(t *testing.T) {
		store, err := NewSQLiteStorage(":memory:")
		require.NoError(t, err)
		defer func() { _ = store.Close() }()
		require.NoError(t, store.Migrate(context.Background()))
	})
}

func TestMigrate(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	t.Run("is idempotent", func(t *testing.T) {
		require.NoError(t, store.Migrate(ctx))
		version, err := store.SchemaVersion(ctx)
		require.NoError(t, err)
		assert.Equal(t, ExpectedSchemaVersion, version)
	})

	t.Run("storage stays usable after migrate", func(t *testing.T) {
		table, err := store.LoadPatternTable(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, table.Version)
		assert.True(t, table.IsEmpty())
	})

	t.Run("expected tables exist", func(t *testing.T) {
		for _, name := range []string{"transactions", "tags", "analytics_views", "rule_patterns", "rule_table_version"} {
			var count int
			err := store.db.QueryRowContext(ctx,
				"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&count)
			require.NoError(t, err)
			assert.Equal(t, 1, count, "table %s", name)
		}
	})
}

func TestMigrate_NilContext(t *testing.T) {
	store, cleanup := createTestStorage(t)
	defer cleanup()

	//nolint:staticcheck // exercising the nil guard
	err := store.Migrate(nil)
	assert.ErrorIs(t, err, ErrNilContext)
}
