package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/service"
)

func TestCheckpoint_CreateListRestore(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "spendtag.db")
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{
		testTransaction(userOne, "t1", "Netflix", "15.99", model.DirectionDebit, day),
	}))

	cm, err := store.Checkpoints()
	require.NoError(t, err)

	info, err := cm.Create(ctx, "before-import", "one transaction")
	require.NoError(t, err)
	assert.Equal(t, 1, info.RowCounts["transactions"])
	assert.Equal(t, ExpectedSchemaVersion, info.SchemaVersion)
	assert.Positive(t, info.FileSize)
	assert.FileExists(t, filepath.Join(filepath.Dir(dbPath), "checkpoints", "before-import.db"))

	_, err = cm.Create(ctx, "before-import", "")
	assert.ErrorIs(t, err, ErrCheckpointExists)

	require.NoError(t, store.SaveTransactions(ctx, []model.Transaction{
		testTransaction(userOne, "t2", "Hulu", "7.99", model.DirectionDebit, day),
	}))

	list, err := cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "one transaction", list[0].Description)

	require.NoError(t, store.Close())
	require.NoError(t, RestoreCheckpoint(ctx, dbPath, "before-import"))

	restored, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = restored.Close() }()

	txns, err := restored.ListTransactions(ctx, userOne, service.TransactionFilter{})
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, "t1", txns[0].ID)
	assert.NoFileExists(t, dbPath+".restore-backup")
}

func TestCheckpoint_AutoPrunes(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	cm, err := store.Checkpoints()
	require.NoError(t, err)
	cm.keep = 2
	clock := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cm.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	for range 4 {
		_, err := cm.AutoCheckpoint(ctx, "rules-update")
		require.NoError(t, err)
	}
	manual, err := cm.Create(ctx, "", "kept")
	require.NoError(t, err)

	list, err := cm.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, manual.ID, list[0].ID)
	assert.True(t, list[1].IsAuto)
	assert.True(t, list[2].IsAuto)
	assert.True(t, list[1].CreatedAt.After(list[2].CreatedAt))
}

func TestCheckpoint_Errors(t *testing.T) {
	ctx := context.Background()
	store, cleanup := createTestStorage(t)
	defer cleanup()

	cm, err := store.Checkpoints()
	require.NoError(t, err)

	for _, id := range []string{"../escape", `a\b`, "it's"} {
		_, err := cm.Create(ctx, id, "")
		assert.ErrorIs(t, err, common.ErrInvalidInput, id)
	}

	assert.ErrorIs(t, cm.Delete(ctx, "missing"), ErrCheckpointNotFound)
	assert.ErrorIs(t, RestoreCheckpoint(ctx, store.dbPath, "missing"), ErrCheckpointNotFound)

	t.Run("corrupted checkpoint is refused", func(t *testing.T) {
		dir := filepath.Join(filepath.Dir(store.dbPath), "checkpoints")
		require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.db"), []byte("not a database"), 0o600))
		err := RestoreCheckpoint(ctx, store.dbPath, "junk")
		assert.ErrorIs(t, err, ErrCheckpointCorrupted)
	})

	t.Run("in-memory databases have no checkpoints", func(t *testing.T) {
		mem, err := NewSQLiteStorage(":memory:")
		require.NoError(t, err)
		defer func() { _ = mem.Close() }()
		_, err = mem.Checkpoints()
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})
}
