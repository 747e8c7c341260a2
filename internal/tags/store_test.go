package tags

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/testutil"
)

var day = time.Date(2024, 4, 1, 9, 0, 0, 0, time.UTC)

func txRef(id string) model.ResourceRef {
	return model.ResourceRef{Type: model.ResourceTransaction, ID: id}
}

func setupStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	db := testutil.SetupTestDB(t)
	db.Seed(testutil.NewTransactions(testutil.UserOne).
		Debit("t1", "Netflix", "15.99", day).
		Debit("t2", "Coffee", "3.00", day).
		Debit("t3", "Groceries", "80.00", day).
		Build())
	db.Seed(testutil.NewTransactions(testutil.UserTwo).
		Debit("x1", "Rent", "1500", day).
		Build())

	base := []Option{
		WithResolver(model.ResourceTransaction, TransactionResolver{Transactions: db.Storage}),
		WithClock(testutil.FixedClock(day)),
	}
	return NewStore(db.Storage, append(base, opts...)...)
}

func TestApplyTag_SingleValuedUpdatesInPlace(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first, err := store.ApplyTag(ctx, testutil.UserOne, txRef("t1"), "category", "ENTERTAINMENT",
		model.TagAttributes{Type: model.TagTypeCategory, Label: "Fun"})
	require.NoError(t, err)
	assert.True(t, first.SingleValued)
	assert.Equal(t, model.TagTypeCategory, first.Type)

	second, err := store.ApplyTag(ctx, testutil.UserOne, txRef("t1"), "category", "SHOPPING", model.TagAttributes{})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "SHOPPING", second.Value)
	assert.Equal(t, model.TagTypeUser, second.Type, "attrs replace previous attrs")

	tags, err := store.GetResourceTags(ctx, testutil.UserOne, txRef("t1"))
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "SHOPPING", tags[0].Value)
}

func TestApplyTag_MultiValuedKeysAccumulate(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, err := store.ApplyTag(ctx, testutil.UserOne, txRef("t1"), "project", "alpha", model.TagAttributes{})
	require.NoError(t, err)
	_, err = store.ApplyTag(ctx, testutil.UserOne, txRef("t1"), "project", "beta", model.TagAttributes{})
	require.NoError(t, err)

	tags, err := store.GetResourceTags(ctx, testutil.UserOne, txRef("t1"))
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "alpha", tags[0].Value)
	assert.Equal(t, "beta", tags[1].Value)
}

func TestApplyTag_ConfiguredSingleValuedKeys(t *testing.T) {
	store := setupStore(t, WithSingleValuedKeys([]string{"owner"}))
	ctx := context.Background()

	assert.True(t, store.IsSingleValued("owner"))
	assert.False(t, store.IsSingleValued("category"))

	a, err := store.ApplyTag(ctx, testutil.UserOne, txRef("t1"), "owner", "alice", model.TagAttributes{})
	require.NoError(t, err)
	b, err := store.ApplyTag(ctx, testutil.UserOne, txRef("t1"), "owner", "bob", model.TagAttributes{})
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}

func TestApplyTag_Errors(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		scope   model.Scope
		ref     model.ResourceRef
		key     string
		value   string
		attrs   model.TagAttributes
		wantErr error
	}{
		{name: "other tenant's transaction", scope: testutil.UserOne, ref: txRef("x1"), key: "k", value: "v", wantErr: common.ErrTenantIsolation},
		{name: "unknown transaction", scope: testutil.UserOne, ref: txRef("nope"), key: "k", value: "v", wantErr: common.ErrNotFound},
		{name: "unknown resource type", scope: testutil.UserOne, ref: model.ResourceRef{Type: "invoice", ID: "i1"}, key: "k", value: "v", wantErr: common.ErrInvalidResource},
		{name: "missing resource id", scope: testutil.UserOne, ref: txRef(""), key: "k", value: "v", wantErr: common.ErrInvalidInput},
		{name: "missing key", scope: testutil.UserOne, ref: txRef("t1"), key: " ", value: "v", wantErr: common.ErrInvalidInput},
		{name: "missing value", scope: testutil.UserOne, ref: txRef("t1"), key: "k", value: "", wantErr: common.ErrInvalidInput},
		{name: "bad tag type", scope: testutil.UserOne, ref: txRef("t1"), key: "k", value: "v", attrs: model.TagAttributes{Type: "system"}, wantErr: common.ErrInvalidInput},
		{name: "unresolved scope", scope: model.Scope{Type: model.TenantUser}, ref: txRef("t1"), key: "k", value: "v", wantErr: common.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.ApplyTag(ctx, tt.scope, tt.ref, tt.key, tt.value, tt.attrs)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestApplyTag_UnresolvedResourceTypesUseTagScope(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	acct := model.ResourceRef{Type: model.ResourceAccount, ID: "acct-1"}
	_, err := store.ApplyTag(ctx, testutil.UserOne, acct, "owner", "alice", model.TagAttributes{})
	require.NoError(t, err)

	mine, err := store.GetResourceTags(ctx, testutil.UserOne, acct)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := store.GetResourceTags(ctx, testutil.UserTwo, acct)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

func TestRemoveAndRestoreTag(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	tag, err := store.ApplyTag(ctx, testutil.UserOne, txRef("t2"), "category", "FOOD_DINING", model.TagAttributes{})
	require.NoError(t, err)

	t.Run("other tenant cannot remove", func(t *testing.T) {
		err := store.RemoveTag(ctx, testutil.UserTwo, tag.ID)
		assert.ErrorIs(t, err, common.ErrTenantIsolation)
	})

	t.Run("unknown id", func(t *testing.T) {
		err := store.RemoveTag(ctx, testutil.UserOne, uuid.NewString())
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	require.NoError(t, store.RemoveTag(ctx, testutil.UserOne, tag.ID))
	require.NoError(t, store.RemoveTag(ctx, testutil.UserOne, tag.ID), "second remove is a no-op")

	active, err := store.GetResourceTags(ctx, testutil.UserOne, txRef("t2"))
	require.NoError(t, err)
	assert.Empty(t, active)

	kept, err := store.GetTag(ctx, testutil.UserOne, tag.ID)
	require.NoError(t, err)
	assert.False(t, kept.IsActive, "history is preserved")

	restored, err := store.RestoreTag(ctx, testutil.UserOne, tag.ID)
	require.NoError(t, err)
	assert.True(t, restored.IsActive)
	assert.Equal(t, "FOOD_DINING", restored.Value)

	t.Run("restore conflicts with a newer active value", func(t *testing.T) {
		require.NoError(t, store.RemoveTag(ctx, testutil.UserOne, tag.ID))
		_, err := store.ApplyTag(ctx, testutil.UserOne, txRef("t2"), "category", "SHOPPING", model.TagAttributes{})
		require.NoError(t, err)

		_, err = store.RestoreTag(ctx, testutil.UserOne, tag.ID)
		assert.ErrorIs(t, err, common.ErrConflict)
	})
}

func TestQueryResources(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	apply := func(scope model.Scope, id, key, value string) {
		t.Helper()
		_, err := store.ApplyTag(ctx, scope, txRef(id), key, value, model.TagAttributes{})
		require.NoError(t, err)
	}
	apply(testutil.UserOne, "t1", "A", "1")
	apply(testutil.UserOne, "t1", "B", "2")
	apply(testutil.UserOne, "t2", "A", "1")
	apply(testutil.UserTwo, "x1", "A", "1")
	apply(testutil.UserTwo, "x1", "B", "2")

	t.Run("and semantics", func(t *testing.T) {
		ids, err := store.QueryResources(ctx, testutil.UserOne, model.ResourceTransaction, map[string]string{"A": "1", "B": "2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"t1"}, ids)
		assert.NotContains(t, ids, "t2")
	})

	t.Run("no cross-tenant leakage", func(t *testing.T) {
		ids, err := store.QueryResources(ctx, testutil.UserOne, model.ResourceTransaction, map[string]string{"A": "1"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"t1", "t2"}, ids)
		assert.NotContains(t, ids, "x1")

		ids, err = store.QueryResources(ctx, testutil.UserTwo, model.ResourceTransaction, map[string]string{"A": "1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"x1"}, ids)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := store.QueryResources(ctx, testutil.UserOne, model.ResourceTransaction, nil)
		assert.ErrorIs(t, err, common.ErrInvalidInput)

		_, err = store.QueryResources(ctx, testutil.UserOne, "invoice", map[string]string{"A": "1"})
		assert.ErrorIs(t, err, common.ErrInvalidResource)

		_, err = store.QueryResources(ctx, testutil.UserOne, model.ResourceTransaction, map[string]string{"": "1"})
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})
}

func TestUpsertTag_Outcomes(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	_, outcome, err := store.UpsertTag(ctx, testutil.UserOne, txRef("t3"), "category", "FOOD_DINING", model.TagAttributes{}, false)
	require.NoError(t, err)
	assert.Equal(t, model.TagCreated, outcome)

	kept, outcome, err := store.UpsertTag(ctx, testutil.UserOne, txRef("t3"), "category", "SHOPPING", model.TagAttributes{}, false)
	require.NoError(t, err)
	assert.Equal(t, model.TagUnchanged, outcome)
	assert.Equal(t, "FOOD_DINING", kept.Value)

	over, outcome, err := store.UpsertTag(ctx, testutil.UserOne, txRef("t3"), "category", "SHOPPING", model.TagAttributes{}, true)
	require.NoError(t, err)
	assert.Equal(t, model.TagUpdated, outcome)
	assert.Equal(t, "SHOPPING", over.Value)

	byKey, err := store.ListTagsByKey(ctx, testutil.UserOne, model.ResourceTransaction, "category")
	require.NoError(t, err)
	require.Len(t, byKey, 1)
	assert.Equal(t, "SHOPPING", byKey[0].Value)
}
