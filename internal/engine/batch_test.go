package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/rules"
	"github.com/Veraticus/spendtag/internal/testutil"
)

func TestClassifyBatch_PerItemFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var calls []int
	res, err := f.tagger.ClassifyBatch(ctx, testutil.UserOne, []string{"netflix", "foreign", "missing", "coffee"}, BatchOptions{
		TagOptions: TagOptions{CreateTags: true},
		Progress:   func(done, _ int) { calls = append(calls, done) },
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 2, res.Failed)
	require.Len(t, res.Results, 4)

	assert.Equal(t, "netflix", res.Results[0].TransactionID)
	require.NotNil(t, res.Results[0].Result)
	assert.Equal(t, model.ClassificationSubscription, res.Results[0].Result.Classification)

	assert.Equal(t, "foreign", res.Results[1].TransactionID)
	assert.ErrorIs(t, res.Results[1].Err, common.ErrTenantIsolation)
	assert.Equal(t, "tenant_isolation_violation", res.Results[1].ErrorCode)

	assert.ErrorIs(t, res.Results[2].Err, common.ErrNotFound)
	assert.Equal(t, "not_found", res.Results[2].ErrorCode)

	assert.Equal(t, model.ClassificationMicroTransaction, res.Results[3].Result.Classification)

	assert.Equal(t, []int{1, 2, 3, 4}, calls)
	assert.Equal(t, "SUBSCRIPTION", f.tagValues(t, testutil.UserOne, "netflix")[model.TagKeyClassification])
}

func TestClassifyBatch_AllForTenant(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	res, err := f.tagger.ClassifyBatch(ctx, testutil.UserOne, nil, BatchOptions{TagOptions: TagOptions{CreateTags: true}})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Succeeded)
	assert.Zero(t, res.Failed)

	got := map[string]model.Classification{}
	for _, item := range res.Results {
		got[item.TransactionID] = item.Result.Classification
	}
	assert.Equal(t, map[string]model.Classification{
		"netflix": model.ClassificationSubscription,
		"wire":    model.ClassificationLargeTransfer,
		"coffee":  model.ClassificationMicroTransaction,
		"salary":  model.ClassificationSalaryIncome,
	}, got)

	assert.Empty(t, f.tagValues(t, testutil.UserTwo, "foreign"), "other tenants untouched")
}

func TestClassifyBatch_Failures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("every item failing fails the call", func(t *testing.T) {
		res, err := f.tagger.ClassifyBatch(ctx, testutil.UserOne, []string{"foreign", "missing"}, BatchOptions{})
		require.ErrorIs(t, err, common.ErrBatchFailed)
		require.NotNil(t, res)
		assert.Equal(t, 2, res.Failed)
	})

	t.Run("explicitly empty list is invalid", func(t *testing.T) {
		_, err := f.tagger.ClassifyBatch(ctx, testutil.UserOne, []string{}, BatchOptions{})
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("tenant with no transactions", func(t *testing.T) {
		res, err := f.tagger.ClassifyBatch(ctx, testutil.OrgOne, nil, BatchOptions{})
		require.NoError(t, err)
		assert.Empty(t, res.Results)
	})
}

func TestDryRun(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.tagger.ClassifyBatch(ctx, testutil.UserOne, nil, BatchOptions{TagOptions: TagOptions{CreateTags: true}})
	require.NoError(t, err)

	// A rule change that reclassifies coffee as a subscription.
	table := rules.Defaults()
	table.ClassificationPatterns[1].Patterns = append(table.ClassificationPatterns[1].Patterns, `coffee\s+shop`)
	table.Version = 2
	changed := New(f.db.Storage, f.tags, rules.Fixed(rules.MustCompile(table)))

	results, err := changed.DryRun(ctx, testutil.UserOne, nil)
	require.NoError(t, err)
	require.Len(t, results, 4)

	byID := map[string]DryRunResult{}
	for _, r := range results {
		byID[r.TransactionID] = r
	}
	assert.True(t, byID["coffee"].Changed)
	assert.Equal(t, "MICRO_TRANSACTION", byID["coffee"].CurrentClassification)
	assert.Equal(t, model.ClassificationSubscription, byID["coffee"].ProposedClassification)
	assert.False(t, byID["netflix"].Changed)

	assert.Equal(t, "MICRO_TRANSACTION", f.tagValues(t, testutil.UserOne, "coffee")[model.TagKeyClassification], "dry run writes nothing")

	t.Run("explicit ids enforce ownership", func(t *testing.T) {
		_, err := changed.DryRun(ctx, testutil.UserOne, []string{"foreign"})
		assert.ErrorIs(t, err, common.ErrTenantIsolation)
	})
}
