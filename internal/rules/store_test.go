package rules

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/service"
	"github.com/Veraticus/spendtag/internal/storage"
)

// memoryRepo is an in-memory RulePatternRepository with conflict injection.
type memoryRepo struct {
	table         model.PatternTable
	conflictsLeft int
	saves         int
	mu            sync.Mutex
}

func (r *memoryRepo) LoadPatternTable(_ context.Context) (model.PatternTable, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table.Clone(), nil
}

func (r *memoryRepo) SavePatternTable(_ context.Context, table model.PatternTable, expected int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		// Simulate a concurrent writer bumping the version.
		r.table.Version++
		return fmt.Errorf("%w: injected", common.ErrVersionConflict)
	}
	if r.table.Version != expected {
		return fmt.Errorf("%w: have %d want %d", common.ErrVersionConflict, r.table.Version, expected)
	}
	r.table = table.Clone()
	r.saves++
	return nil
}

var fastRetry = WithRetryOptions(service.RetryOptions{MaxAttempts: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

func TestNewStore_SeedsDefaults(t *testing.T) {
	repo := &memoryRepo{}
	store, err := NewStore(context.Background(), repo)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.saves)
	assert.Equal(t, 1, store.Snapshot().Version())

	got := store.Get()
	want := Defaults()
	assert.Equal(t, want.ClassificationPatterns, got.ClassificationPatterns)
	assert.Equal(t, want.CategoryPatterns, got.CategoryPatterns)

	t.Run("existing table is not reseeded", func(t *testing.T) {
		_, err := NewStore(context.Background(), repo)
		require.NoError(t, err)
		assert.Equal(t, 1, repo.saves)
	})
}

func TestUpdate_AppendOnlyMerge(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepo{}
	store, err := NewStore(ctx, repo, WithDefaults(model.PatternTable{
		ClassificationPatterns: []model.PatternBucket{{Name: "SUBSCRIPTION", Patterns: []string{`netflix`}}},
		CategoryPatterns:       []model.PatternBucket{{Name: "ENTERTAINMENT", Patterns: []string{`netflix`}}},
	}))
	require.NoError(t, err)

	updated, err := store.Update(ctx, model.PatternTable{
		ClassificationPatterns: []model.PatternBucket{
			{Name: "SUBSCRIPTION", Patterns: []string{`hulu`, `netflix`}},
			{Name: "GYM_MEMBERSHIP", Patterns: []string{`planet\s+fitness`}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, []model.PatternBucket{
		{Name: "SUBSCRIPTION", Patterns: []string{`netflix`, `hulu`}},
		{Name: "GYM_MEMBERSHIP", Patterns: []string{`planet\s+fitness`}},
	}, updated.ClassificationPatterns)
	assert.Equal(t, []model.PatternBucket{{Name: "ENTERTAINMENT", Patterns: []string{`netflix`}}},
		updated.CategoryPatterns, "names absent from the input are untouched")

	assert.Equal(t, updated, repo.table, "merged table is persisted")
	assert.Equal(t, 2, store.Snapshot().Version())
}

func TestUpdate_RejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepo{}
	store, err := NewStore(ctx, repo)
	require.NoError(t, err)

	tests := []struct {
		name    string
		partial model.PatternTable
	}{
		{
			name: "malformed regex",
			partial: model.PatternTable{
				ClassificationPatterns: []model.PatternBucket{{Name: "SUBSCRIPTION", Patterns: []string{`ok`, `(unclosed`}}},
			},
		},
		{
			name: "lookahead is unsupported",
			partial: model.PatternTable{
				CategoryPatterns: []model.PatternBucket{{Name: "TRANSPORTATION", Patterns: []string{`uber(?!\s+eats)`}}},
			},
		},
		{
			name: "lowercase name",
			partial: model.PatternTable{
				CategoryPatterns: []model.PatternBucket{{Name: "travel", Patterns: []string{`hotel`}}},
			},
		},
		{
			name: "empty pattern",
			partial: model.PatternTable{
				CategoryPatterns: []model.PatternBucket{{Name: "TRAVEL", Patterns: []string{""}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := repo.saves
			_, err := store.Update(ctx, tt.partial)
			require.ErrorIs(t, err, common.ErrInvalidInput)
			assert.Equal(t, before, repo.saves, "nothing written")
			assert.Equal(t, 1, store.Snapshot().Version())
		})
	}
}

func TestUpdate_RetriesVersionConflicts(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepo{}
	store, err := NewStore(ctx, repo, fastRetry)
	require.NoError(t, err)

	repo.conflictsLeft = 2
	updated, err := store.Update(ctx, model.PatternTable{
		CategoryPatterns: []model.PatternBucket{{Name: "TRAVEL", Patterns: []string{`hotel`}}},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Version, "two injected bumps plus our own")

	t.Run("gives up after max attempts", func(t *testing.T) {
		repo.conflictsLeft = 100
		_, err := store.Update(ctx, model.PatternTable{
			CategoryPatterns: []model.PatternBucket{{Name: "TRAVEL", Patterns: []string{`airbnb`}}},
		})
		require.ErrorIs(t, err, common.ErrVersionConflict)
		assert.ErrorIs(t, err, common.ErrMaxRetries)
	})
}

func TestUpdate_ConcurrentWritersConverge(t *testing.T) {
	ctx := context.Background()
	repo := &memoryRepo{}
	store, err := NewStore(ctx, repo, fastRetry)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Update(ctx, model.PatternTable{
				CategoryPatterns: []model.PatternBucket{{Name: "TRAVEL", Patterns: []string{fmt.Sprintf(`hotel%d`, i)}}},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	table := store.Get()
	assert.Equal(t, 9, table.Version)
	var travel model.PatternBucket
	for _, b := range table.CategoryPatterns {
		if b.Name == "TRAVEL" {
			travel = b
		}
	}
	assert.Len(t, travel.Patterns, 8)
}

func TestStore_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	require.NoError(t, db.Migrate(ctx))

	first, err := NewStore(ctx, db)
	require.NoError(t, err)
	_, err = first.Update(ctx, model.PatternTable{
		ClassificationPatterns: []model.PatternBucket{{Name: "SUBSCRIPTION", Patterns: []string{`patreon`}}},
	})
	require.NoError(t, err)

	second, err := NewStore(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, first.Get(), second.Get())
	assert.Equal(t, 2, second.Snapshot().Version())
}
