package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/service"
)

// Store is the durable, versioned rule table. Reads are lock-free through
// an atomically swapped Snapshot; updates are serialized.
type Store struct {
	repo     service.RulePatternRepository
	logger   *slog.Logger
	current  atomic.Pointer[Snapshot]
	defaults model.PatternTable
	retry    service.RetryOptions
	mu       sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithDefaults replaces the table seeded into an empty repository.
func WithDefaults(table model.PatternTable) Option {
	return func(s *Store) {
		s.defaults = table
	}
}

// WithRetryOptions tunes the retry loop used on version conflicts.
func WithRetryOptions(opts service.RetryOptions) Option {
	return func(s *Store) {
		s.retry = opts
	}
}

// NewStore loads the persisted table, seeding the defaults on first use.
func NewStore(ctx context.Context, repo service.RulePatternRepository, opts ...Option) (*Store, error) {
	s := &Store{
		repo:     repo,
		defaults: Defaults(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = common.LoggerOrDefault(s.logger)

	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload replaces the in-memory snapshot with the persisted table.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, err := s.repo.LoadPatternTable(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rule table: %w", err)
	}

	if table.Version == 0 {
		seed := s.defaults.Clone()
		seed.Version = 1
		if err := s.repo.SavePatternTable(ctx, seed, 0); err != nil {
			return fmt.Errorf("failed to seed default rule table: %w", err)
		}
		s.logger.InfoContext(ctx, "Seeded default rule table",
			"classification_buckets", len(seed.ClassificationPatterns),
			"category_buckets", len(seed.CategoryPatterns))
		table = seed
	}

	snap, err := Compile(table)
	if err != nil {
		return fmt.Errorf("stored rule table is invalid: %w", err)
	}
	s.current.Store(snap)
	return nil
}

// Snapshot returns the current compiled rule table.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Get returns the current effective table.
func (s *Store) Get() model.PatternTable {
	return s.Snapshot().Table()
}

// Update merges partial into the stored table and persists the result.
// Every name and pattern is validated before anything is written.
func (s *Store) Update(ctx context.Context, partial model.PatternTable) (model.PatternTable, error) {
	if err := Validate(partial); err != nil {
		return model.PatternTable{}, err
	}
	if partial.IsEmpty() {
		return s.Get(), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var merged *Snapshot
	err := common.WithRetry(ctx, func() error {
		// The repository is authoritative; another process may have advanced it.
		base, err := s.repo.LoadPatternTable(ctx)
		if err != nil {
			return fmt.Errorf("failed to load rule table: %w", err)
		}

		next := Merge(base, partial)
		next.Version = base.Version + 1

		snap, err := Compile(next)
		if err != nil {
			return err
		}
		if err := s.repo.SavePatternTable(ctx, next, base.Version); err != nil {
			return err
		}
		merged = snap
		return nil
	}, s.retry)
	if err != nil {
		return model.PatternTable{}, fmt.Errorf("failed to update rule table: %w", err)
	}

	s.current.Store(merged)
	s.logger.InfoContext(ctx, "Updated rule table", "version", merged.Version())
	return merged.Table(), nil
}

// Merge appends each bucket of partial onto base. Buckets with a new name are
// added after the existing ones; patterns already present in a bucket are
// not duplicated. Nothing is ever removed.
func Merge(base, partial model.PatternTable) model.PatternTable {
	out := base.Clone()
	out.ClassificationPatterns = mergeBuckets(out.ClassificationPatterns, partial.ClassificationPatterns)
	out.CategoryPatterns = mergeBuckets(out.CategoryPatterns, partial.CategoryPatterns)
	return out
}

func mergeBuckets(base, add []model.PatternBucket) []model.PatternBucket {
	index := make(map[string]int, len(base))
	for i, b := range base {
		index[b.Name] = i
	}

	for _, b := range add {
		i, ok := index[b.Name]
		if !ok {
			base = append(base, model.PatternBucket{Name: b.Name})
			i = len(base) - 1
			index[b.Name] = i
		}

		seen := make(map[string]bool, len(base[i].Patterns))
		for _, p := range base[i].Patterns {
			seen[p] = true
		}
		for _, p := range b.Patterns {
			if !seen[p] {
				base[i].Patterns = append(base[i].Patterns, p)
				seen[p] = true
			}
		}
	}
	return base
}
