// Package service defines the collaborator contracts of the tagging core.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spendtag/internal/model"
)

// TransactionFilter defines filtering options for transaction queries.
// Start is inclusive, End is exclusive.
type TransactionFilter struct {
	Start *time.Time
	End   *time.Time
}

// TransactionRepository exposes read access to the ledger's transactions.
// SaveTransactions exists so the CLI can seed the ledger from imports.
type TransactionRepository interface {
	SaveTransactions(ctx context.Context, transactions []model.Transaction) error
	// GetTransaction looks a transaction up regardless of tenant so callers
	// can tell "absent" from "owned by someone else".
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactionsByIDs(ctx context.Context, scope model.Scope, ids []string) ([]model.Transaction, error)
	ListTransactions(ctx context.Context, scope model.Scope, filter TransactionFilter) ([]model.Transaction, error)
}

// TagRepository persists tags with tenant-scoped unique-key upsert.
type TagRepository interface {
	// UpsertSingleValuedTag writes tag as the one active value for its
	// (scope, resource, key). With overwrite false an existing active tag is
	// left untouched and returned.
	UpsertSingleValuedTag(ctx context.Context, tag model.Tag, overwrite bool) (*model.Tag, model.TagWriteOutcome, error)
	InsertTag(ctx context.Context, tag model.Tag) (*model.Tag, error)
	// GetTag looks a tag up regardless of tenant.
	GetTag(ctx context.Context, id string) (*model.Tag, error)
	SetTagActive(ctx context.Context, id string, active bool, at time.Time) error
	ListResourceTags(ctx context.Context, scope model.Scope, ref model.ResourceRef) ([]model.Tag, error)
	ListTagsByKey(ctx context.Context, scope model.Scope, resourceType model.ResourceType, key string) ([]model.Tag, error)
	QueryResourceIDs(ctx context.Context, scope model.Scope, resourceType model.ResourceType, filters map[string]string) ([]string, error)
}

// ViewRepository persists analytics view definitions and their cached payloads.
type ViewRepository interface {
	CreateView(ctx context.Context, view *model.AnalyticsView) error
	UpdateView(ctx context.Context, view *model.AnalyticsView) error
	// GetView looks a view up regardless of tenant.
	GetView(ctx context.Context, id string) (*model.AnalyticsView, error)
	ListViews(ctx context.Context, scope model.Scope) ([]model.AnalyticsView, error)
}

// RulePatternRepository persists the rule table.
type RulePatternRepository interface {
	// LoadPatternTable returns the stored table; Version is 0 if nothing was ever saved.
	LoadPatternTable(ctx context.Context) (model.PatternTable, error)
	// SavePatternTable replaces the stored table if the stored version still
	// equals expectedVersion, and stores table.Version.
	SavePatternTable(ctx context.Context, table model.PatternTable, expectedVersion int) error
}

// Storage is the full persistence layer.
type Storage interface {
	TransactionRepository
	TagRepository
	ViewRepository
	RulePatternRepository

	Migrate(ctx context.Context) error
	Close() error
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
