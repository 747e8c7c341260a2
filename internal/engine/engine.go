// Package engine implements the auto-tagger: it classifies transactions and
// records the outcome as "classification" and "category" tags.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Veraticus/spendtag/internal/classifier"
	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/metrics"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/rules"
	"github.com/Veraticus/spendtag/internal/service"
)

// Config holds configuration options for the auto-tagger.
type Config struct {
	Thresholds      classifier.Thresholds
	BulkConcurrency int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Thresholds:      classifier.DefaultThresholds(),
		BulkConcurrency: 4,
	}
}

// TagOptions controls how a classification is recorded.
type TagOptions struct {
	// CreateTags writes the classification and category tags.
	CreateTags bool
	// ForceReclassify overwrites existing active tags, even manual ones.
	ForceReclassify bool
}

// AutoTagger orchestrates the classifier and the tag store.
type AutoTagger struct {
	transactions service.TransactionRepository
	tags         TagWriter
	rules        rules.Source
	logger       *slog.Logger
	metrics      *metrics.Collector
	config       Config
}

// Option configures an AutoTagger.
type Option func(*AutoTagger)

// WithLogger sets the auto-tagger's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *AutoTagger) {
		a.logger = l
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(a *AutoTagger) {
		a.metrics = m
	}
}

// New creates an auto-tagger with the default configuration.
func New(transactions service.TransactionRepository, tags TagWriter, source rules.Source, opts ...Option) *AutoTagger {
	return NewWithConfig(transactions, tags, source, DefaultConfig(), opts...)
}

// NewWithConfig creates an auto-tagger with custom configuration.
func NewWithConfig(transactions service.TransactionRepository, tags TagWriter, source rules.Source, config Config, opts ...Option) *AutoTagger {
	if config.BulkConcurrency < 1 {
		config.BulkConcurrency = 1
	}
	a := &AutoTagger{
		transactions: transactions,
		tags:         tags,
		rules:        source,
		config:       config,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = common.LoggerOrDefault(a.logger)
	return a
}

// Classifier returns a classifier bound to the current rule snapshot.
func (a *AutoTagger) Classifier() *classifier.Classifier {
	return classifier.New(a.rules.Snapshot(), a.config.Thresholds)
}

// Classify computes the classification of txn without touching any state.
func (a *AutoTagger) Classify(txn model.Transaction) model.Classification {
	return a.Classifier().Classify(txn)
}

// Categorize computes the category of txn without touching any state.
func (a *AutoTagger) Categorize(txn model.Transaction) model.Category {
	return a.Classifier().Categorize(txn)
}

// ClassifyTransaction loads a transaction owned by scope and auto-classifies it.
func (a *AutoTagger) ClassifyTransaction(ctx context.Context, scope model.Scope, id string, opts TagOptions) (*model.ClassificationResult, error) {
	txn, err := a.loadOwned(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	return a.AutoClassifyAndCategorize(ctx, *txn, opts)
}

// AutoClassifyAndCategorize classifies txn and, when requested, upserts its
// classification and category tags. Without ForceReclassify an existing
// active tag wins and its value is returned instead of the computed one.
func (a *AutoTagger) AutoClassifyAndCategorize(ctx context.Context, txn model.Transaction, opts TagOptions) (*model.ClassificationResult, error) {
	c := a.Classifier()
	result := c.Evaluate(txn)
	a.metrics.RecordClassification(string(result.Classification))

	if !opts.CreateTags {
		return &result, nil
	}

	attrs := model.TagAttributes{
		Type: model.TagTypeCategory,
		Metadata: map[string]any{
			model.MetaAutoGenerated: true,
			model.MetaRuleVersion:   c.RuleVersion(),
		},
	}
	ref := txn.Ref()

	classTag, _, err := a.tags.UpsertTag(ctx, txn.Scope, ref, model.TagKeyClassification, string(result.Classification), attrs, opts.ForceReclassify)
	if err != nil {
		return nil, fmt.Errorf("failed to write classification tag: %w", err)
	}
	catTag, _, err := a.tags.UpsertTag(ctx, txn.Scope, ref, model.TagKeyCategory, string(result.Category), attrs, opts.ForceReclassify)
	if err != nil {
		return nil, fmt.Errorf("failed to write category tag: %w", err)
	}

	result.Classification = model.Classification(classTag.Value)
	result.Category = model.Category(catTag.Value)
	result.AutoGenerated = classTag.AutoGenerated() && catTag.AutoGenerated()

	a.logger.DebugContext(ctx, "Auto-tagged transaction",
		"transaction_id", txn.ID,
		"classification", result.Classification,
		"category", result.Category,
		"auto_generated", result.AutoGenerated)
	return &result, nil
}

// loadOwned fetches a transaction and enforces that scope owns it.
func (a *AutoTagger) loadOwned(ctx context.Context, scope model.Scope, id string) (*model.Transaction, error) {
	if err := scope.Validate(); err != nil {
		return nil, common.InvalidInputf("%v", err)
	}
	if id == "" {
		return nil, common.InvalidInputf("transaction id is required")
	}

	txn, err := a.transactions.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if !txn.Scope.Equal(scope) {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrTenantIsolation, id)
	}
	return txn, nil
}
