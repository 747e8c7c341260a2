// Package analytics answers aggregate questions over tagged transactions:
// metrics for a tag filter, per-value distributions, anomalies, monthly
// breakdowns and classification/category cross-tabulations. It also manages
// Analytics Views, cached re-runnable metric queries.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/metrics"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/service"
)

// lookupChunk bounds the number of ids bound into one IN clause.
const lookupChunk = 500

// TagReader is the read side of the tag store used by analytics.
type TagReader interface {
	QueryResources(ctx context.Context, scope model.Scope, resourceType model.ResourceType, filters map[string]string) ([]string, error)
	ListTagsByKey(ctx context.Context, scope model.Scope, resourceType model.ResourceType, key string) ([]model.Tag, error)
}

// Config holds the analytics tunables.
type Config struct {
	Multipliers Multipliers
}

// DefaultConfig returns k = 3/2/1 for low/medium/high.
func DefaultConfig() Config {
	return Config{
		Multipliers: Multipliers{Low: 3.0, Medium: 2.0, High: 1.0},
	}
}

// Engine computes analytics. All reads are scoped to the caller's tenant.
type Engine struct {
	transactions service.TransactionRepository
	tags         TagReader
	logger       *slog.Logger
	metrics      *metrics.Collector
	now          func() time.Time
	config       Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithClock overrides the engine's notion of now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an analytics engine with the default configuration.
func New(transactions service.TransactionRepository, tags TagReader, opts ...Option) *Engine {
	return NewWithConfig(transactions, tags, DefaultConfig(), opts...)
}

// NewWithConfig creates an analytics engine with custom configuration.
func NewWithConfig(transactions service.TransactionRepository, tags TagReader, config Config, opts ...Option) *Engine {
	e := &Engine{
		transactions: transactions,
		tags:         tags,
		config:       config,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = common.LoggerOrDefault(e.logger)
	return e
}

// ComputeMetrics reduces the resources matching every tag filter to
// count, sum and mean. Only transactions carry an amount; other resource
// types contribute to the count alone.
func (e *Engine) ComputeMetrics(ctx context.Context, scope model.Scope, resourceType model.ResourceType, filters map[string]string) (model.Metrics, error) {
	ids, err := e.tags.QueryResources(ctx, scope, resourceType, filters)
	if err != nil {
		return model.Metrics{}, err
	}

	m := model.Metrics{TotalCount: len(ids), TotalAmount: decimal.Zero}
	if resourceType == model.ResourceTransaction && len(ids) > 0 {
		txns, err := e.loadTransactions(ctx, scope, ids)
		if err != nil {
			return model.Metrics{}, err
		}
		for _, txn := range txns {
			m.TotalAmount = m.TotalAmount.Add(txn.Amount)
		}
	}
	m.AverageAmount = mean(m.TotalAmount, m.TotalCount)
	return m, nil
}

// Distribution groups the active tags of one axis by value.
func (e *Engine) Distribution(ctx context.Context, scope model.Scope, resourceType model.ResourceType, axis Axis) (*Distribution, error) {
	if _, err := ParseAxis(string(axis)); err != nil {
		return nil, err
	}
	list, err := e.tags.ListTagsByKey(ctx, scope, resourceType, string(axis))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s tags: %w", axis, err)
	}

	var amounts map[string]model.Transaction
	if resourceType == model.ResourceTransaction && len(list) > 0 {
		ids := make([]string, len(list))
		for i, tag := range list {
			ids[i] = tag.Resource.ID
		}
		amounts, err = e.loadTransactions(ctx, scope, ids)
		if err != nil {
			return nil, err
		}
	}

	byValue := make(map[string]*DistributionBucket)
	dist := &Distribution{Axis: axis, ResourceType: resourceType, TotalAmount: decimal.Zero}
	for _, tag := range list {
		b, ok := byValue[tag.Value]
		if !ok {
			b = &DistributionBucket{Value: tag.Value, TotalAmount: decimal.Zero}
			byValue[tag.Value] = b
		}
		b.Count++
		dist.TotalCount++
		if txn, ok := amounts[tag.Resource.ID]; ok {
			b.TotalAmount = b.TotalAmount.Add(txn.Amount)
			dist.TotalAmount = dist.TotalAmount.Add(txn.Amount)
		}
	}

	dist.Buckets = make([]DistributionBucket, 0, len(byValue))
	for _, b := range byValue {
		b.Percentage = percentage(b.Count, dist.TotalCount)
		dist.Buckets = append(dist.Buckets, *b)
	}
	sort.Slice(dist.Buckets, func(i, j int) bool {
		if dist.Buckets[i].Count != dist.Buckets[j].Count {
			return dist.Buckets[i].Count > dist.Buckets[j].Count
		}
		return dist.Buckets[i].Value < dist.Buckets[j].Value
	})
	return dist, nil
}

// loadTransactions fetches the scope's transactions by id, keyed by id.
// Ids of other tenants are silently absent.
func (e *Engine) loadTransactions(ctx context.Context, scope model.Scope, ids []string) (map[string]model.Transaction, error) {
	out := make(map[string]model.Transaction, len(ids))
	for start := 0; start < len(ids); start += lookupChunk {
		end := min(start+lookupChunk, len(ids))
		txns, err := e.transactions.GetTransactionsByIDs(ctx, scope, ids[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to load transactions: %w", err)
		}
		for _, txn := range txns {
			out[txn.ID] = txn
		}
	}
	return out, nil
}

// labels maps transaction ids to their classification and category values.
type labels struct {
	classification map[string]string
	category       map[string]string
}

func (l labels) of(id string) (model.Classification, model.Category) {
	class, ok := l.classification[id]
	if !ok {
		class = string(model.ClassificationUnknown)
	}
	cat, ok := l.category[id]
	if !ok {
		cat = string(model.CategoryUncategorized)
	}
	return model.Classification(class), model.Category(cat)
}

func (e *Engine) loadLabels(ctx context.Context, scope model.Scope) (labels, error) {
	l := labels{}
	var err error
	if l.classification, err = e.tagValues(ctx, scope, model.TagKeyClassification); err != nil {
		return labels{}, err
	}
	if l.category, err = e.tagValues(ctx, scope, model.TagKeyCategory); err != nil {
		return labels{}, err
	}
	return l, nil
}

func (e *Engine) tagValues(ctx context.Context, scope model.Scope, key string) (map[string]string, error) {
	list, err := e.tags.ListTagsByKey(ctx, scope, model.ResourceTransaction, key)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s tags: %w", key, err)
	}
	out := make(map[string]string, len(list))
	for _, tag := range list {
		out[tag.Resource.ID] = tag.Value
	}
	return out, nil
}

func mean(total decimal.Decimal, count int) decimal.Decimal {
	if count == 0 {
		return decimal.Zero
	}
	return total.DivRound(decimal.NewFromInt(int64(count)), 2)
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}
