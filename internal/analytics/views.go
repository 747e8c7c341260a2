package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/metrics"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/service"
)

// DefaultCacheTTL applies to views created without a positive TTL.
const DefaultCacheTTL = time.Hour

// ViewSpec is the caller-supplied definition of a view.
type ViewSpec struct {
	TagFilters      map[string]string    `json:"tag_filters"`
	Name            string               `json:"view_name"`
	Description     string               `json:"view_description,omitempty"`
	ResourceTypes   []model.ResourceType `json:"resource_types,omitempty"`
	CacheTTLSeconds int                  `json:"cache_ttl_seconds,omitempty"`
	AutoRefresh     bool                 `json:"auto_refresh"`
}

// Views manages the Analytics View lifecycle. At most one computation runs
// per view id; concurrent refreshes share its result.
type Views struct {
	repo       service.ViewRepository
	engine     *Engine
	logger     *slog.Logger
	metrics    *metrics.Collector
	now        func() time.Time
	group      singleflight.Group
	defaultTTL time.Duration
}

// ViewOption configures Views.
type ViewOption func(*Views)

// WithViewLogger sets the logger.
func WithViewLogger(l *slog.Logger) ViewOption {
	return func(v *Views) {
		v.logger = l
	}
}

// WithViewMetrics attaches a metrics collector.
func WithViewMetrics(m *metrics.Collector) ViewOption {
	return func(v *Views) {
		v.metrics = m
	}
}

// WithViewClock overrides the staleness clock.
func WithViewClock(now func() time.Time) ViewOption {
	return func(v *Views) {
		v.now = now
	}
}

// WithDefaultTTL sets the TTL for views created without one.
func WithDefaultTTL(d time.Duration) ViewOption {
	return func(v *Views) {
		if d > 0 {
			v.defaultTTL = d
		}
	}
}

// NewViews creates the view manager.
func NewViews(repo service.ViewRepository, engine *Engine, opts ...ViewOption) *Views {
	v := &Views{
		repo:       repo,
		engine:     engine,
		now:        time.Now,
		defaultTTL: DefaultCacheTTL,
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = common.LoggerOrDefault(v.logger)
	return v
}

// Create stores a view as pending and computes it synchronously. On a
// computation failure the stored view is returned with status failed along
// with an error wrapping ErrComputationFailed.
func (v *Views) Create(ctx context.Context, scope model.Scope, spec ViewSpec) (*model.AnalyticsView, error) {
	if err := scope.Validate(); err != nil {
		return nil, common.InvalidInputf("%v", err)
	}
	if strings.TrimSpace(spec.Name) == "" {
		return nil, common.InvalidInputf("view name is required")
	}
	if len(spec.TagFilters) == 0 {
		return nil, common.InvalidInputf("at least one tag filter is required")
	}
	resourceTypes := spec.ResourceTypes
	if len(resourceTypes) == 0 {
		resourceTypes = []model.ResourceType{model.ResourceTransaction}
	}
	for _, rt := range resourceTypes {
		if !rt.Valid() {
			return nil, fmt.Errorf("%w: %q", common.ErrInvalidResource, rt)
		}
	}
	ttl := spec.CacheTTLSeconds
	if ttl <= 0 {
		ttl = int(v.defaultTTL / time.Second)
	}

	now := v.now().UTC()
	view := &model.AnalyticsView{
		ID:              uuid.NewString(),
		Scope:           scope,
		Name:            spec.Name,
		Description:     spec.Description,
		TagFilters:      spec.TagFilters,
		ResourceTypes:   resourceTypes,
		CacheTTLSeconds: ttl,
		AutoRefresh:     spec.AutoRefresh,
		Status:          model.ViewPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := v.repo.CreateView(ctx, view); err != nil {
		return nil, fmt.Errorf("failed to store view: %w", err)
	}

	v.logger.InfoContext(ctx, "Created analytics view",
		"view_id", view.ID,
		"view_name", view.Name,
		"scope", scope.String())
	return v.refresh(ctx, view)
}

// Get returns a view owned by scope. A stale view is recomputed first when
// its auto_refresh flag is set; otherwise the cached payload is served.
func (v *Views) Get(ctx context.Context, scope model.Scope, id string) (*model.AnalyticsView, error) {
	view, err := v.owned(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if view.AutoRefresh && view.IsStale(v.now()) {
		v.logger.DebugContext(ctx, "Refreshing stale view", "view_id", id)
		return v.refresh(ctx, view)
	}
	return view, nil
}

// List returns the views of a tenant.
func (v *Views) List(ctx context.Context, scope model.Scope) ([]model.AnalyticsView, error) {
	if err := scope.Validate(); err != nil {
		return nil, common.InvalidInputf("%v", err)
	}
	return v.repo.ListViews(ctx, scope)
}

// Refresh recomputes a view regardless of its TTL.
func (v *Views) Refresh(ctx context.Context, scope model.Scope, id string) (*model.AnalyticsView, error) {
	view, err := v.owned(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	return v.refresh(ctx, view)
}

func (v *Views) owned(ctx context.Context, scope model.Scope, id string) (*model.AnalyticsView, error) {
	if err := scope.Validate(); err != nil {
		return nil, common.InvalidInputf("%v", err)
	}
	if strings.TrimSpace(id) == "" {
		return nil, common.InvalidInputf("view id is required")
	}
	view, err := v.repo.GetView(ctx, id)
	if err != nil {
		return nil, err
	}
	if !view.Scope.Equal(scope) {
		return nil, fmt.Errorf("%w: view %s", common.ErrTenantIsolation, id)
	}
	return view, nil
}

// refresh runs or joins the in-flight computation of view.ID. Each caller
// receives its own copy of the result.
func (v *Views) refresh(ctx context.Context, view *model.AnalyticsView) (*model.AnalyticsView, error) {
	res, err, shared := v.group.Do(view.ID, func() (any, error) {
		return v.compute(ctx, view)
	})
	if shared {
		v.logger.DebugContext(ctx, "Joined in-flight view computation", "view_id", view.ID)
	}
	out, _ := res.(*model.AnalyticsView)
	if out != nil {
		cp := *out
		out = &cp
	}
	return out, err
}

func (v *Views) compute(ctx context.Context, view *model.AnalyticsView) (*model.AnalyticsView, error) {
	start := time.Now()

	view.Status = model.ViewComputing
	view.UpdatedAt = v.now().UTC()
	if err := v.repo.UpdateView(ctx, view); err != nil {
		return nil, fmt.Errorf("failed to mark view computing: %w", err)
	}

	payload, err := v.computePayload(ctx, view)
	v.metrics.RecordViewRefresh(time.Since(start), err == nil)

	now := v.now().UTC()
	view.UpdatedAt = now
	if err != nil {
		view.Status = model.ViewFailed
		view.Error = err.Error()
		if updateErr := v.repo.UpdateView(ctx, view); updateErr != nil {
			v.logger.WarnContext(ctx, "Failed to record view failure",
				"view_id", view.ID,
				"error", updateErr)
		}
		common.LogError(ctx, v.logger, err, "View computation failed", common.Fields{
			"view_id": view.ID,
			"scope":   view.Scope.String(),
		})
		return view, fmt.Errorf("%w: view %s: %v", common.ErrComputationFailed, view.ID, err)
	}

	view.Status = model.ViewCompleted
	view.Error = ""
	view.CachedMetrics = payload
	view.LastComputed = &now
	if err := v.repo.UpdateView(ctx, view); err != nil {
		return nil, fmt.Errorf("failed to store view metrics: %w", err)
	}

	v.logger.InfoContext(ctx, "Computed analytics view",
		"view_id", view.ID,
		"total_count", payload.TotalCount,
		"duration", time.Since(start))
	return view, nil
}

func (v *Views) computePayload(ctx context.Context, view *model.AnalyticsView) (payload *model.ViewMetrics, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload = nil
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	payload = &model.ViewMetrics{
		ByResourceType: make(map[model.ResourceType]model.Metrics, len(view.ResourceTypes)),
		Metrics:        model.Metrics{TotalAmount: decimal.Zero},
	}
	for _, rt := range view.ResourceTypes {
		m, err := v.engine.ComputeMetrics(ctx, view.Scope, rt, view.TagFilters)
		if err != nil {
			return nil, err
		}
		payload.ByResourceType[rt] = m
		payload.TotalCount += m.TotalCount
		payload.TotalAmount = payload.TotalAmount.Add(m.TotalAmount)
	}
	payload.AverageAmount = mean(payload.TotalAmount, payload.TotalCount)
	payload.ComputedAt = v.now().UTC()
	return payload, nil
}
