package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ViewStatus tracks the computation lifecycle of an analytics view.
type ViewStatus string

const (
	// ViewPending indicates the view has been stored but not computed.
	ViewPending ViewStatus = "pending"
	// ViewComputing indicates a computation is running.
	ViewComputing ViewStatus = "computing"
	// ViewCompleted indicates the cached metrics are current as of LastComputed.
	ViewCompleted ViewStatus = "completed"
	// ViewFailed indicates the last computation failed; see Error.
	ViewFailed ViewStatus = "failed"
)

// Metrics is the count/sum/mean reduction over a resource set.
type Metrics struct {
	TotalAmount   decimal.Decimal `json:"total_amount"`
	AverageAmount decimal.Decimal `json:"average_amount"`
	TotalCount    int             `json:"total_count"`
}

// ViewMetrics is the cached payload of an analytics view.
type ViewMetrics struct {
	ComputedAt     time.Time                `json:"computed_at"`
	ByResourceType map[ResourceType]Metrics `json:"by_resource_type"`
	Metrics
}

// AnalyticsView is a named, cached, re-runnable analytics query.
type AnalyticsView struct {
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	LastComputed    *time.Time        `json:"last_computed,omitempty"`
	CachedMetrics   *ViewMetrics      `json:"cached_metrics,omitempty"`
	TagFilters      map[string]string `json:"tag_filters"`
	Scope           Scope             `json:"scope"`
	ID              string            `json:"id"`
	Name            string            `json:"view_name"`
	Description     string            `json:"view_description,omitempty"`
	Status          ViewStatus        `json:"computation_status"`
	Error           string            `json:"error,omitempty"`
	ResourceTypes   []ResourceType    `json:"resource_types"`
	CacheTTLSeconds int               `json:"cache_ttl_seconds"`
	AutoRefresh     bool              `json:"auto_refresh"`
}

// IsStale reports whether the cached payload has outlived its TTL.
// A view that was never computed is always stale.
func (v AnalyticsView) IsStale(now time.Time) bool {
	if v.LastComputed == nil {
		return true
	}
	return now.Sub(*v.LastComputed) > time.Duration(v.CacheTTLSeconds)*time.Second
}
