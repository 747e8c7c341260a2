package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
)

const viewColumns = `id, tenant_type, tenant_id, view_name, view_description, tag_filters,
	resource_types, cache_ttl_seconds, auto_refresh, computation_status, computation_error,
	cached_metrics, last_computed, created_at, updated_at`

// CreateView stores a new analytics view definition.
func (s *SQLiteStorage) CreateView(ctx context.Context, view *model.AnalyticsView) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateView(view); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	args, err := viewArgs(view)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analytics_views (`+viewColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return mapWriteError(err, "analytics view")
	}
	return nil
}

// UpdateView overwrites the mutable state of a view.
func (s *SQLiteStorage) UpdateView(ctx context.Context, view *model.AnalyticsView) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateView(view); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	args, err := viewArgs(view)
	if err != nil {
		return err
	}
	// view_name through last_computed, then updated_at and the id.
	updateArgs := append([]any{}, args[3:13]...)
	updateArgs = append(updateArgs, args[14], view.ID)

	result, err := s.db.ExecContext(ctx, `
		UPDATE analytics_views SET
			view_name = ?, view_description = ?, tag_filters = ?, resource_types = ?,
			cache_ttl_seconds = ?, auto_refresh = ?, computation_status = ?, computation_error = ?,
			cached_metrics = ?, last_computed = ?, updated_at = ?
		WHERE id = ?`, updateArgs...)
	if err != nil {
		return fmt.Errorf("failed to update analytics view: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: analytics view %s", common.ErrNotFound, view.ID)
	}
	return nil
}

// GetView retrieves a view by id regardless of tenant.
func (s *SQLiteStorage) GetView(ctx context.Context, id string) (*model.AnalyticsView, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+viewColumns+` FROM analytics_views WHERE id = ?`, id)
	view, err := scanView(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: analytics view %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics view: %w", err)
	}
	return view, nil
}

// ListViews returns the scope's views, oldest first.
func (s *SQLiteStorage) ListViews(ctx context.Context, scope model.Scope) ([]model.AnalyticsView, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+viewColumns+` FROM analytics_views
		WHERE tenant_type = ? AND tenant_id = ?
		ORDER BY created_at ASC, id ASC`,
		string(scope.Type), scope.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query analytics views: %w", err)
	}
	defer func() { _ = rows.Close() }()

	views := []model.AnalyticsView{}
	for rows.Next() {
		view, err := scanView(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analytics view: %w", err)
		}
		views = append(views, *view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating analytics views: %w", err)
	}
	return views, nil
}

func viewArgs(view *model.AnalyticsView) ([]any, error) {
	filters, err := json.Marshal(view.TagFilters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tag filters: %w", err)
	}
	resourceTypes, err := json.Marshal(view.ResourceTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode resource types: %w", err)
	}

	var cached sql.NullString
	if view.CachedMetrics != nil {
		b, err := json.Marshal(view.CachedMetrics)
		if err != nil {
			return nil, fmt.Errorf("failed to encode cached metrics: %w", err)
		}
		cached = sql.NullString{String: string(b), Valid: true}
	}

	var lastComputed sql.NullTime
	if view.LastComputed != nil {
		lastComputed = sql.NullTime{Time: view.LastComputed.UTC(), Valid: true}
	}

	return []any{
		view.ID,
		string(view.Scope.Type),
		view.Scope.ID,
		view.Name,
		view.Description,
		string(filters),
		string(resourceTypes),
		view.CacheTTLSeconds,
		view.AutoRefresh,
		string(view.Status),
		view.Error,
		cached,
		lastComputed,
		view.CreatedAt.UTC(),
		view.UpdatedAt.UTC(),
	}, nil
}

func scanView(row rowScanner) (*model.AnalyticsView, error) {
	var (
		view          model.AnalyticsView
		tenantType    string
		filters       string
		resourceTypes string
		status        string
		cached        sql.NullString
		lastComputed  sql.NullTime
	)
	if err := row.Scan(
		&view.ID,
		&tenantType,
		&view.Scope.ID,
		&view.Name,
		&view.Description,
		&filters,
		&resourceTypes,
		&view.CacheTTLSeconds,
		&view.AutoRefresh,
		&status,
		&view.Error,
		&cached,
		&lastComputed,
		&view.CreatedAt,
		&view.UpdatedAt,
	); err != nil {
		return nil, err
	}

	view.Scope.Type = model.TenantType(tenantType)
	view.Status = model.ViewStatus(status)
	view.CreatedAt = view.CreatedAt.UTC()
	view.UpdatedAt = view.UpdatedAt.UTC()

	if err := json.Unmarshal([]byte(filters), &view.TagFilters); err != nil {
		return nil, fmt.Errorf("failed to decode tag filters: %w", err)
	}
	if err := json.Unmarshal([]byte(resourceTypes), &view.ResourceTypes); err != nil {
		return nil, fmt.Errorf("failed to decode resource types: %w", err)
	}
	if cached.Valid && cached.String != "" {
		var m model.ViewMetrics
		if err := json.Unmarshal([]byte(cached.String), &m); err != nil {
			return nil, fmt.Errorf("failed to decode cached metrics: %w", err)
		}
		view.CachedMetrics = &m
	}
	if lastComputed.Valid {
		t := lastComputed.Time.UTC()
		view.LastComputed = &t
	}
	return &view, nil
}
