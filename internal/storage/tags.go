package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
)

const tagColumns = `id, tenant_type, tenant_id, tag_type, tag_key, tag_value,
	resource_type, resource_id, label, description, color, metadata,
	single_valued, is_active, created_at, updated_at`

// UpsertSingleValuedTag writes tag as the single active value for its
// (scope, resource, key) in one statement against the partial unique index.
func (s *SQLiteStorage) UpsertSingleValuedTag(ctx context.Context, tag model.Tag, overwrite bool) (*model.Tag, model.TagWriteOutcome, error) {
	if err := validateContext(ctx); err != nil {
		return nil, "", err
	}
	tag.SingleValued = true
	tag.IsActive = true
	if err := validateTag(&tag); err != nil {
		return nil, "", wrapTagValidation(err)
	}

	metadata, err := encodeMetadata(tag.Metadata)
	if err != nil {
		return nil, "", err
	}

	conflictAction := `DO NOTHING`
	if overwrite {
		conflictAction = `DO UPDATE SET
			tag_type = excluded.tag_type,
			tag_value = excluded.tag_value,
			label = excluded.label,
			description = excluded.description,
			color = excluded.color,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`
	}

	var (
		stored  model.Tag
		outcome model.TagWriteOutcome
	)
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tags (`+tagColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 1, ?, ?)
			ON CONFLICT(tenant_type, tenant_id, resource_type, resource_id, tag_key)
			WHERE is_active = 1 AND single_valued = 1
			`+conflictAction,
			tag.ID, string(tag.Scope.Type), tag.Scope.ID, string(tag.Type), tag.Key, tag.Value,
			string(tag.Resource.Type), tag.Resource.ID, tag.Label, tag.Description, tag.Color, metadata,
			tag.CreatedAt.UTC(), tag.UpdatedAt.UTC(),
		); err != nil {
			return fmt.Errorf("failed to upsert tag: %w", err)
		}

		row := tx.QueryRowContext(ctx, `
			SELECT `+tagColumns+` FROM tags
			WHERE tenant_type = ? AND tenant_id = ? AND resource_type = ? AND resource_id = ?
			  AND tag_key = ? AND is_active = 1 AND single_valued = 1`,
			string(tag.Scope.Type), tag.Scope.ID, string(tag.Resource.Type), tag.Resource.ID, tag.Key)

		var err error
		stored, err = scanTag(row)
		if err != nil {
			return fmt.Errorf("failed to read upserted tag: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	switch {
	case stored.ID == tag.ID:
		outcome = model.TagCreated
	case overwrite:
		outcome = model.TagUpdated
	default:
		outcome = model.TagUnchanged
	}
	return &stored, outcome, nil
}

// InsertTag stores a new tag row. A single-valued tag colliding with an
// existing active one fails with ErrConflict.
func (s *SQLiteStorage) InsertTag(ctx context.Context, tag model.Tag) (*model.Tag, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	tag.IsActive = true
	if err := validateTag(&tag); err != nil {
		return nil, wrapTagValidation(err)
	}

	metadata, err := encodeMetadata(tag.Metadata)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tags (`+tagColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		tag.ID, string(tag.Scope.Type), tag.Scope.ID, string(tag.Type), tag.Key, tag.Value,
		string(tag.Resource.Type), tag.Resource.ID, tag.Label, tag.Description, tag.Color, metadata,
		tag.SingleValued, tag.CreatedAt.UTC(), tag.UpdatedAt.UTC(),
	)
	if err != nil {
		return nil, mapWriteError(err, "tag")
	}

	tag.CreatedAt = tag.CreatedAt.UTC()
	tag.UpdatedAt = tag.UpdatedAt.UTC()
	return &tag, nil
}

// GetTag retrieves a tag by id regardless of tenant or active state.
func (s *SQLiteStorage) GetTag(ctx context.Context, id string) (*model.Tag, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = ?`, id)
	tag, err := scanTag(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: tag %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return &tag, nil
}

// SetTagActive flips the soft-delete flag of a tag.
func (s *SQLiteStorage) SetTagActive(ctx context.Context, id string, active bool, at time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE tags SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, at.UTC(), id)
	if err != nil {
		return mapWriteError(err, "active tag")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: tag %s", common.ErrNotFound, id)
	}
	return nil
}

// ListResourceTags returns the active tags on one resource in insertion order.
func (s *SQLiteStorage) ListResourceTags(ctx context.Context, scope model.Scope, ref model.ResourceRef) ([]model.Tag, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}

	return s.queryTags(ctx, `
		SELECT `+tagColumns+` FROM tags
		WHERE tenant_type = ? AND tenant_id = ? AND resource_type = ? AND resource_id = ? AND is_active = 1
		ORDER BY seq ASC`,
		string(scope.Type), scope.ID, string(ref.Type), ref.ID)
}

// ListTagsByKey returns every active tag with the given key on a resource type.
func (s *SQLiteStorage) ListTagsByKey(ctx context.Context, scope model.Scope, resourceType model.ResourceType, key string) ([]model.Tag, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}

	return s.queryTags(ctx, `
		SELECT `+tagColumns+` FROM tags
		WHERE tenant_type = ? AND tenant_id = ? AND resource_type = ? AND tag_key = ? AND is_active = 1
		ORDER BY seq ASC`,
		string(scope.Type), scope.ID, string(resourceType), key)
}

// QueryResourceIDs returns the ids of resources carrying an active tag for
// every (key, value) pair in filters.
func (s *SQLiteStorage) QueryResourceIDs(ctx context.Context, scope model.Scope, resourceType model.ResourceType, filters map[string]string) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if len(filters) == 0 {
		return nil, fmt.Errorf("%w: at least one tag filter is required", common.ErrInvalidInput)
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := []any{string(scope.Type), scope.ID, string(resourceType)}
	query := `
		SELECT resource_id FROM tags
		WHERE tenant_type = ? AND tenant_id = ? AND resource_type = ? AND is_active = 1 AND (`
	for i, k := range keys {
		if i > 0 {
			query += " OR "
		}
		query += "(tag_key = ? AND tag_value = ?)"
		args = append(args, k, filters[k])
	}
	query += `)
		GROUP BY resource_id
		HAVING COUNT(DISTINCT tag_key) = ?
		ORDER BY resource_id ASC`
	args = append(args, len(keys))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan resource id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStorage) queryTags(ctx context.Context, query string, args ...any) ([]model.Tag, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tags := []model.Tag{}
	for rows.Next() {
		tag, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tags: %w", err)
	}
	return tags, nil
}

func scanTag(row rowScanner) (model.Tag, error) {
	var (
		tag          model.Tag
		tenantType   string
		tagType      string
		resourceType string
		metadata     string
	)
	if err := row.Scan(
		&tag.ID,
		&tenantType,
		&tag.Scope.ID,
		&tagType,
		&tag.Key,
		&tag.Value,
		&resourceType,
		&tag.Resource.ID,
		&tag.Label,
		&tag.Description,
		&tag.Color,
		&metadata,
		&tag.SingleValued,
		&tag.IsActive,
		&tag.CreatedAt,
		&tag.UpdatedAt,
	); err != nil {
		return model.Tag{}, err
	}

	tag.Scope.Type = model.TenantType(tenantType)
	tag.Type = model.TagType(tagType)
	tag.Resource.Type = model.ResourceType(resourceType)
	tag.CreatedAt = tag.CreatedAt.UTC()
	tag.UpdatedAt = tag.UpdatedAt.UTC()

	if metadata != "" && metadata != "{}" {
		if err := json.Unmarshal([]byte(metadata), &tag.Metadata); err != nil {
			return model.Tag{}, fmt.Errorf("failed to decode tag metadata: %w", err)
		}
	}
	return tag, nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("%w: tag metadata is not serializable: %v", common.ErrInvalidInput, err)
	}
	return string(b), nil
}

func wrapTagValidation(err error) error {
	if errors.Is(err, common.ErrInvalidResource) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
}
