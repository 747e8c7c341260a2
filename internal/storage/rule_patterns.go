package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
)

// LoadPatternTable reads the persisted rule table in evaluation order.
// A database that never stored a table returns an empty table at version 0.
func (s *SQLiteStorage) LoadPatternTable(ctx context.Context) (model.PatternTable, error) {
	if err := validateContext(ctx); err != nil {
		return model.PatternTable{}, err
	}

	var table model.PatternTable
	if err := s.db.QueryRowContext(ctx,
		`SELECT version FROM rule_table_version WHERE id = 1`).Scan(&table.Version); err != nil {
		return model.PatternTable{}, fmt.Errorf("failed to read rule table version: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, bucket_name, pattern
		FROM rule_patterns
		ORDER BY kind, bucket_position, pattern_position`)
	if err != nil {
		return model.PatternTable{}, fmt.Errorf("failed to query rule patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var kind, name, pattern string
		if err := rows.Scan(&kind, &name, &pattern); err != nil {
			return model.PatternTable{}, fmt.Errorf("failed to scan rule pattern: %w", err)
		}

		buckets := &table.ClassificationPatterns
		if model.PatternKind(kind) == model.PatternKindCategory {
			buckets = &table.CategoryPatterns
		}
		n := len(*buckets)
		if n == 0 || (*buckets)[n-1].Name != name {
			*buckets = append(*buckets, model.PatternBucket{Name: name})
			n++
		}
		(*buckets)[n-1].Patterns = append((*buckets)[n-1].Patterns, pattern)
	}
	if err := rows.Err(); err != nil {
		return model.PatternTable{}, fmt.Errorf("error iterating rule patterns: %w", err)
	}

	return table, nil
}

// SavePatternTable replaces the stored table when the stored version still
// equals expectedVersion, otherwise it fails with ErrVersionConflict.
// Lock contention surfaces as a retryable error.
func (s *SQLiteStorage) SavePatternTable(ctx context.Context, table model.PatternTable, expectedVersion int) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if table.Version <= expectedVersion {
		return fmt.Errorf("%w: new version %d must exceed %d", common.ErrInvalidInput, table.Version, expectedVersion)
	}

	return markBusy(s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE rule_table_version SET version = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1 AND version = ?`,
			table.Version, expectedVersion)
		if err != nil {
			return fmt.Errorf("failed to bump rule table version: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("%w: expected version %d", common.ErrVersionConflict, expectedVersion)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM rule_patterns`); err != nil {
			return fmt.Errorf("failed to clear rule patterns: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO rule_patterns (kind, bucket_name, bucket_position, pattern_position, pattern)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, kind := range []model.PatternKind{model.PatternKindClassification, model.PatternKindCategory} {
			for bi, bucket := range table.Buckets(kind) {
				for pi, pattern := range bucket.Patterns {
					if _, err := stmt.ExecContext(ctx, string(kind), bucket.Name, bi, pi, pattern); err != nil {
						return fmt.Errorf("failed to insert rule pattern %s/%s: %w", kind, bucket.Name, err)
					}
				}
			}
		}
		return nil
	}))
}
