package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/service"
)

// queryable is satisfied by both *sql.DB and *sql.Tx.
type queryable interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const transactionColumns = `id, tenant_type, tenant_id, amount, description, direction, date`

// SaveTransactions saves multiple transactions to the database.
// Transactions whose id already exists are left untouched.
func (s *SQLiteStorage) SaveTransactions(ctx context.Context, transactions []model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransactions(transactions); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO transactions (`+transactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, txn := range transactions {
			if _, err := stmt.ExecContext(ctx,
				txn.ID,
				string(txn.Scope.Type),
				txn.Scope.ID,
				txn.Amount,
				txn.Description,
				string(txn.Direction),
				txn.Date.UTC(),
			); err != nil {
				return fmt.Errorf("failed to insert transaction %s: %w", txn.ID, err)
			}
		}
		return nil
	})
}

// GetTransaction retrieves a transaction by id regardless of tenant.
func (s *SQLiteStorage) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)

	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &txn, nil
}

// GetTransactionsByIDs returns the transactions among ids owned by scope.
// Unknown ids and ids owned by other tenants are silently absent from the result.
func (s *SQLiteStorage) GetTransactionsByIDs(ctx context.Context, scope model.Scope, ids []string) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []model.Transaction{}, nil
	}

	args := make([]any, 0, len(ids)+2)
	args = append(args, string(scope.Type), scope.ID)
	for _, id := range ids {
		args = append(args, id)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE tenant_type = ? AND tenant_id = ? AND id IN (` + placeholders(len(ids)) + `)
		ORDER BY date ASC, id ASC`

	return s.queryTransactions(ctx, query, args...)
}

// ListTransactions returns the scope's transactions within filter, oldest first.
func (s *SQLiteStorage) ListTransactions(ctx context.Context, scope model.Scope, filter service.TransactionFilter) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if filter.Start != nil && filter.End != nil && !filter.Start.Before(*filter.End) {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, ErrInvalidDateRange)
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE tenant_type = ? AND tenant_id = ?`
	args := []any{string(scope.Type), scope.ID}

	if filter.Start != nil {
		query += " AND date >= ?"
		args = append(args, filter.Start.UTC())
	}
	if filter.End != nil {
		query += " AND date < ?"
		args = append(args, filter.End.UTC())
	}
	query += " ORDER BY date ASC, id ASC"

	return s.queryTransactions(ctx, query, args...)
}

func (s *SQLiteStorage) queryTransactions(ctx context.Context, query string, args ...any) ([]model.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	transactions := []model.Transaction{}
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (model.Transaction, error) {
	var (
		txn        model.Transaction
		tenantType string
		direction  string
	)
	if err := row.Scan(
		&txn.ID,
		&tenantType,
		&txn.Scope.ID,
		&txn.Amount,
		&txn.Description,
		&direction,
		&txn.Date,
	); err != nil {
		return model.Transaction{}, err
	}
	txn.Scope.Type = model.TenantType(tenantType)
	txn.Direction = model.Direction(direction)
	txn.Date = txn.Date.UTC()
	return txn, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
