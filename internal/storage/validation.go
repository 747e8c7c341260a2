// Package storage provides the SQLite persistence layer for spendtag.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrEmptySlice         = errors.New("slice cannot be empty")
	ErrInvalidDateRange   = errors.New("start date must be before end date")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidTag         = errors.New("invalid tag")
	ErrInvalidView        = errors.New("invalid analytics view")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

func validateScope(scope model.Scope) error {
	if err := scope.Validate(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return nil
}

// validateTransactions validates a slice of transactions.
func validateTransactions(transactions []model.Transaction) error {
	if transactions == nil {
		return fmt.Errorf("%w: transactions", ErrNilParameter)
	}
	if len(transactions) == 0 {
		return fmt.Errorf("%w: transactions", ErrEmptySlice)
	}

	for i := range transactions {
		if err := validateTransaction(&transactions[i]); err != nil {
			return fmt.Errorf("transaction at index %d: %w", i, err)
		}
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTransaction)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if !txn.Direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidTransaction, txn.Direction)
	}
	if err := txn.Scope.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return nil
}

// validateTag validates a tag before it is written.
func validateTag(tag *model.Tag) error {
	if tag.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidTag)
	}
	if err := tag.Scope.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTag, err)
	}
	if !tag.Resource.Type.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidResource, tag.Resource.Type)
	}
	if tag.Resource.ID == "" {
		return fmt.Errorf("%w: missing resource ID", ErrInvalidTag)
	}
	if strings.TrimSpace(tag.Key) == "" {
		return fmt.Errorf("%w: missing key", ErrInvalidTag)
	}
	if !tag.Type.Valid() {
		return fmt.Errorf("%w: unknown tag type %q", ErrInvalidTag, tag.Type)
	}
	return nil
}

// validateView validates an analytics view before it is written.
func validateView(view *model.AnalyticsView) error {
	if view == nil {
		return fmt.Errorf("%w: view", ErrNilParameter)
	}
	if view.ID == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidView)
	}
	if err := view.Scope.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidView, err)
	}
	if strings.TrimSpace(view.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidView)
	}
	return nil
}
