package testutil

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spendtag/internal/model"
)

// TransactionBuilder accumulates transactions for one tenant.
type TransactionBuilder struct {
	scope model.Scope
	txns  []model.Transaction
}

// NewTransactions starts a builder for scope.
func NewTransactions(scope model.Scope) *TransactionBuilder {
	return &TransactionBuilder{scope: scope}
}

// Add appends a transaction. amount must be a valid decimal literal.
func (b *TransactionBuilder) Add(id, description, amount string, direction model.Direction, date time.Time) *TransactionBuilder {
	b.txns = append(b.txns, model.Transaction{
		ID:          id,
		Scope:       b.scope,
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Direction:   direction,
		Date:        date.UTC(),
	})
	return b
}

// Debit appends a debit.
func (b *TransactionBuilder) Debit(id, description, amount string, date time.Time) *TransactionBuilder {
	return b.Add(id, description, amount, model.DirectionDebit, date)
}

// Credit appends a credit.
func (b *TransactionBuilder) Credit(id, description, amount string, date time.Time) *TransactionBuilder {
	return b.Add(id, description, amount, model.DirectionCredit, date)
}

// Transfer appends a transfer.
func (b *TransactionBuilder) Transfer(id, description, amount string, date time.Time) *TransactionBuilder {
	return b.Add(id, description, amount, model.DirectionTransfer, date)
}

// Build returns the accumulated transactions.
func (b *TransactionBuilder) Build() []model.Transaction {
	return append([]model.Transaction(nil), b.txns...)
}

// FixedClock returns a clock frozen at t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
