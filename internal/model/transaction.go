package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction describes which way money moved.
type Direction string

// Transaction direction constants.
const (
	DirectionDebit    Direction = "debit"
	DirectionCredit   Direction = "credit"
	DirectionTransfer Direction = "transfer"
)

// Valid reports whether the direction is recognized.
func (d Direction) Valid() bool {
	switch d {
	case DirectionDebit, DirectionCredit, DirectionTransfer:
		return true
	}
	return false
}

// Transaction is a single financial transaction owned by the ledger.
// It is read-only to the tagging core.
type Transaction struct {
	Date        time.Time       `json:"date"`
	Amount      decimal.Decimal `json:"amount"`
	Scope       Scope           `json:"scope"`
	ID          string          `json:"id"`
	Description string          `json:"description"`
	Direction   Direction       `json:"direction"`
}

// Ref returns the tag target for this transaction.
func (t Transaction) Ref() ResourceRef {
	return ResourceRef{Type: ResourceTransaction, ID: t.ID}
}
