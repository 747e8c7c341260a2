// Package classifier maps a transaction to one classification and one category.
//
// Both operations are pure: they read only the transaction, the rule snapshot
// and the thresholds they are given, and never fail for a well-formed
// transaction.
package classifier

import (
	"github.com/shopspring/decimal"

	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/rules"
)

// Thresholds are the amount heuristics applied between the subscription
// rules and the remaining classification rules. Comparisons use |amount|.
type Thresholds struct {
	LargeTransfer    decimal.Decimal
	MicroTransaction decimal.Decimal
}

// DefaultThresholds returns the stock heuristics: transfers of 10,000 or more
// are large, anything of 5 or less is a micro transaction.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LargeTransfer:    decimal.NewFromInt(10000),
		MicroTransaction: decimal.NewFromInt(5),
	}
}

// Classifier binds a rule snapshot to a set of thresholds.
type Classifier struct {
	snapshot   *rules.Snapshot
	thresholds Thresholds
}

// New returns a classifier over snapshot.
func New(snapshot *rules.Snapshot, thresholds Thresholds) *Classifier {
	return &Classifier{snapshot: snapshot, thresholds: thresholds}
}

// RuleVersion is the version of the rule table this classifier evaluates.
func (c *Classifier) RuleVersion() int {
	return c.snapshot.Version()
}

// Classify returns the behavioral classification of txn.
func (c *Classifier) Classify(txn model.Transaction) model.Classification {
	buckets := c.snapshot.Buckets(model.PatternKindClassification)
	text := txn.Description

	// Salary is only credited, never debited.
	if txn.Direction == model.DirectionCredit {
		if b, ok := find(buckets, string(model.ClassificationSalaryIncome)); ok && b.Match(text) {
			return model.ClassificationSalaryIncome
		}
	}

	for _, b := range buckets {
		if isRecurring(b.Name) && b.Match(text) {
			return model.Classification(b.Name)
		}
	}

	amount := txn.Amount.Abs()
	if txn.Direction == model.DirectionTransfer && amount.GreaterThanOrEqual(c.thresholds.LargeTransfer) {
		return model.ClassificationLargeTransfer
	}
	if amount.LessThanOrEqual(c.thresholds.MicroTransaction) {
		return model.ClassificationMicroTransaction
	}

	for _, b := range buckets {
		if b.Name == string(model.ClassificationSalaryIncome) || isRecurring(b.Name) {
			continue
		}
		if b.Match(text) {
			return model.Classification(b.Name)
		}
	}

	return model.ClassificationUnknown
}

// Categorize returns the spending category of txn. It is purely rule driven.
func (c *Classifier) Categorize(txn model.Transaction) model.Category {
	for _, b := range c.snapshot.Buckets(model.PatternKindCategory) {
		if b.Match(txn.Description) {
			return model.Category(b.Name)
		}
	}
	return model.CategoryUncategorized
}

// Evaluate runs both Classify and Categorize.
func (c *Classifier) Evaluate(txn model.Transaction) model.ClassificationResult {
	return model.ClassificationResult{
		TransactionID:  txn.ID,
		Classification: c.Classify(txn),
		Category:       c.Categorize(txn),
		AutoGenerated:  true,
	}
}

func isRecurring(name string) bool {
	return name == string(model.ClassificationSubscription) ||
		name == string(model.ClassificationRecurringPayment)
}

func find(buckets []rules.CompiledBucket, name string) (rules.CompiledBucket, bool) {
	for _, b := range buckets {
		if b.Name == name {
			return b, true
		}
	}
	return rules.CompiledBucket{}, false
}
