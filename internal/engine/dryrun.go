package engine

import (
	"context"
	"fmt"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/service"
)

// DryRunResult compares the stored tags of a transaction with what the
// current rules would assign.
type DryRunResult struct {
	TransactionID          string               `json:"transaction_id"`
	Description            string               `json:"description"`
	CurrentClassification  string               `json:"current_classification,omitempty"`
	CurrentCategory        string               `json:"current_category,omitempty"`
	ProposedClassification model.Classification `json:"proposed_classification"`
	ProposedCategory       model.Category       `json:"proposed_category"`
	Changed                bool                 `json:"changed"`
}

// DryRun classifies transactions without writing anything, so a rule change
// can be checked against history before it is applied. A nil ids slice
// means every transaction of the tenant.
func (a *AutoTagger) DryRun(ctx context.Context, scope model.Scope, ids []string) ([]DryRunResult, error) {
	if err := scope.Validate(); err != nil {
		return nil, common.InvalidInputf("%v", err)
	}

	var txns []model.Transaction
	if ids == nil {
		var err error
		txns, err = a.transactions.ListTransactions(ctx, scope, service.TransactionFilter{})
		if err != nil {
			return nil, fmt.Errorf("failed to list transactions: %w", err)
		}
	} else {
		for _, id := range ids {
			txn, err := a.loadOwned(ctx, scope, id)
			if err != nil {
				return nil, err
			}
			txns = append(txns, *txn)
		}
	}

	c := a.Classifier()
	results := make([]DryRunResult, 0, len(txns))
	for _, txn := range txns {
		existing, err := a.tags.GetResourceTags(ctx, scope, txn.Ref())
		if err != nil {
			return nil, fmt.Errorf("failed to read tags for %s: %w", txn.ID, err)
		}

		r := DryRunResult{
			TransactionID:          txn.ID,
			Description:            txn.Description,
			ProposedClassification: c.Classify(txn),
			ProposedCategory:       c.Categorize(txn),
		}
		for _, tag := range existing {
			switch tag.Key {
			case model.TagKeyClassification:
				r.CurrentClassification = tag.Value
			case model.TagKeyCategory:
				r.CurrentCategory = tag.Value
			}
		}
		r.Changed = r.CurrentClassification != string(r.ProposedClassification) ||
			r.CurrentCategory != string(r.ProposedCategory)
		results = append(results, r)
	}

	return results, nil
}
