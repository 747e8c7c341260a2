package tags

import (
	"context"

	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/service"
)

// ResourceResolver reports which tenant owns a resource. It returns an error
// wrapping common.ErrNotFound when the resource does not exist at all.
type ResourceResolver interface {
	Owner(ctx context.Context, id string) (model.Scope, error)
}

// TransactionResolver resolves transaction ownership through the ledger.
type TransactionResolver struct {
	Transactions service.TransactionRepository
}

// Owner returns the scope of the transaction with the given id.
func (r TransactionResolver) Owner(ctx context.Context, id string) (model.Scope, error) {
	txn, err := r.Transactions.GetTransaction(ctx, id)
	if err != nil {
		return model.Scope{}, err
	}
	return txn.Scope, nil
}
