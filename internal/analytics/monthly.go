package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/service"
)

// MonthlyBreakdown sums amounts per category and classification for each of
// the trailing calendar months, the current partial month included. Periods
// are contiguous and half-open except the last, which ends at now inclusive.
func (e *Engine) MonthlyBreakdown(ctx context.Context, scope model.Scope, months int) (*MonthlyBreakdown, error) {
	if err := scope.Validate(); err != nil {
		return nil, common.InvalidInputf("%v", err)
	}
	if months < 1 {
		return nil, common.InvalidInputf("months must be at least 1, got %d", months)
	}

	now := e.now().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	first := current.AddDate(0, -(months - 1), 0)

	periods := make([]MonthlyPeriod, months)
	for i := range periods {
		start := first.AddDate(0, i, 0)
		end := start.AddDate(0, 1, 0)
		if i == months-1 {
			end = now
		}
		periods[i] = MonthlyPeriod{
			Start:            start,
			End:              end,
			TotalAmount:      decimal.Zero,
			ByCategory:       map[string]decimal.Decimal{},
			ByClassification: map[string]decimal.Decimal{},
		}
	}

	txns, err := e.transactions.ListTransactions(ctx, scope, service.TransactionFilter{Start: &first})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	l, err := e.loadLabels(ctx, scope)
	if err != nil {
		return nil, err
	}

	for _, txn := range txns {
		if txn.Date.After(now) {
			continue
		}
		idx := monthIndex(first, txn.Date.UTC())
		if idx < 0 || idx >= months {
			continue
		}
		p := &periods[idx]
		class, cat := l.of(txn.ID)
		p.Count++
		p.TotalAmount = p.TotalAmount.Add(txn.Amount)
		p.ByCategory[string(cat)] = p.ByCategory[string(cat)].Add(txn.Amount)
		p.ByClassification[string(class)] = p.ByClassification[string(class)].Add(txn.Amount)
	}

	return &MonthlyBreakdown{
		Start:          first,
		End:            now,
		Periods:        periods,
		MonthsAnalyzed: months,
	}, nil
}

func monthIndex(first, t time.Time) int {
	return (t.Year()-first.Year())*12 + int(t.Month()) - int(first.Month())
}
