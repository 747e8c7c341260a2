package analytics

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/service"
)

type groupKey struct {
	classification model.Classification
	category       model.Category
}

// Anomalies flags transactions of the trailing window whose amount deviates
// from the mean of their (classification, category) group by more than the
// sensitivity's multiple of the population standard deviation. Groups with
// fewer than two members are skipped.
func (e *Engine) Anomalies(ctx context.Context, scope model.Scope, sensitivity Sensitivity, periodDays int) (*AnomalyReport, error) {
	if err := scope.Validate(); err != nil {
		return nil, common.InvalidInputf("%v", err)
	}
	if _, err := ParseSensitivity(string(sensitivity)); err != nil {
		return nil, err
	}
	if periodDays <= 0 {
		return nil, common.InvalidInputf("analysis period must be positive, got %d days", periodDays)
	}

	end := e.now().UTC()
	start := end.AddDate(0, 0, -periodDays)
	txns, err := e.transactions.ListTransactions(ctx, scope, service.TransactionFilter{Start: &start})
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	l, err := e.loadLabels(ctx, scope)
	if err != nil {
		return nil, err
	}

	groups := make(map[groupKey][]model.Transaction)
	analyzed := 0
	for _, txn := range txns {
		if txn.Date.After(end) {
			continue
		}
		class, cat := l.of(txn.ID)
		k := groupKey{class, cat}
		groups[k] = append(groups[k], txn)
		analyzed++
	}

	k := e.config.Multipliers.For(sensitivity)
	report := &AnomalyReport{
		Start:        start,
		End:          end,
		Sensitivity:  sensitivity,
		Multiplier:   k,
		PeriodDays:   periodDays,
		Transactions: analyzed,
		Anomalies:    []Anomaly{},
	}

	for key, members := range groups {
		if len(members) < 2 {
			continue
		}
		report.GroupsAnalyzed++

		values := make([]float64, len(members))
		total := decimal.Zero
		for i, txn := range members {
			values[i] = txn.Amount.InexactFloat64()
			total = total.Add(txn.Amount)
		}
		avg, stddev := meanStdDev(values)
		if stddev == 0 {
			continue
		}

		for i, txn := range members {
			deviation := math.Abs(values[i] - avg)
			if deviation <= k*stddev {
				continue
			}
			report.Anomalies = append(report.Anomalies, Anomaly{
				Date:           txn.Date,
				Amount:         txn.Amount,
				GroupMean:      mean(total, len(members)),
				TransactionID:  txn.ID,
				Description:    txn.Description,
				Classification: key.classification,
				Category:       key.category,
				GroupStdDev:    stddev,
				DeviationScore: deviation / stddev,
				GroupSize:      len(members),
			})
		}
	}

	sort.Slice(report.Anomalies, func(i, j int) bool {
		a, b := report.Anomalies[i], report.Anomalies[j]
		if a.DeviationScore != b.DeviationScore {
			return a.DeviationScore > b.DeviationScore
		}
		return a.TransactionID < b.TransactionID
	})

	e.metrics.RecordAnomalies(string(sensitivity), len(report.Anomalies))
	e.logger.InfoContext(ctx, "Anomaly detection complete",
		"scope", scope.String(),
		"sensitivity", sensitivity,
		"transactions", analyzed,
		"groups", report.GroupsAnalyzed,
		"anomalies", len(report.Anomalies))
	return report, nil
}

// meanStdDev returns the mean and population standard deviation.
func meanStdDev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - avg
		sq += d * d
	}
	return avg, math.Sqrt(sq / float64(len(values)))
}
