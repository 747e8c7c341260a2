package analytics

import (
	"context"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
)

// Patterns counts transactions per classification and per category. For
// PatternAll it also returns the classification x category matrix over
// transactions that carry at least one of the two tags.
func (e *Engine) Patterns(ctx context.Context, scope model.Scope, patternType PatternType) (*PatternReport, error) {
	if err := scope.Validate(); err != nil {
		return nil, common.InvalidInputf("%v", err)
	}
	if _, err := ParsePatternType(string(patternType)); err != nil {
		return nil, err
	}

	l, err := e.loadLabels(ctx, scope)
	if err != nil {
		return nil, err
	}

	report := &PatternReport{PatternType: patternType}
	if patternType != PatternCategory {
		report.Classifications = countValues(l.classification)
	}
	if patternType != PatternClassification {
		report.Categories = countValues(l.category)
	}

	seen := make(map[string]struct{}, len(l.classification))
	for id := range l.classification {
		seen[id] = struct{}{}
	}
	for id := range l.category {
		seen[id] = struct{}{}
	}
	report.Transactions = len(seen)

	if patternType == PatternAll {
		report.Joint = make(map[string]map[string]int)
		for id := range seen {
			class, cat := l.of(id)
			row, ok := report.Joint[string(class)]
			if !ok {
				row = make(map[string]int)
				report.Joint[string(class)] = row
			}
			row[string(cat)]++
		}
	}
	return report, nil
}

func countValues(byID map[string]string) map[string]int {
	out := make(map[string]int)
	for _, v := range byID {
		out[v]++
	}
	return out
}
