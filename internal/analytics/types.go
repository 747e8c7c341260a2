package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
)

// Sensitivity selects the anomaly multiplier.
type Sensitivity string

const (
	// SensitivityLow flags only large deviations.
	SensitivityLow Sensitivity = "low"
	// SensitivityMedium is the default.
	SensitivityMedium Sensitivity = "medium"
	// SensitivityHigh flags the most transactions.
	SensitivityHigh Sensitivity = "high"
)

// ParseSensitivity validates a sensitivity name.
func ParseSensitivity(s string) (Sensitivity, error) {
	switch Sensitivity(s) {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return Sensitivity(s), nil
	}
	return "", common.InvalidInputf("unknown sensitivity %q", s)
}

// Axis is the tag key a distribution is computed over.
type Axis string

// Distribution axes.
const (
	AxisClassification Axis = model.TagKeyClassification
	AxisCategory       Axis = model.TagKeyCategory
)

// ParseAxis validates an axis name.
func ParseAxis(s string) (Axis, error) {
	switch Axis(s) {
	case AxisClassification, AxisCategory:
		return Axis(s), nil
	}
	return "", common.InvalidInputf("unknown distribution axis %q", s)
}

// PatternType selects which cross-tabulations Patterns returns.
type PatternType string

// Pattern types.
const (
	PatternClassification PatternType = "classification"
	PatternCategory       PatternType = "category"
	PatternAll            PatternType = "all"
)

// ParsePatternType validates a pattern type name.
func ParsePatternType(s string) (PatternType, error) {
	switch PatternType(s) {
	case PatternClassification, PatternCategory, PatternAll:
		return PatternType(s), nil
	}
	return "", common.InvalidInputf("unknown pattern type %q", s)
}

// Multipliers are the standard-deviation multiples per sensitivity.
type Multipliers struct {
	Low    float64
	Medium float64
	High   float64
}

// For returns the multiplier of a sensitivity.
func (m Multipliers) For(s Sensitivity) float64 {
	switch s {
	case SensitivityLow:
		return m.Low
	case SensitivityHigh:
		return m.High
	default:
		return m.Medium
	}
}

// DistributionBucket aggregates the resources carrying one tag value.
type DistributionBucket struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	Value       string          `json:"value"`
	Count       int             `json:"count"`
	Percentage  float64         `json:"percentage"`
}

// Distribution is the per-value breakdown of one axis.
type Distribution struct {
	TotalAmount  decimal.Decimal      `json:"total_amount"`
	Axis         Axis                 `json:"axis"`
	ResourceType model.ResourceType   `json:"resource_type"`
	Buckets      []DistributionBucket `json:"buckets"`
	TotalCount   int                  `json:"total_count"`
}

// Anomaly is a transaction whose amount deviates from its peer group.
type Anomaly struct {
	Date           time.Time            `json:"date"`
	Amount         decimal.Decimal      `json:"amount"`
	GroupMean      decimal.Decimal      `json:"group_mean"`
	TransactionID  string               `json:"transaction_id"`
	Description    string               `json:"description"`
	Classification model.Classification `json:"classification"`
	Category       model.Category       `json:"category"`
	GroupStdDev    float64              `json:"group_std_dev"`
	DeviationScore float64              `json:"deviation_score"`
	GroupSize      int                  `json:"group_size"`
}

// AnomalyReport lists flagged transactions and the window they came from.
type AnomalyReport struct {
	Start          time.Time   `json:"start"`
	End            time.Time   `json:"end"`
	Sensitivity    Sensitivity `json:"sensitivity"`
	Anomalies      []Anomaly   `json:"anomalies"`
	Multiplier     float64     `json:"multiplier"`
	PeriodDays     int         `json:"analysis_period_days"`
	Transactions   int         `json:"transactions_analyzed"`
	GroupsAnalyzed int         `json:"groups_analyzed"`
}

// MonthlyPeriod aggregates one calendar month.
type MonthlyPeriod struct {
	Start            time.Time                  `json:"start"`
	End              time.Time                  `json:"end"`
	TotalAmount      decimal.Decimal            `json:"total_amount"`
	ByCategory       map[string]decimal.Decimal `json:"by_category"`
	ByClassification map[string]decimal.Decimal `json:"by_classification"`
	Count            int                        `json:"count"`
}

// MonthlyBreakdown is a run of contiguous calendar months ending now.
type MonthlyBreakdown struct {
	Start          time.Time       `json:"start"`
	End            time.Time       `json:"end"`
	Periods        []MonthlyPeriod `json:"periods"`
	MonthsAnalyzed int             `json:"months_analyzed"`
}

// PatternReport cross-tabulates classification and category tags.
type PatternReport struct {
	Classifications map[string]int            `json:"classifications,omitempty"`
	Categories      map[string]int            `json:"categories,omitempty"`
	Joint           map[string]map[string]int `json:"joint,omitempty"`
	PatternType     PatternType               `json:"pattern_type"`
	Transactions    int                       `json:"transactions"`
}
