package rules

import "github.com/Veraticus/spendtag/internal/model"

// Defaults returns the built-in rule table seeded into an empty database.
// Bucket order is evaluation order.
func Defaults() model.PatternTable {
	return model.PatternTable{
		ClassificationPatterns: []model.PatternBucket{
			// Only consulted for credits
			{
				Name: string(model.ClassificationSalaryIncome),
				Patterns: []string{
					`\b(salary|payroll|wages)\b`,
					`\bdirect\s*dep(osit)?\b`,
				},
			},
			{
				Name: string(model.ClassificationSubscription),
				Patterns: []string{
					`\bsubscription\b`,
					`\b(netflix|spotify|hulu|disney\+?|hbo\s*max|youtube\s+premium|apple\s+music|amazon\s+prime)\b`,
				},
			},
			{
				Name: string(model.ClassificationRecurringPayment),
				Patterns: []string{
					`\b(monthly|recurring|standing\s+order)\b`,
					`\bauto[\s-]?pay\b`,
				},
			},
			{
				Name: string(model.ClassificationRefund),
				Patterns: []string{
					`\b(refund|reversal|chargeback)\b`,
				},
			},
			{
				Name: string(model.ClassificationCashWithdrawal),
				Patterns: []string{
					`\batm\b`,
					`\bcash\s+withdrawal\b`,
				},
			},
			{
				Name: string(model.ClassificationBillPayment),
				Patterns: []string{
					`\bbill\s*pay(ment)?\b`,
					`\butility\s+payment\b`,
				},
			},
			{
				Name: string(model.ClassificationInternalTransfer),
				Patterns: []string{
					`\btransfer\s+(to|from)\s+(savings|checking)\b`,
					`\binternal\s+transfer\b`,
				},
			},
		},
		CategoryPatterns: []model.PatternBucket{
			// Ahead of TRANSPORTATION so "uber eats" is food, not a ride.
			{
				Name: string(model.CategoryFoodDining),
				Patterns: []string{
					`\buber\s*eats\b`,
					`\b(restaurant|cafe|coffee|starbucks|pizza|bakery|diner|doordash|grubhub)\b`,
					`\b(grocery|groceries|supermarket)\b`,
				},
			},
			{
				Name: string(model.CategoryTransportation),
				Patterns: []string{
					`\b(uber|lyft|taxi|metro|transit|parking|toll|airline)\b`,
					`\b(gas\s+station|fuel|shell|chevron)\b`,
				},
			},
			{
				Name: string(model.CategoryUtilities),
				Patterns: []string{
					`\b(electric|electricity|utility|utilities|internet|water\s+bill|phone\s+bill)\b`,
					`\b(comcast|verizon|at&t)`,
				},
			},
			{
				Name: string(model.CategoryEntertainment),
				Patterns: []string{
					`\b(netflix|spotify|hulu|disney|hbo|youtube\s+premium)\b`,
					`\b(cinema|movie|theat(er|re)|concert|steam|playstation|xbox)\b`,
				},
			},
			{
				Name: string(model.CategoryIncome),
				Patterns: []string{
					`\b(salary|payroll|wages|bonus)\b`,
					`\bdirect\s*dep(osit)?\b`,
				},
			},
			{
				Name: string(model.CategoryInvestment),
				Patterns: []string{
					`\b(investment|brokerage|vanguard|fidelity|schwab|dividend)\b`,
					`\b(401k|ira|roth)\b`,
				},
			},
			{
				Name: string(model.CategoryShopping),
				Patterns: []string{
					`\b(amazon|walmart|target|ebay|best\s+buy|mall)\b`,
				},
			},
			{
				Name: string(model.CategoryHealthcare),
				Patterns: []string{
					`\b(pharmacy|cvs|walgreens|doctor|hospital|clinic|dental|medical)\b`,
				},
			},
			{
				Name: string(model.CategoryHousing),
				Patterns: []string{
					`\b(rent|mortgage|landlord|hoa)\b`,
				},
			},
		},
		Version: 1,
	}
}
