package model

// Classification is a behavioral label describing why a transaction looks the way it does.
type Classification string

// Built-in classifications. Rule tables may introduce more.
const (
	ClassificationUnknown          Classification = "UNKNOWN"
	ClassificationSalaryIncome     Classification = "SALARY_INCOME"
	ClassificationSubscription     Classification = "SUBSCRIPTION"
	ClassificationRecurringPayment Classification = "RECURRING_PAYMENT"
	ClassificationLargeTransfer    Classification = "LARGE_TRANSFER"
	ClassificationMicroTransaction Classification = "MICRO_TRANSACTION"
	ClassificationRefund           Classification = "REFUND"
	ClassificationCashWithdrawal   Classification = "CASH_WITHDRAWAL"
	ClassificationBillPayment      Classification = "BILL_PAYMENT"
	ClassificationInternalTransfer Classification = "INTERNAL_TRANSFER"
)

// Category is a spending-purpose label.
type Category string

// Built-in categories. Rule tables may introduce more.
const (
	CategoryUncategorized  Category = "UNCATEGORIZED"
	CategoryFoodDining     Category = "FOOD_DINING"
	CategoryTransportation Category = "TRANSPORTATION"
	CategoryUtilities      Category = "UTILITIES"
	CategoryEntertainment  Category = "ENTERTAINMENT"
	CategoryIncome         Category = "INCOME"
	CategoryInvestment     Category = "INVESTMENT"
	CategoryShopping       Category = "SHOPPING"
	CategoryHealthcare     Category = "HEALTHCARE"
	CategoryHousing        Category = "HOUSING"
)

// Tag keys written by the auto-tagger.
const (
	TagKeyClassification = "classification"
	TagKeyCategory       = "category"
)

// ClassificationResult is the outcome of classifying one transaction.
type ClassificationResult struct {
	TransactionID  string         `json:"transaction_id"`
	Classification Classification `json:"classification"`
	Category       Category       `json:"category"`
	AutoGenerated  bool           `json:"auto_generated"`
}
