package core

// CategorySummary is one category's budget and spend for a month.
type CategorySummary struct {
	CategoryID string  `json:"categoryId"`
	Name       string  `json:"name"`
	Icon       string  `json:"icon,omitempty"`
	Color      string  `json:"color,omitempty"`
	Budget     float64 `json:"budget"`
	// BudgetOverridden is true when the month has its own budget entry.
	BudgetOverridden bool    `json:"budgetOverridden"`
	Spent            float64 `json:"spent"`
	Remaining        float64 `json:"remaining"`
	OverBudget       bool    `json:"overBudget"`
	Percentage       float64 `json:"percentage"`
}

// MonthSummary is the resolved budget picture for one month, all amounts in
// BaseCurrency.
type MonthSummary struct {
	Month              MonthKey          `json:"month"`
	BaseCurrency       string            `json:"baseCurrency"`
	Income             float64           `json:"income"`
	DefaultIncome      float64           `json:"defaultIncome"`
	IncomeExplicit     bool              `json:"incomeExplicit"`
	UsingDefaultIncome bool              `json:"usingDefaultIncome"`
	Categories         []CategorySummary `json:"categories"`
	TotalBudget        float64           `json:"totalBudget"`
	TotalSpent         float64           `json:"totalSpent"`
	Remaining          float64           `json:"remaining"`
	BudgetRemaining    float64           `json:"budgetRemaining"`
	OverIncome         bool              `json:"overIncome"`
	OverBudget         bool              `json:"overBudget"`
	Percentage         float64           `json:"percentage"`
	// Unconverted lists transactions whose currency had no rate; their raw
	// amount was used.
	Unconverted []string `json:"unconverted,omitempty"`
	// Degraded is set when part of the input could not be loaded and
	// defaults were used instead.
	Degraded bool `json:"degraded,omitempty"`
}

// MonthBudget is the budget-by-month shape exchanged with clients:
// the month's income and each category's effective budget.
type MonthBudget struct {
	Month      MonthKey           `json:"month"`
	Income     float64            `json:"income"`
	Categories map[string]float64 `json:"categories"`
}
