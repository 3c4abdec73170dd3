package budget

import "budgetly/internal/core"

// EffectiveBudget returns the category's budget for month m: the month
// override when present, the default otherwise.
func EffectiveBudget(c core.Category, m core.MonthKey) float64 {
	amount, _ := ResolveBudget(c, m)
	return amount
}

// ResolveBudget is EffectiveBudget that also reports whether a month
// override was used.
func ResolveBudget(c core.Category, m core.MonthKey) (float64, bool) {
	if v, ok := c.MonthlyBudgets[m]; ok {
		return v, true
	}
	return c.Budget, false
}

// EffectiveIncome returns the income for month m and whether it came from an
// explicit month record rather than the default.
func EffectiveIncome(p core.IncomePlan, m core.MonthKey) (float64, bool) {
	if v, ok := p.Monthly[m]; ok {
		return v, true
	}
	return p.Default, false
}

// IsUsingDefaultIncome flags a month that runs on the default income. Zero
// income is never flagged.
func IsUsingDefaultIncome(income, defaultIncome float64) bool {
	return income > 0 && income == defaultIncome
}

// NewCategoryBudget sets the initial budget of a category being created:
// either the default or an override for month, never both. A month-only
// category keeps a zero default.
func NewCategoryBudget(c core.Category, amount float64, isDefault bool, month core.MonthKey) core.Category {
	c = c.Clone()
	if isDefault {
		c.Budget = amount
		delete(c.MonthlyBudgets, month)
		return c
	}
	c.Budget = 0
	if c.MonthlyBudgets == nil {
		c.MonthlyBudgets = make(map[core.MonthKey]float64)
	}
	c.MonthlyBudgets[month] = amount
	return c
}

// MonthBudget collects the effective income and category budgets for m.
func MonthBudget(p core.IncomePlan, categories []core.Category, m core.MonthKey) core.MonthBudget {
	income, _ := EffectiveIncome(p, m)
	out := core.MonthBudget{
		Month:      m,
		Income:     income,
		Categories: make(map[string]float64, len(categories)),
	}
	for _, c := range categories {
		out.Categories[c.ID] = EffectiveBudget(c, m)
	}
	return out
}
