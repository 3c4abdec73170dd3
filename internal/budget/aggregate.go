package budget

import (
	"budgetly/internal/core"
)

// Input is the state snapshot Summarize works on.
type Input struct {
	Month        core.MonthKey
	Categories   []core.Category
	Transactions []core.Transaction
	Income       core.IncomePlan
	BaseCurrency string
	Rates        Rates
}

// Counts reports whether tx contributes to spend in month m. Only expenses
// count; bucketing uses the parsed calendar month of the date.
func Counts(tx core.Transaction, m core.MonthKey) bool {
	return tx.Type == core.Expense && m.Contains(tx.Date)
}

// ConvertedAmount returns tx.Amount in base. A transaction without a
// currency is already in base. ok is false when a rate was missing and the
// raw amount was used.
func ConvertedAmount(tx core.Transaction, base string, rates Rates) (float64, bool) {
	if tx.Currency == "" || tx.Currency == base {
		return tx.Amount, true
	}
	return rates.Convert(tx.Amount, tx.Currency, base)
}

// SpentByCategory sums converted expenses of month m per category id. The
// second result lists transactions whose conversion was skipped.
func SpentByCategory(txs []core.Transaction, m core.MonthKey, base string, rates Rates) (map[string]float64, []string) {
	spent := make(map[string]float64)
	var unconverted []string
	for _, tx := range txs {
		if !Counts(tx, m) {
			continue
		}
		amount, ok := ConvertedAmount(tx, base, rates)
		if !ok {
			unconverted = append(unconverted, tx.ID)
		}
		spent[tx.CategoryID] += amount
	}
	return spent, unconverted
}

// TotalSpent sums converted expenses of month m regardless of category.
func TotalSpent(txs []core.Transaction, m core.MonthKey, base string, rates Rates) float64 {
	var total float64
	for _, tx := range txs {
		if !Counts(tx, m) {
			continue
		}
		amount, _ := ConvertedAmount(tx, base, rates)
		total += amount
	}
	return total
}

// Percentage returns part/whole*100, or 0 when whole is not positive.
func Percentage(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}

// Summarize resolves income and budgets for in.Month and aggregates spend.
// Categories keep the order they were given in.
func Summarize(in Input) core.MonthSummary {
	base := in.BaseCurrency
	if base == "" {
		base = core.DefaultBaseCurrency
	}

	income, explicit := EffectiveIncome(in.Income, in.Month)
	spent, unconverted := SpentByCategory(in.Transactions, in.Month, base, in.Rates)

	s := core.MonthSummary{
		Month:              in.Month,
		BaseCurrency:       base,
		Income:             income,
		DefaultIncome:      in.Income.Default,
		IncomeExplicit:     explicit,
		UsingDefaultIncome: IsUsingDefaultIncome(income, in.Income.Default),
		Categories:         make([]core.CategorySummary, 0, len(in.Categories)),
		Unconverted:        unconverted,
	}

	for _, c := range in.Categories {
		amount, overridden := ResolveBudget(c, in.Month)
		catSpent := spent[c.ID]
		s.Categories = append(s.Categories, core.CategorySummary{
			CategoryID:       c.ID,
			Name:             c.Name,
			Icon:             c.Icon,
			Color:            c.Color,
			Budget:           amount,
			BudgetOverridden: overridden,
			Spent:            catSpent,
			Remaining:        amount - catSpent,
			OverBudget:       catSpent > amount,
			Percentage:       Percentage(catSpent, amount),
		})
		s.TotalBudget += amount
		s.TotalSpent += catSpent
	}

	s.Remaining = s.Income - s.TotalSpent
	s.BudgetRemaining = s.TotalBudget - s.TotalSpent
	s.OverIncome = s.Remaining < 0
	s.OverBudget = s.BudgetRemaining < 0
	s.Percentage = Percentage(s.TotalSpent, s.Income)
	return s
}
