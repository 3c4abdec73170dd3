// Package budget resolves which income and category budgets apply to a month
// and aggregates spending per category in the user's base currency.
//
// Everything here is a pure function of its arguments: callers pass state
// snapshots and get values back, nothing is read from or written to storage.
package budget

import (
	"time"

	"budgetly/internal/core"
)

// MaxLookback bounds how many months MonthOptions returns.
const MaxLookback = 24

// MonthOptions lists selectable months, newest first, starting at anchor and
// walking back one calendar month at a time.
//
// A missing or malformed anchor falls back to the month of now. The walk stops
// after MaxLookback entries, at year 0000, or before the first month strictly
// earlier than earliest; earliest itself is included. The result is never
// empty.
func MonthOptions(anchor string, earliest *core.MonthKey, now time.Time) []core.MonthKey {
	start, err := core.ParseMonthKey(anchor)
	if err != nil {
		start = core.MonthKeyOf(now)
	}

	months := make([]core.MonthKey, 0, MaxLookback)
	for m := start; m != "" && len(months) < MaxLookback; m = m.Prev() {
		if earliest != nil && m.Before(*earliest) {
			break
		}
		months = append(months, m)
	}
	if len(months) == 0 {
		months = append(months, start)
	}
	return months
}

// ResolveActiveMonth keeps active when it is one of options and otherwise
// resets to the newest option.
func ResolveActiveMonth(active core.MonthKey, options []core.MonthKey) core.MonthKey {
	for _, m := range options {
		if m == active {
			return active
		}
	}
	if len(options) == 0 {
		return active
	}
	return options[0]
}

// EarliestIncomeMonth returns the month of the first recorded income, or nil
// when the plan has none.
func EarliestIncomeMonth(plan core.IncomePlan) *core.MonthKey {
	var earliest core.MonthKey
	if plan.Since.Valid() {
		earliest = plan.Since
	}
	for m := range plan.Monthly {
		if !m.Valid() {
			continue
		}
		if earliest == "" || m.Before(earliest) {
			earliest = m
		}
	}
	if earliest == "" {
		return nil
	}
	return &earliest
}
