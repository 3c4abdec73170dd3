// Package rates supplies currency tables. Sources fetch a table; Provider
// caches it and falls back to the built-in table when a source fails.
package rates

import (
	"context"

	"budgetly/internal/budget"
	"budgetly/internal/core"
)

// StaticSource serves a fixed table.
type StaticSource struct {
	currencies []core.Currency
}

// NewStaticSource returns a source for list, or for the built-in table when
// list is empty.
func NewStaticSource(list []core.Currency) *StaticSource {
	if len(list) == 0 {
		list = budget.DefaultCurrencies()
	}
	return &StaticSource{currencies: append([]core.Currency(nil), list...)}
}

func (s *StaticSource) Currencies(context.Context) ([]core.Currency, error) {
	return append([]core.Currency(nil), s.currencies...), nil
}
