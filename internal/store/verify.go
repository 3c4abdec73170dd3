package store

import (
	"math"
	"sort"

	"budgetly/internal/budget"
	"budgetly/internal/core"
)

// Drift is a spent counter that disagrees with the transactions it caches.
type Drift struct {
	Key      SpentKey
	Cached   float64
	Computed float64
}

const driftTolerance = 0.005

// VerifySpent recomputes every (user, category, month) spent sum from the
// stored transactions and returns the counters that are off. Amounts are
// compared as stored, without conversion.
func (s *Store) VerifySpent() []Drift {
	st := s.State()
	return verifyState(st)
}

func verifyState(st *State) []Drift {
	type userMonth struct {
		user  string
		month core.MonthKey
	}
	groups := make(map[userMonth][]core.Transaction)
	for _, tx := range st.Transactions {
		k := userMonth{tx.UserID, tx.Date.Key()}
		groups[k] = append(groups[k], tx)
	}

	computed := make(map[SpentKey]float64)
	for k, txs := range groups {
		spent, _ := budget.SpentByCategory(txs, k.month, "", nil)
		for cat, v := range spent {
			computed[SpentKey{UserID: k.user, CategoryID: cat, Month: k.month}] = v
		}
	}

	var out []Drift
	seen := make(map[SpentKey]bool)
	for k, v := range computed {
		seen[k] = true
		if c := st.Spent[k]; math.Abs(c-v) > driftTolerance {
			out = append(out, Drift{Key: k, Cached: c, Computed: v})
		}
	}
	for k, c := range st.Spent {
		if !seen[k] && math.Abs(c) > driftTolerance {
			out = append(out, Drift{Key: k, Cached: c})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key, out[j].Key
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.CategoryID < b.CategoryID
	})
	return out
}

// RebuildSpent replaces every counter with a fresh aggregation.
type RebuildSpent struct{}

func (RebuildSpent) Name() string { return "spent.rebuild" }

func (RebuildSpent) Apply(s *State) error {
	s.Spent = make(map[SpentKey]float64)
	for _, tx := range s.Transactions {
		s.addSpent(tx, 1)
	}
	return nil
}
