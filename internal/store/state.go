// Package store is an in-memory state container for budgeting data.
//
// A Store holds one State value. Readers get deep copies through State,
// writers go through Dispatch, and observers register with Subscribe. Every
// mutation runs against a copy that only replaces the current state when it
// succeeds, so a failed mutation leaves nothing half applied.
package store

import (
	"budgetly/internal/core"
)

// SpentKey addresses one cached spent counter.
type SpentKey struct {
	UserID     string
	CategoryID string
	Month      core.MonthKey
}

// State is a full snapshot of the data a Store holds. Slices keep insertion
// order.
type State struct {
	Version      uint64
	Users        map[string]core.User
	Categories   []core.Category
	Transactions []core.Transaction
	Receipts     []core.Receipt
	Income       map[string]core.IncomePlan
	// Spent caches the sum of expense amounts per category and month. It
	// is maintained on every transaction write and must always equal what
	// a fresh aggregation computes; see VerifySpent.
	Spent map[SpentKey]float64
}

func newState() *State {
	return &State{
		Users:  make(map[string]core.User),
		Income: make(map[string]core.IncomePlan),
		Spent:  make(map[SpentKey]float64),
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := &State{
		Version:      s.Version,
		Users:        make(map[string]core.User, len(s.Users)),
		Categories:   make([]core.Category, len(s.Categories)),
		Transactions: append([]core.Transaction(nil), s.Transactions...),
		Receipts:     append([]core.Receipt(nil), s.Receipts...),
		Income:       make(map[string]core.IncomePlan, len(s.Income)),
		Spent:        make(map[SpentKey]float64, len(s.Spent)),
	}
	for k, v := range s.Users {
		out.Users[k] = v
	}
	for i, c := range s.Categories {
		out.Categories[i] = c.Clone()
	}
	for k, v := range s.Income {
		out.Income[k] = v.Clone()
	}
	for k, v := range s.Spent {
		out.Spent[k] = v
	}
	return out
}

func (s *State) categoryIndex(userID, id string) int {
	for i, c := range s.Categories {
		if c.ID == id && c.UserID == userID {
			return i
		}
	}
	return -1
}

func (s *State) transactionIndex(userID, id string) int {
	for i, tx := range s.Transactions {
		if tx.ID == id && tx.UserID == userID {
			return i
		}
	}
	return -1
}

func (s *State) receiptIndex(userID, id string) int {
	for i, r := range s.Receipts {
		if r.ID == id && r.UserID == userID {
			return i
		}
	}
	return -1
}

// addSpent moves the counter of tx's category and month by sign*amount,
// flooring at zero.
func (s *State) addSpent(tx core.Transaction, sign float64) {
	if tx.Type != core.Expense {
		return
	}
	k := SpentKey{UserID: tx.UserID, CategoryID: tx.CategoryID, Month: tx.Date.Key()}
	v := s.Spent[k] + sign*tx.Amount
	if v <= 1e-9 {
		delete(s.Spent, k)
		return
	}
	s.Spent[k] = v
}

func (s *State) removeReceipt(userID, id string) {
	if id == "" {
		return
	}
	if i := s.receiptIndex(userID, id); i >= 0 {
		s.Receipts = append(s.Receipts[:i], s.Receipts[i+1:]...)
	}
}
