package store

import (
	"context"
	"sort"

	"budgetly/internal/core"
	"budgetly/internal/ports"
)

var _ ports.Repository = (*Store)(nil)

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	var (
		u  core.User
		ok bool
	)
	s.read(func(st *State) { u, ok = st.Users[id] })
	if !ok {
		return core.User{ID: id, Role: core.RoleMember, BaseCurrency: core.DefaultBaseCurrency}, nil
	}
	return u, nil
}

func (s *Store) SaveUser(_ context.Context, u core.User) error {
	return s.Dispatch(SaveUser{User: u})
}

func (s *Store) ListCategories(_ context.Context, userID string) ([]core.Category, error) {
	var out []core.Category
	s.read(func(st *State) {
		for _, c := range st.Categories {
			if c.UserID == userID {
				out = append(out, c.Clone())
			}
		}
	})
	return out, nil
}

func (s *Store) GetCategory(_ context.Context, userID, id string) (core.Category, error) {
	var (
		c core.Category
		i = -1
	)
	s.read(func(st *State) {
		if i = st.categoryIndex(userID, id); i >= 0 {
			c = st.Categories[i].Clone()
		}
	})
	if i < 0 {
		return core.Category{}, core.NotFound("category", id)
	}
	return c, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category, guard ports.CountGuard) error {
	return s.Dispatch(CreateCategory{Category: c, Guard: guard})
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) error {
	return s.Dispatch(UpdateCategory{Category: c})
}

func (s *Store) DeleteCategory(_ context.Context, userID, id string) ([]core.Transaction, error) {
	var removed []core.Transaction
	if err := s.Dispatch(DeleteCategory{UserID: userID, ID: id, Removed: &removed}); err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *Store) CountCategories(_ context.Context, userID string) (int, error) {
	n := 0
	s.read(func(st *State) {
		for _, c := range st.Categories {
			if c.UserID == userID {
				n++
			}
		}
	})
	return n, nil
}

func (s *Store) ListTransactions(_ context.Context, userID string, month core.MonthKey) ([]core.Transaction, error) {
	var out []core.Transaction
	s.read(func(st *State) {
		for _, tx := range st.Transactions {
			if tx.UserID != userID {
				continue
			}
			if month != "" && !month.Contains(tx.Date) {
				continue
			}
			out = append(out, tx)
		}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	var (
		tx core.Transaction
		i  = -1
	)
	s.read(func(st *State) {
		if i = st.transactionIndex(userID, id); i >= 0 {
			tx = st.Transactions[i]
		}
	})
	if i < 0 {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	return tx, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction, guard ports.CountGuard) error {
	return s.Dispatch(CreateTransaction{Transaction: tx, Guard: guard})
}

func (s *Store) UpdateTransaction(_ context.Context, tx core.Transaction) error {
	return s.Dispatch(UpdateTransaction{Transaction: tx})
}

func (s *Store) DeleteTransaction(_ context.Context, userID, id string) (core.Transaction, error) {
	var removed core.Transaction
	if err := s.Dispatch(DeleteTransaction{UserID: userID, ID: id, Removed: &removed}); err != nil {
		return core.Transaction{}, err
	}
	return removed, nil
}

func (s *Store) CountTransactions(_ context.Context, userID string) (int, error) {
	n := 0
	s.read(func(st *State) {
		for _, tx := range st.Transactions {
			if tx.UserID == userID {
				n++
			}
		}
	})
	return n, nil
}

func (s *Store) SpentCounters(_ context.Context, userID string, month core.MonthKey) (map[string]float64, error) {
	out := make(map[string]float64)
	s.read(func(st *State) {
		for k, v := range st.Spent {
			if k.UserID == userID && k.Month == month {
				out[k.CategoryID] = v
			}
		}
	})
	return out, nil
}

func (s *Store) GetIncomePlan(_ context.Context, userID string) (core.IncomePlan, error) {
	var (
		p  core.IncomePlan
		ok bool
	)
	s.read(func(st *State) {
		p, ok = st.Income[userID]
		p = p.Clone()
	})
	if !ok {
		return core.IncomePlan{UserID: userID}, nil
	}
	return p, nil
}

func (s *Store) SaveIncomePlan(_ context.Context, p core.IncomePlan) error {
	return s.Dispatch(SaveIncomePlan{Plan: p})
}

func (s *Store) SaveMonthBudgets(_ context.Context, userID string, month core.MonthKey, overrides map[string]float64, plan core.IncomePlan) error {
	return s.Dispatch(SetMonthBudgets{UserID: userID, Month: month, Overrides: overrides, Plan: plan})
}

func (s *Store) ListReceipts(_ context.Context, userID string) ([]core.Receipt, error) {
	var out []core.Receipt
	s.read(func(st *State) {
		for _, r := range st.Receipts {
			if r.UserID == userID {
				out = append(out, r)
			}
		}
	})
	return out, nil
}

func (s *Store) GetReceipt(_ context.Context, userID, id string) (core.Receipt, error) {
	var (
		r core.Receipt
		i = -1
	)
	s.read(func(st *State) {
		if i = st.receiptIndex(userID, id); i >= 0 {
			r = st.Receipts[i]
		}
	})
	if i < 0 {
		return core.Receipt{}, core.NotFound("receipt", id)
	}
	return r, nil
}

func (s *Store) CreateReceipt(_ context.Context, r core.Receipt) error {
	return s.Dispatch(CreateReceipt{Receipt: r})
}

func (s *Store) DeleteReceipt(_ context.Context, userID, id string) error {
	return s.Dispatch(DeleteReceipt{UserID: userID, ID: id})
}
