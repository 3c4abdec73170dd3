package store

import (
	"fmt"
	"sort"

	"budgetly/internal/core"
	"budgetly/internal/ports"
)

// SaveUser inserts or replaces a user's settings.
type SaveUser struct{ User core.User }

func (SaveUser) Name() string { return "user.save" }

func (m SaveUser) Apply(s *State) error {
	if m.User.ID == "" {
		return core.Invalid(core.ErrEmptyUser)
	}
	s.Users[m.User.ID] = m.User
	return nil
}

// CreateCategory adds a new category. Nothing already recorded is
// attributed to it. Guard, when set, sees the user's category count.
type CreateCategory struct {
	Category core.Category
	Guard    ports.CountGuard
}

func (CreateCategory) Name() string { return "category.create" }

func (m CreateCategory) Apply(s *State) error {
	if err := m.Category.Validate(); err != nil {
		return core.Invalid(err)
	}
	if m.Guard != nil {
		n := 0
		for _, c := range s.Categories {
			if c.UserID == m.Category.UserID {
				n++
			}
		}
		if err := m.Guard(n); err != nil {
			return err
		}
	}
	if s.categoryIndex(m.Category.UserID, m.Category.ID) >= 0 {
		return core.NewError(core.KindConflict, core.CodeInvalidInput,
			fmt.Sprintf("category %q already exists", m.Category.ID))
	}
	s.Categories = append(s.Categories, m.Category.Clone())
	return nil
}

// UpdateCategory replaces a category's fields, budgets included.
type UpdateCategory struct{ Category core.Category }

func (UpdateCategory) Name() string { return "category.update" }

func (m UpdateCategory) Apply(s *State) error {
	if err := m.Category.Validate(); err != nil {
		return core.Invalid(err)
	}
	i := s.categoryIndex(m.Category.UserID, m.Category.ID)
	if i < 0 {
		return core.NotFound("category", m.Category.ID)
	}
	c := m.Category.Clone()
	c.CreatedAt = s.Categories[i].CreatedAt
	s.Categories[i] = c
	return nil
}

// DeleteCategory removes a category with every transaction and receipt that
// references it. Removed holds the deleted transactions after a successful
// Dispatch.
type DeleteCategory struct {
	UserID string
	ID     string

	Removed *[]core.Transaction
}

func (DeleteCategory) Name() string { return "category.delete" }

func (m DeleteCategory) Apply(s *State) error {
	i := s.categoryIndex(m.UserID, m.ID)
	if i < 0 {
		return core.NotFound("category", m.ID)
	}
	s.Categories = append(s.Categories[:i], s.Categories[i+1:]...)

	var removed []core.Transaction
	kept := s.Transactions[:0]
	for _, tx := range s.Transactions {
		if tx.UserID == m.UserID && tx.CategoryID == m.ID {
			removed = append(removed, tx)
			continue
		}
		kept = append(kept, tx)
	}
	s.Transactions = kept

	receipts := s.Receipts[:0]
	for _, r := range s.Receipts {
		if r.UserID == m.UserID && belongsTo(r, removed) {
			continue
		}
		receipts = append(receipts, r)
	}
	s.Receipts = receipts

	for k := range s.Spent {
		if k.UserID == m.UserID && k.CategoryID == m.ID {
			delete(s.Spent, k)
		}
	}
	if m.Removed != nil {
		*m.Removed = removed
	}
	return nil
}

func belongsTo(r core.Receipt, txs []core.Transaction) bool {
	for _, tx := range txs {
		if r.TransactionID == tx.ID || (tx.ReceiptID != "" && r.ID == tx.ReceiptID) {
			return true
		}
	}
	return false
}

// CreateTransaction records a transaction. Its category must exist and
// belong to the same user. Guard, when set, sees the user's transaction
// count.
type CreateTransaction struct {
	Transaction core.Transaction
	Guard       ports.CountGuard
}

func (CreateTransaction) Name() string { return "transaction.create" }

func (m CreateTransaction) Apply(s *State) error {
	tx := m.Transaction
	if err := tx.Validate(); err != nil {
		return core.Invalid(err)
	}
	if s.categoryIndex(tx.UserID, tx.CategoryID) < 0 {
		return core.NotFound("category", tx.CategoryID)
	}
	if s.transactionIndex(tx.UserID, tx.ID) >= 0 {
		return core.NewError(core.KindConflict, core.CodeInvalidInput,
			fmt.Sprintf("transaction %q already exists", tx.ID))
	}
	if m.Guard != nil {
		n := 0
		for _, t := range s.Transactions {
			if t.UserID == tx.UserID {
				n++
			}
		}
		if err := m.Guard(n); err != nil {
			return err
		}
	}
	s.Transactions = append(s.Transactions, tx)
	s.addSpent(tx, 1)
	return nil
}

// UpdateTransaction replaces a transaction and moves its contribution to
// the spent counters.
type UpdateTransaction struct{ Transaction core.Transaction }

func (UpdateTransaction) Name() string { return "transaction.update" }

func (m UpdateTransaction) Apply(s *State) error {
	tx := m.Transaction
	if err := tx.Validate(); err != nil {
		return core.Invalid(err)
	}
	i := s.transactionIndex(tx.UserID, tx.ID)
	if i < 0 {
		return core.NotFound("transaction", tx.ID)
	}
	if s.categoryIndex(tx.UserID, tx.CategoryID) < 0 {
		return core.NotFound("category", tx.CategoryID)
	}
	old := s.Transactions[i]
	tx.CreatedAt = old.CreatedAt
	s.addSpent(old, -1)
	s.Transactions[i] = tx
	s.addSpent(tx, 1)
	return nil
}

// DeleteTransaction removes a transaction and its receipt. Removed holds
// the deleted transaction after a successful Dispatch.
type DeleteTransaction struct {
	UserID string
	ID     string

	Removed *core.Transaction
}

func (DeleteTransaction) Name() string { return "transaction.delete" }

func (m DeleteTransaction) Apply(s *State) error {
	i := s.transactionIndex(m.UserID, m.ID)
	if i < 0 {
		return core.NotFound("transaction", m.ID)
	}
	tx := s.Transactions[i]
	s.Transactions = append(s.Transactions[:i], s.Transactions[i+1:]...)
	s.addSpent(tx, -1)
	s.removeReceipt(m.UserID, tx.ReceiptID)
	receipts := s.Receipts[:0]
	for _, r := range s.Receipts {
		if r.UserID == m.UserID && r.TransactionID == tx.ID {
			continue
		}
		receipts = append(receipts, r)
	}
	s.Receipts = receipts
	if m.Removed != nil {
		*m.Removed = tx
	}
	return nil
}

// SaveIncomePlan replaces a user's income plan.
type SaveIncomePlan struct{ Plan core.IncomePlan }

func (SaveIncomePlan) Name() string { return "income.save" }

func (m SaveIncomePlan) Apply(s *State) error {
	if m.Plan.UserID == "" {
		return core.Invalid(core.ErrEmptyUser)
	}
	if err := m.Plan.Validate(); err != nil {
		return core.Invalid(err)
	}
	p := m.Plan.Clone()
	if p.Since == "" || !p.Since.Valid() {
		p.Since = earliestKey(p.Monthly)
	}
	s.Income[p.UserID] = p
	return nil
}

// SetMonthBudgets writes one month's category overrides together with the
// user's income plan. An unknown category aborts the whole write.
type SetMonthBudgets struct {
	UserID    string
	Month     core.MonthKey
	Overrides map[string]float64
	Plan      core.IncomePlan
}

func (SetMonthBudgets) Name() string { return "budget.month.save" }

func (m SetMonthBudgets) Apply(s *State) error {
	if !m.Month.Valid() {
		return core.Invalid(core.ErrInvalidMonthKey)
	}
	for id, amount := range m.Overrides {
		i := s.categoryIndex(m.UserID, id)
		if i < 0 {
			return core.NotFound("category", id)
		}
		if amount < 0 {
			return core.Invalid(core.ErrInvalidBudget)
		}
		c := &s.Categories[i]
		if c.MonthlyBudgets == nil {
			c.MonthlyBudgets = make(map[core.MonthKey]float64)
		}
		c.MonthlyBudgets[m.Month] = amount
	}
	return SaveIncomePlan{Plan: m.Plan}.Apply(s)
}

func earliestKey(m map[core.MonthKey]float64) core.MonthKey {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	return core.MonthKey(keys[0])
}

// CreateReceipt attaches a receipt, optionally linked to a transaction of
// the same user.
type CreateReceipt struct{ Receipt core.Receipt }

func (CreateReceipt) Name() string { return "receipt.create" }

func (m CreateReceipt) Apply(s *State) error {
	r := m.Receipt
	if err := r.Validate(); err != nil {
		return core.Invalid(err)
	}
	if r.TransactionID != "" {
		i := s.transactionIndex(r.UserID, r.TransactionID)
		if i < 0 {
			return core.NotFound("transaction", r.TransactionID)
		}
		s.Transactions[i].ReceiptID = r.ID
	}
	s.Receipts = append(s.Receipts, r)
	return nil
}

// DeleteReceipt removes a receipt and unlinks it from its transaction.
type DeleteReceipt struct {
	UserID string
	ID     string
}

func (DeleteReceipt) Name() string { return "receipt.delete" }

func (m DeleteReceipt) Apply(s *State) error {
	i := s.receiptIndex(m.UserID, m.ID)
	if i < 0 {
		return core.NotFound("receipt", m.ID)
	}
	s.Receipts = append(s.Receipts[:i], s.Receipts[i+1:]...)
	for j := range s.Transactions {
		if s.Transactions[j].UserID == m.UserID && s.Transactions[j].ReceiptID == m.ID {
			s.Transactions[j].ReceiptID = ""
		}
	}
	return nil
}
