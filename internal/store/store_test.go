package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetly/internal/core"
)

func seedCategory(t *testing.T, s *Store, id string, budget float64) {
	t.Helper()
	require.NoError(t, s.CreateCategory(context.Background(), core.Category{
		ID: id, UserID: "u1", Name: id, Budget: budget,
	}, nil))
}

func expense(id, cat string, amount float64, d core.Date) core.Transaction {
	return core.Transaction{
		ID: id, UserID: "u1", CategoryID: cat, Type: core.Expense,
		Amount: amount, Currency: "USD", Date: d,
	}
}

func TestDispatchIsAllOrNothing(t *testing.T) {
	s := New()
	seedCategory(t, s, "food", 100)
	before := s.Version()

	err := s.Dispatch(mutationFunc(func(st *State) error {
		st.Categories = nil
		return errors.New("boom")
	}))
	require.Error(t, err)
	assert.Equal(t, before, s.Version())
	assert.Len(t, s.State().Categories, 1)
}

type mutationFunc func(*State) error

func (mutationFunc) Name() string           { return "test" }
func (f mutationFunc) Apply(s *State) error { return f(s) }

func TestSubscribeAndUnsubscribe(t *testing.T) {
	s := New()
	var events []Event
	unsubscribe := s.Subscribe(func(e Event) { events = append(events, e) })

	seedCategory(t, s, "food", 100)
	require.Len(t, events, 1)
	assert.Equal(t, "category.create", events[0].Mutation)
	assert.Equal(t, uint64(1), events[0].Version)

	unsubscribe()
	unsubscribe()
	seedCategory(t, s, "rent", 100)
	assert.Len(t, events, 1)
}

func TestFailedMutationDoesNotNotify(t *testing.T) {
	s := New()
	called := false
	s.Subscribe(func(Event) { called = true })

	err := s.CreateTransaction(context.Background(), expense("t1", "missing", 5, core.NewDate(2024, 3, 1)), nil)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindNotFound))
	assert.False(t, called)
}

func TestStateIsACopy(t *testing.T) {
	s := New()
	seedCategory(t, s, "food", 100)

	st := s.State()
	st.Categories[0].Name = "changed"
	st.Categories[0].MonthlyBudgets = map[core.MonthKey]float64{"2024-01": 1}

	c, err := s.GetCategory(context.Background(), "u1", "food")
	require.NoError(t, err)
	assert.Equal(t, "food", c.Name)
	assert.Empty(t, c.MonthlyBudgets)
}

func TestSpentCounterFollowsWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedCategory(t, s, "food", 100)
	seedCategory(t, s, "rent", 500)
	march := core.NewDate(2024, 3, 10)

	require.NoError(t, s.CreateTransaction(ctx, expense("t1", "food", 40, march), nil))
	require.NoError(t, s.CreateTransaction(ctx, expense("t2", "food", 25.5, march), nil))
	require.NoError(t, s.CreateTransaction(ctx, core.Transaction{
		ID: "t3", UserID: "u1", CategoryID: "food", Type: core.Income, Amount: 1000, Date: march,
	}, nil))

	spent, err := s.SpentCounters(ctx, "u1", "2024-03")
	require.NoError(t, err)
	assert.InDelta(t, 65.5, spent["food"], 1e-9)

	moved := expense("t2", "rent", 25.5, core.NewDate(2024, 4, 1))
	require.NoError(t, s.UpdateTransaction(ctx, moved))
	spent, _ = s.SpentCounters(ctx, "u1", "2024-03")
	assert.InDelta(t, 40, spent["food"], 1e-9)
	spent, _ = s.SpentCounters(ctx, "u1", "2024-04")
	assert.InDelta(t, 25.5, spent["rent"], 1e-9)

	removed, err := s.DeleteTransaction(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", removed.ID)
	spent, _ = s.SpentCounters(ctx, "u1", "2024-03")
	assert.Zero(t, spent["food"])

	assert.Empty(t, s.VerifySpent())
}

func TestVerifySpentReportsDrift(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedCategory(t, s, "food", 100)
	require.NoError(t, s.CreateTransaction(ctx, expense("t1", "food", 40, core.NewDate(2024, 3, 10)), nil))

	require.NoError(t, s.Dispatch(mutationFunc(func(st *State) error {
		st.Spent[SpentKey{UserID: "u1", CategoryID: "food", Month: "2024-03"}] = 10
		return nil
	})))
	drift := s.VerifySpent()
	require.Len(t, drift, 1)
	assert.InDelta(t, 10, drift[0].Cached, 1e-9)
	assert.InDelta(t, 40, drift[0].Computed, 1e-9)

	require.NoError(t, s.Dispatch(RebuildSpent{}))
	assert.Empty(t, s.VerifySpent())
}

func TestDeleteCategoryCascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedCategory(t, s, "food", 100)
	seedCategory(t, s, "rent", 500)
	d := core.NewDate(2024, 3, 10)

	require.NoError(t, s.CreateTransaction(ctx, expense("t1", "food", 10, d), nil))
	require.NoError(t, s.CreateTransaction(ctx, expense("t2", "food", 20, d), nil))
	require.NoError(t, s.CreateTransaction(ctx, expense("t3", "rent", 30, d), nil))
	require.NoError(t, s.CreateReceipt(ctx, core.Receipt{ID: "r1", UserID: "u1", TransactionID: "t1", URI: "file://r1"}))
	require.NoError(t, s.CreateReceipt(ctx, core.Receipt{ID: "r3", UserID: "u1", TransactionID: "t3", URI: "file://r3"}))

	removed, err := s.DeleteCategory(ctx, "u1", "food")
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	st := s.State()
	require.Len(t, st.Categories, 1)
	require.Len(t, st.Transactions, 1)
	assert.Equal(t, "t3", st.Transactions[0].ID)
	require.Len(t, st.Receipts, 1)
	assert.Equal(t, "r3", st.Receipts[0].ID)
	for _, tx := range st.Transactions {
		assert.NotEqual(t, "food", tx.CategoryID)
	}
	assert.Empty(t, s.VerifySpent())

	_, err = s.DeleteCategory(ctx, "u1", "food")
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestDeleteTransactionRemovesReceipt(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedCategory(t, s, "food", 100)
	require.NoError(t, s.CreateTransaction(ctx, expense("t1", "food", 10, core.NewDate(2024, 3, 1)), nil))
	require.NoError(t, s.CreateReceipt(ctx, core.Receipt{ID: "r1", UserID: "u1", TransactionID: "t1", URI: "file://r1"}))

	tx, err := s.GetTransaction(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "r1", tx.ReceiptID)

	_, err = s.DeleteTransaction(ctx, "u1", "t1")
	require.NoError(t, err)
	receipts, _ := s.ListReceipts(ctx, "u1")
	assert.Empty(t, receipts)
}

func TestUsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedCategory(t, s, "food", 100)

	_, err := s.GetCategory(ctx, "u2", "food")
	assert.True(t, core.IsKind(err, core.KindNotFound))

	err = s.CreateTransaction(ctx, core.Transaction{
		ID: "t1", UserID: "u2", CategoryID: "food", Type: core.Expense, Amount: 1, Date: core.NewDate(2024, 1, 1),
	}, nil)
	assert.True(t, core.IsKind(err, core.KindNotFound))

	n, _ := s.CountCategories(ctx, "u2")
	assert.Zero(t, n)
}

func TestListTransactionsByMonth(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedCategory(t, s, "food", 100)
	require.NoError(t, s.CreateTransaction(ctx, expense("late", "food", 1, core.NewDate(2024, 3, 30)), nil))
	require.NoError(t, s.CreateTransaction(ctx, expense("early", "food", 1, core.NewDate(2024, 3, 2)), nil))
	require.NoError(t, s.CreateTransaction(ctx, expense("feb", "food", 1, core.NewDate(2024, 2, 29)), nil))

	march, err := s.ListTransactions(ctx, "u1", "2024-03")
	require.NoError(t, err)
	require.Len(t, march, 2)
	assert.Equal(t, "early", march[0].ID)

	all, _ := s.ListTransactions(ctx, "u1", "")
	assert.Len(t, all, 3)
	assert.Equal(t, "feb", all[0].ID)
}

func TestIncomePlanSince(t *testing.T) {
	ctx := context.Background()
	s := New()

	p, err := s.GetIncomePlan(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, p.Default)

	require.NoError(t, s.SaveIncomePlan(ctx, core.IncomePlan{
		UserID:  "u1",
		Default: 3000,
		Monthly: map[core.MonthKey]float64{"2024-05": 3500, "2024-02": 2800},
	}))
	p, _ = s.GetIncomePlan(ctx, "u1")
	assert.Equal(t, core.MonthKey("2024-02"), p.Since)

	err = s.SaveIncomePlan(ctx, core.IncomePlan{UserID: "u1", Default: -1})
	assert.True(t, core.IsKind(err, core.KindValidation))
}

func TestGetUserDefaults(t *testing.T) {
	ctx := context.Background()
	s := New()
	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, core.RoleMember, u.Role)
	assert.Equal(t, core.DefaultBaseCurrency, u.BaseCurrency)

	require.NoError(t, s.SaveUser(ctx, core.User{ID: "u1", Role: core.RoleGuest, BaseCurrency: "EUR"}))
	u, _ = s.GetUser(ctx, "u1")
	assert.True(t, u.Guest())
	assert.Equal(t, "EUR", u.BaseCurrency)
}

func TestNewFromFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := NewFromFiles(dir, "demo")
	require.NoError(t, err)
	cats, _ := s.ListCategories(ctx, "demo")
	assert.Len(t, cats, len(defaultSeed))

	content := "# starter\nFood,300\nRent\nFood,1\n\nFun,abc\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, SeedFile), []byte(content), 0o644))

	s, err = NewFromFiles(dir, "demo")
	require.NoError(t, err)
	cats, _ = s.ListCategories(ctx, "demo")
	require.Len(t, cats, 3)
	assert.Equal(t, "Food", cats[0].Name)
	assert.Equal(t, 300.0, cats[0].Budget)
	assert.Equal(t, "Rent", cats[1].Name)
	assert.Zero(t, cats[1].Budget)
	assert.Zero(t, cats[2].Budget)

	empty, err := NewFromFiles(dir, "")
	require.NoError(t, err)
	assert.Empty(t, empty.State().Categories)
}

func TestNewFromFilesReportsSkippedLines(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	long := strings.Repeat("x", 101)
	content := "Food,300\n" + long + ",10\nFun,Inf\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, SeedFile), []byte(content), 0o644))

	s, err := NewFromFiles(dir, "demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "xxxx")
	assert.Contains(t, err.Error(), `"Fun"`)
	assert.True(t, core.IsKind(err, core.KindValidation))

	cats, _ := s.ListCategories(ctx, "demo")
	require.Len(t, cats, 1)
	assert.Equal(t, "Food", cats[0].Name)
}

func TestCreateGuardSeesCountAtomically(t *testing.T) {
	ctx := context.Background()
	s := New()
	capAt := func(limit int) func(int) error {
		return func(existing int) error {
			if existing >= limit {
				return core.NewError(core.KindPolicy, core.CodeGuestLimitReached, "full")
			}
			return nil
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.CreateCategory(ctx, core.Category{
				ID: fmt.Sprintf("c%d", i), UserID: "u1", Name: "c",
			}, capAt(3))
		}(i)
	}
	wg.Wait()
	n, _ := s.CountCategories(ctx, "u1")
	assert.Equal(t, 3, n)

	require.NoError(t, s.CreateTransaction(ctx, expense("t1", "c0", 1, core.NewDate(2024, 3, 1)), capAt(1)))
	err := s.CreateTransaction(ctx, expense("t2", "c0", 1, core.NewDate(2024, 3, 1)), capAt(1))
	assert.True(t, core.IsKind(err, core.KindPolicy))
	spent, _ := s.SpentCounters(ctx, "u1", "2024-03")
	assert.Equal(t, 1.0, spent["c0"], "a vetoed create leaves counters alone")
}

func TestSaveMonthBudgetsIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedCategory(t, s, "food", 100)
	seedCategory(t, s, "rent", 900)
	plan := core.IncomePlan{UserID: "u1", Monthly: map[core.MonthKey]float64{"2024-03": 3000}}

	err := s.SaveMonthBudgets(ctx, "u1", "2024-03", map[string]float64{"food": 150, "missing": 5}, plan)
	assert.True(t, core.IsKind(err, core.KindNotFound))
	food, _ := s.GetCategory(ctx, "u1", "food")
	assert.Empty(t, food.MonthlyBudgets)
	p, _ := s.GetIncomePlan(ctx, "u1")
	assert.Empty(t, p.Monthly)

	require.NoError(t, s.SaveMonthBudgets(ctx, "u1", "2024-03", map[string]float64{"food": 150, "rent": 800}, plan))
	food, _ = s.GetCategory(ctx, "u1", "food")
	assert.Equal(t, 150.0, food.MonthlyBudgets["2024-03"])
	rent, _ := s.GetCategory(ctx, "u1", "rent")
	assert.Equal(t, 800.0, rent.MonthlyBudgets["2024-03"])
	p, _ = s.GetIncomePlan(ctx, "u1")
	assert.Equal(t, 3000.0, p.Monthly["2024-03"])
}
