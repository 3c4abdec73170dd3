package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetly/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "budgetly.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func mustCategory(t *testing.T, r *SQLiteRepository, id string, budget float64) {
	t.Helper()
	require.NoError(t, r.CreateCategory(context.Background(), core.Category{
		ID: id, UserID: "u1", Name: id, Budget: budget,
	}, nil))
}

func tx(id, cat string, amount float64, d core.Date) core.Transaction {
	return core.Transaction{
		ID: id, UserID: "u1", CategoryID: cat, Type: core.Expense,
		Amount: amount, Currency: "USD", Date: d,
	}
}

func TestMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	v, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), v)

	// Running again is a no-op.
	require.NoError(t, RunMigrations(path))
}

func TestCategoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	require.NoError(t, r.CreateCategory(ctx, core.Category{
		ID: "food", UserID: "u1", Name: "Food", Icon: "cart", Color: "#0f0", Budget: 300,
		MonthlyBudgets: map[core.MonthKey]float64{"2024-03": 450},
	}, nil))

	c, err := r.GetCategory(ctx, "u1", "food")
	require.NoError(t, err)
	assert.Equal(t, "Food", c.Name)
	assert.Equal(t, 300.0, c.Budget)
	assert.Equal(t, 450.0, c.MonthlyBudgets["2024-03"])

	c.MonthlyBudgets = map[core.MonthKey]float64{"2024-04": 10}
	c.Budget = 200
	require.NoError(t, r.UpdateCategory(ctx, c))

	list, err := r.ListCategories(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 200.0, list[0].Budget)
	assert.Equal(t, map[core.MonthKey]float64{"2024-04": 10}, list[0].MonthlyBudgets)

	_, err = r.GetCategory(ctx, "u2", "food")
	assert.True(t, core.IsKind(err, core.KindNotFound))

	err = r.UpdateCategory(ctx, core.Category{ID: "nope", UserID: "u1", Name: "x"})
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestSpentCounters(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	mustCategory(t, r, "food", 100)
	mustCategory(t, r, "rent", 100)
	d := core.NewDate(2024, 3, 15)

	require.NoError(t, r.CreateTransaction(ctx, tx("t1", "food", 40, d), nil))
	require.NoError(t, r.CreateTransaction(ctx, tx("t2", "food", 10, d), nil))
	require.NoError(t, r.CreateTransaction(ctx, core.Transaction{
		ID: "inc", UserID: "u1", CategoryID: "food", Type: core.Income, Amount: 999, Date: d,
	}, nil))

	spent, err := r.SpentCounters(ctx, "u1", "2024-03")
	require.NoError(t, err)
	assert.InDelta(t, 50, spent["food"], 1e-9)

	require.NoError(t, r.UpdateTransaction(ctx, tx("t2", "rent", 10, core.NewDate(2024, 4, 1))))
	spent, _ = r.SpentCounters(ctx, "u1", "2024-03")
	assert.InDelta(t, 40, spent["food"], 1e-9)
	spent, _ = r.SpentCounters(ctx, "u1", "2024-04")
	assert.InDelta(t, 10, spent["rent"], 1e-9)

	removed, err := r.DeleteTransaction(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 40.0, removed.Amount)
	spent, _ = r.SpentCounters(ctx, "u1", "2024-03")
	_, ok := spent["food"]
	assert.False(t, ok)

	err = r.CreateTransaction(ctx, tx("t3", "missing", 1, d), nil)
	assert.True(t, core.IsKind(err, core.KindNotFound))
	n, _ := r.CountTransactions(ctx, "u1")
	assert.Equal(t, 2, n)
}

func TestListTransactionsByParsedMonth(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	mustCategory(t, r, "food", 100)

	require.NoError(t, r.CreateTransaction(ctx, tx("b", "food", 1, core.NewDate(2024, 3, 20)), nil))
	require.NoError(t, r.CreateTransaction(ctx, tx("a", "food", 1, core.NewDate(2024, 3, 1)), nil))
	require.NoError(t, r.CreateTransaction(ctx, tx("c", "food", 1, core.NewDate(2024, 2, 29)), nil))

	march, err := r.ListTransactions(ctx, "u1", "2024-03")
	require.NoError(t, err)
	require.Len(t, march, 2)
	assert.Equal(t, "a", march[0].ID)
	assert.Equal(t, "2024-03-01", march[0].Date.String())

	all, err := r.ListTransactions(ctx, "u1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestDeleteCategoryCascade(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	mustCategory(t, r, "food", 100)
	mustCategory(t, r, "rent", 100)
	d := core.NewDate(2024, 3, 15)

	require.NoError(t, r.CreateTransaction(ctx, tx("t1", "food", 10, d), nil))
	require.NoError(t, r.CreateTransaction(ctx, tx("t2", "food", 20, d), nil))
	require.NoError(t, r.CreateTransaction(ctx, tx("t3", "rent", 30, d), nil))
	require.NoError(t, r.CreateReceipt(ctx, core.Receipt{ID: "r1", UserID: "u1", TransactionID: "t1", URI: "s3://r1"}))
	require.NoError(t, r.CreateReceipt(ctx, core.Receipt{ID: "r3", UserID: "u1", TransactionID: "t3", URI: "s3://r3"}))

	removed, err := r.DeleteCategory(ctx, "u1", "food")
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	cats, _ := r.ListCategories(ctx, "u1")
	require.Len(t, cats, 1)
	txs, _ := r.ListTransactions(ctx, "u1", "")
	require.Len(t, txs, 1)
	assert.Equal(t, "t3", txs[0].ID)
	receipts, _ := r.ListReceipts(ctx, "u1")
	require.Len(t, receipts, 1)
	assert.Equal(t, "r3", receipts[0].ID)
	spent, _ := r.SpentCounters(ctx, "u1", "2024-03")
	assert.Equal(t, map[string]float64{"rent": 30}, spent)

	_, err = r.DeleteCategory(ctx, "u1", "food")
	assert.True(t, core.IsKind(err, core.KindNotFound))
}

func TestReceiptLinking(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	mustCategory(t, r, "food", 100)
	require.NoError(t, r.CreateTransaction(ctx, tx("t1", "food", 10, core.NewDate(2024, 3, 1)), nil))

	err := r.CreateReceipt(ctx, core.Receipt{ID: "bad", UserID: "u1", TransactionID: "nope", URI: "x"})
	assert.True(t, core.IsKind(err, core.KindNotFound))

	require.NoError(t, r.CreateReceipt(ctx, core.Receipt{ID: "r1", UserID: "u1", TransactionID: "t1", URI: "x", Total: 10}))
	got, err := r.GetTransaction(ctx, "u1", "t1")
	require.NoError(t, err)
	assert.Equal(t, "r1", got.ReceiptID)

	require.NoError(t, r.DeleteReceipt(ctx, "u1", "r1"))
	got, _ = r.GetTransaction(ctx, "u1", "t1")
	assert.Empty(t, got.ReceiptID)
}

func TestIncomePlanRoundTrip(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	p, err := r.GetIncomePlan(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, p.Default)
	assert.Empty(t, p.Monthly)

	require.NoError(t, r.SaveIncomePlan(ctx, core.IncomePlan{
		UserID: "u1", Default: 3000,
		Monthly: map[core.MonthKey]float64{"2024-06": 3200, "2024-01": 2900},
	}))
	p, err = r.GetIncomePlan(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, p.Default)
	assert.Equal(t, core.MonthKey("2024-01"), p.Since)
	assert.Len(t, p.Monthly, 2)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	u, err := r.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, core.RoleMember, u.Role)

	require.NoError(t, r.SaveUser(ctx, core.User{ID: "u1", Role: core.RoleGuest, BaseCurrency: "EUR"}))
	u, err = r.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.Guest())
	assert.Equal(t, "EUR", u.BaseCurrency)
}

func TestSyncTracking(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	mustCategory(t, r, "food", 100)
	require.NoError(t, r.CreateTransaction(ctx, tx("t1", "food", 10, core.NewDate(2024, 3, 1)), nil))
	require.NoError(t, r.CreateTransaction(ctx, tx("t2", "food", 10, core.NewDate(2024, 3, 2)), nil))

	pending, err := r.PendingSync(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, r.MarkSynced(ctx, "t1", "Ledger!A2:G2"))
	require.NoError(t, r.MarkSyncError(ctx, "t2"))

	status, ref, err := r.SyncStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, SyncSynced, status)
	assert.Equal(t, "Ledger!A2:G2", ref)

	pending, _ = r.PendingSync(ctx, 10)
	require.Len(t, pending, 1)
	assert.Equal(t, "t2", pending[0].ID)

	found, err := r.FindTransaction(ctx, "t2")
	require.NoError(t, err)
	assert.Equal(t, "u1", found.UserID)
}

func TestCreateGuardRunsInsideTransaction(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	capAt := func(limit int) func(int) error {
		return func(existing int) error {
			if existing >= limit {
				return core.NewError(core.KindPolicy, core.CodeGuestLimitReached, "full")
			}
			return nil
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.CreateCategory(ctx, core.Category{ID: fmt.Sprintf("c%d", i), UserID: "u1", Name: "c"}, capAt(2))
		}(i)
	}
	wg.Wait()
	n, err := r.CountCategories(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	cats, _ := r.ListCategories(ctx, "u1")
	require.NotEmpty(t, cats)
	require.NoError(t, r.CreateTransaction(ctx, tx("t1", cats[0].ID, 5, core.NewDate(2024, 3, 1)), capAt(1)))
	err = r.CreateTransaction(ctx, tx("t2", cats[0].ID, 5, core.NewDate(2024, 3, 1)), capAt(1))
	assert.True(t, core.IsKind(err, core.KindPolicy))
	spent, _ := r.SpentCounters(ctx, "u1", "2024-03")
	assert.Equal(t, 5.0, spent[cats[0].ID])
}

func TestSaveMonthBudgetsRollsBack(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	mustCategory(t, r, "food", 100)
	mustCategory(t, r, "rent", 900)
	plan := core.IncomePlan{UserID: "u1", Default: 2000, Monthly: map[core.MonthKey]float64{"2024-03": 3000}}

	err := r.SaveMonthBudgets(ctx, "u1", "2024-03", map[string]float64{"food": 150, "missing": 5}, plan)
	assert.True(t, core.IsKind(err, core.KindNotFound))
	food, _ := r.GetCategory(ctx, "u1", "food")
	assert.Empty(t, food.MonthlyBudgets)
	p, _ := r.GetIncomePlan(ctx, "u1")
	assert.Zero(t, p.Default)

	require.NoError(t, r.SaveMonthBudgets(ctx, "u1", "2024-03", map[string]float64{"food": 150}, plan))
	require.NoError(t, r.SaveMonthBudgets(ctx, "u1", "2024-03", map[string]float64{"food": 175, "rent": 800}, plan))
	food, _ = r.GetCategory(ctx, "u1", "food")
	assert.Equal(t, 175.0, food.MonthlyBudgets["2024-03"])
	rent, _ := r.GetCategory(ctx, "u1", "rent")
	assert.Equal(t, 800.0, rent.MonthlyBudgets["2024-03"])
	p, _ = r.GetIncomePlan(ctx, "u1")
	assert.Equal(t, 3000.0, p.Monthly["2024-03"])
	assert.Equal(t, core.MonthKey("2024-03"), p.Since)
}

func TestPendingSyncPutsFailedRowsLast(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	mustCategory(t, r, "food", 100)
	for _, id := range []string{"old1", "old2", "fresh"} {
		require.NoError(t, r.CreateTransaction(ctx, tx(id, "food", 1, core.NewDate(2024, 3, 1)), nil))
	}
	require.NoError(t, r.MarkSyncError(ctx, "old1"))
	require.NoError(t, r.MarkSyncError(ctx, "old2"))

	pending, err := r.PendingSync(ctx, 1)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "fresh", pending[0].ID)

	pending, _ = r.PendingSync(ctx, 10)
	require.Len(t, pending, 3)
	assert.Equal(t, []string{"fresh", "old1", "old2"}, []string{pending[0].ID, pending[1].ID, pending[2].ID})
}

func TestUpdateKeepsLedgerRef(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	mustCategory(t, r, "food", 100)
	require.NoError(t, r.CreateTransaction(ctx, tx("t1", "food", 10, core.NewDate(2024, 3, 1)), nil))
	require.NoError(t, r.MarkSynced(ctx, "t1", "2024 Ledger!A2:J2"))

	require.NoError(t, r.UpdateTransaction(ctx, tx("t1", "food", 30, core.NewDate(2024, 3, 1))))
	status, ref, err := r.SyncStatus(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, SyncPending, status)
	assert.Equal(t, "2024 Ledger!A2:J2", ref)
}
