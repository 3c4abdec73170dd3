package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"budgetly/internal/core"
	"budgetly/internal/ports"

	_ "modernc.org/sqlite"
)

// Sync states of a transaction row towards the external ledger.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var _ ports.Repository = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer keeps multi-statement transactions from hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// withTx runs fn in one SQL transaction, rolling back on error.
func (r *SQLiteRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Users

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (core.User, error) {
	u := core.User{ID: id}
	var role string
	err := r.db.QueryRowContext(ctx,
		`SELECT role, base_currency FROM users WHERE id = ?`, id).Scan(&role, &u.BaseCurrency)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{ID: id, Role: core.RoleMember, BaseCurrency: core.DefaultBaseCurrency}, nil
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.Role = core.Role(role)
	return u, nil
}

func (r *SQLiteRepository) SaveUser(ctx context.Context, u core.User) error {
	if u.ID == "" {
		return core.Invalid(core.ErrEmptyUser)
	}
	base := u.BaseCurrency
	if base == "" {
		base = core.DefaultBaseCurrency
	}
	role := u.Role
	if role == "" {
		role = core.RoleMember
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, role, base_currency) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET role = excluded.role, base_currency = excluded.base_currency`,
		u.ID, string(role), base)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// Categories

const categoryColumns = `id, user_id, name, icon, color, budget, created_at`

func scanCategory(row interface{ Scan(...any) error }) (core.Category, error) {
	var (
		c       core.Category
		created string
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Icon, &c.Color, &c.Budget, &created); err != nil {
		return core.Category{}, err
	}
	c.CreatedAt = parseTime(created)
	return c, nil
}

func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = ? ORDER BY created_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var (
		out   []core.Category
		index = map[string]int{}
	)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		index[c.ID] = len(out)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	rows.Close()

	overrides, err := r.db.QueryContext(ctx, `
		SELECT b.category_id, b.month, b.amount FROM category_budgets b
		JOIN categories c ON c.id = b.category_id
		WHERE c.user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list category budgets: %w", err)
	}
	defer overrides.Close()
	for overrides.Next() {
		var (
			id, month string
			amount    float64
		)
		if err := overrides.Scan(&id, &month, &amount); err != nil {
			return nil, fmt.Errorf("scan category budget: %w", err)
		}
		i, ok := index[id]
		if !ok {
			continue
		}
		if out[i].MonthlyBudgets == nil {
			out[i].MonthlyBudgets = make(map[core.MonthKey]float64)
		}
		out[i].MonthlyBudgets[core.MonthKey(month)] = amount
	}
	return out, overrides.Err()
}

func (r *SQLiteRepository) GetCategory(ctx context.Context, userID, id string) (core.Category, error) {
	c, err := scanCategory(r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFound("category", id)
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT month, amount FROM category_budgets WHERE category_id = ?`, id)
	if err != nil {
		return core.Category{}, fmt.Errorf("get category budgets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			month  string
			amount float64
		)
		if err := rows.Scan(&month, &amount); err != nil {
			return core.Category{}, fmt.Errorf("scan category budget: %w", err)
		}
		if c.MonthlyBudgets == nil {
			c.MonthlyBudgets = make(map[core.MonthKey]float64)
		}
		c.MonthlyBudgets[core.MonthKey(month)] = amount
	}
	return c, rows.Err()
}

func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category, guard ports.CountGuard) error {
	if err := c.Validate(); err != nil {
		return core.Invalid(err)
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if err := checkCount(ctx, tx, guard,
			`SELECT COUNT(*) FROM categories WHERE user_id = ?`, c.UserID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO categories (`+categoryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.UserID, c.Name, c.Icon, c.Color, c.Budget, formatTime(c.CreatedAt))
		if err != nil {
			return fmt.Errorf("create category: %w", err)
		}
		return replaceBudgets(ctx, tx, c)
	})
}

func (r *SQLiteRepository) UpdateCategory(ctx context.Context, c core.Category) error {
	if err := c.Validate(); err != nil {
		return core.Invalid(err)
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE categories SET name = ?, icon = ?, color = ?, budget = ?
			WHERE id = ? AND user_id = ?`,
			c.Name, c.Icon, c.Color, c.Budget, c.ID, c.UserID)
		if err != nil {
			return fmt.Errorf("update category: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.NotFound("category", c.ID)
		}
		return replaceBudgets(ctx, tx, c)
	})
}

func replaceBudgets(ctx context.Context, tx *sql.Tx, c core.Category) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM category_budgets WHERE category_id = ?`, c.ID); err != nil {
		return fmt.Errorf("clear category budgets: %w", err)
	}
	for m, amount := range c.MonthlyBudgets {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO category_budgets (category_id, month, amount) VALUES (?, ?, ?)`,
			c.ID, string(m), amount); err != nil {
			return fmt.Errorf("save category budget %s: %w", m, err)
		}
	}
	return nil
}

// DeleteCategory removes the category, its month budgets, its transactions,
// their receipts and its spent counters in one SQL transaction.
func (r *SQLiteRepository) DeleteCategory(ctx context.Context, userID, id string) ([]core.Transaction, error) {
	var removed []core.Transaction
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM categories WHERE id = ? AND user_id = ?`, id, userID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check category: %w", err)
		}
		if exists == 0 {
			return core.NotFound("category", id)
		}

		removed, err = queryTransactions(ctx, tx,
			`WHERE user_id = ? AND category_id = ? ORDER BY date, rowid`, userID, id)
		if err != nil {
			return err
		}

		stmts := []struct {
			name  string
			query string
			args  []any
		}{
			{"receipts", `DELETE FROM receipts WHERE user_id = ? AND transaction_id IN
				(SELECT id FROM transactions WHERE user_id = ? AND category_id = ?)`, []any{userID, userID, id}},
			{"receipts", `DELETE FROM receipts WHERE user_id = ? AND id IN
				(SELECT receipt_id FROM transactions WHERE user_id = ? AND category_id = ? AND receipt_id != '')`, []any{userID, userID, id}},
			{"transactions", `DELETE FROM transactions WHERE user_id = ? AND category_id = ?`, []any{userID, id}},
			{"spent counters", `DELETE FROM category_spent WHERE user_id = ? AND category_id = ?`, []any{userID, id}},
			{"category budgets", `DELETE FROM category_budgets WHERE category_id = ?`, []any{id}},
			{"category", `DELETE FROM categories WHERE id = ? AND user_id = ?`, []any{id, userID}},
		}
		for _, s := range stmts {
			if _, err := tx.ExecContext(ctx, s.query, s.args...); err != nil {
				return fmt.Errorf("delete %s: %w", s.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "Category deleted",
		"category_id", id,
		"user_id", userID,
		"removed_transactions", len(removed))
	return removed, nil
}

func (r *SQLiteRepository) CountCategories(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return n, nil
}

// Transactions

const transactionColumns = `id, user_id, category_id, type, amount, currency,
	original_amount, original_currency, date, description, receipt_id, created_at`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t             core.Transaction
		typ           string
		date, created string
	)
	err := row.Scan(&t.ID, &t.UserID, &t.CategoryID, &typ, &t.Amount, &t.Currency,
		&t.OriginalAmount, &t.OriginalCurrency, &date, &t.Description, &t.ReceiptID, &created)
	if err != nil {
		return core.Transaction{}, err
	}
	t.Type = core.TransactionType(typ)
	if d, err := core.ParseDate(date); err == nil {
		t.Date = d
	}
	t.CreatedAt = parseTime(created)
	return t, nil
}

func queryTransactions(ctx context.Context, q querier, where string, args ...any) ([]core.Transaction, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, month core.MonthKey) ([]core.Transaction, error) {
	if month == "" {
		return queryTransactions(ctx, r.db, `WHERE user_id = ? ORDER BY date, rowid`, userID)
	}
	return queryTransactions(ctx, r.db, `WHERE user_id = ? AND month = ? ORDER BY date, rowid`, userID, string(month))
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	return t, nil
}

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction, guard ports.CountGuard) error {
	if err := t.Validate(); err != nil {
		return core.Invalid(err)
	}
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireCategory(ctx, tx, t.UserID, t.CategoryID); err != nil {
			return err
		}
		if err := checkCount(ctx, tx, guard,
			`SELECT COUNT(*) FROM transactions WHERE user_id = ?`, t.UserID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transactions (`+transactionColumns+`, month)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.UserID, t.CategoryID, string(t.Type), t.Amount, t.Currency,
			t.OriginalAmount, t.OriginalCurrency, t.Date.Format(dateLayout), t.Description,
			t.ReceiptID, formatTime(t.CreatedAt), string(t.Date.Key()))
		if err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		return addSpent(ctx, tx, t, 1)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"category_id", t.CategoryID,
		"amount", t.Amount,
		"currency", t.Currency,
		"date", t.Date.String())
	return nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t core.Transaction) error {
	if err := t.Validate(); err != nil {
		return core.Invalid(err)
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		old, err := scanTransaction(tx.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, t.ID, t.UserID))
		if errors.Is(err, sql.ErrNoRows) {
			return core.NotFound("transaction", t.ID)
		}
		if err != nil {
			return fmt.Errorf("get transaction: %w", err)
		}
		if err := requireCategory(ctx, tx, t.UserID, t.CategoryID); err != nil {
			return err
		}
		if err := addSpent(ctx, tx, old, -1); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE transactions SET category_id = ?, type = ?, amount = ?, currency = ?,
				original_amount = ?, original_currency = ?, date = ?, month = ?,
				description = ?, receipt_id = ?, sync_status = ?
			WHERE id = ? AND user_id = ?`,
			t.CategoryID, string(t.Type), t.Amount, t.Currency, t.OriginalAmount,
			t.OriginalCurrency, t.Date.Format(dateLayout), string(t.Date.Key()),
			t.Description, t.ReceiptID, SyncPending, t.ID, t.UserID)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}
		return addSpent(ctx, tx, t, 1)
	})
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, userID, id string) (core.Transaction, error) {
	var removed core.Transaction
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		removed, err = scanTransaction(tx.QueryRowContext(ctx,
			`SELECT `+transactionColumns+` FROM transactions WHERE id = ? AND user_id = ?`, id, userID))
		if errors.Is(err, sql.ErrNoRows) {
			return core.NotFound("transaction", id)
		}
		if err != nil {
			return fmt.Errorf("get transaction: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM receipts WHERE user_id = ? AND (transaction_id = ? OR (id = ? AND id != ''))`,
			userID, id, removed.ReceiptID); err != nil {
			return fmt.Errorf("delete receipt: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		return addSpent(ctx, tx, removed, -1)
	})
	if err != nil {
		return core.Transaction{}, err
	}
	return removed, nil
}

func (r *SQLiteRepository) CountTransactions(ctx context.Context, userID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transactions WHERE user_id = ?`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) SpentCounters(ctx context.Context, userID string, month core.MonthKey) (map[string]float64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category_id, amount FROM category_spent WHERE user_id = ? AND month = ?`,
		userID, string(month))
	if err != nil {
		return nil, fmt.Errorf("get spent counters: %w", err)
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var (
			id     string
			amount float64
		)
		if err := rows.Scan(&id, &amount); err != nil {
			return nil, fmt.Errorf("scan spent counter: %w", err)
		}
		if amount > 0 {
			out[id] = amount
		}
	}
	return out, rows.Err()
}

// checkCount runs guard against the count query inside tx. The pool holds a
// single connection, so no other write can land between count and insert.
func checkCount(ctx context.Context, tx *sql.Tx, guard ports.CountGuard, query string, args ...any) error {
	if guard == nil {
		return nil
	}
	var n int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return fmt.Errorf("count: %w", err)
	}
	return guard(n)
}

func requireCategory(ctx context.Context, tx *sql.Tx, userID, id string) error {
	var n int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE id = ? AND user_id = ?`, id, userID).Scan(&n); err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	if n == 0 {
		return core.NotFound("category", id)
	}
	return nil
}

// addSpent moves the (category, month) counter by sign*amount, floored at
// zero. Income transactions are ignored.
func addSpent(ctx context.Context, tx *sql.Tx, t core.Transaction, sign float64) error {
	if t.Type != core.Expense {
		return nil
	}
	key := []any{t.UserID, t.CategoryID, string(t.Date.Key())}
	res, err := tx.ExecContext(ctx, `
		UPDATE category_spent SET amount = MAX(0, amount + ?)
		WHERE user_id = ? AND category_id = ? AND month = ?`,
		append([]any{sign * t.Amount}, key...)...)
	if err != nil {
		return fmt.Errorf("update spent counter: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 || sign < 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO category_spent (user_id, category_id, month, amount) VALUES (?, ?, ?, ?)`,
		append(key, t.Amount)...); err != nil {
		return fmt.Errorf("insert spent counter: %w", err)
	}
	return nil
}

// Income

func (r *SQLiteRepository) GetIncomePlan(ctx context.Context, userID string) (core.IncomePlan, error) {
	p := core.IncomePlan{UserID: userID}
	var since string
	err := r.db.QueryRowContext(ctx,
		`SELECT default_income, since FROM income_plans WHERE user_id = ?`, userID).Scan(&p.Default, &since)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return core.IncomePlan{}, fmt.Errorf("get income plan: %w", err)
	}
	p.Since = core.MonthKey(since)

	rows, err := r.db.QueryContext(ctx,
		`SELECT month, amount FROM monthly_incomes WHERE user_id = ?`, userID)
	if err != nil {
		return core.IncomePlan{}, fmt.Errorf("get monthly incomes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			month  string
			amount float64
		)
		if err := rows.Scan(&month, &amount); err != nil {
			return core.IncomePlan{}, fmt.Errorf("scan monthly income: %w", err)
		}
		if p.Monthly == nil {
			p.Monthly = make(map[core.MonthKey]float64)
		}
		p.Monthly[core.MonthKey(month)] = amount
	}
	return p, rows.Err()
}

func (r *SQLiteRepository) SaveIncomePlan(ctx context.Context, p core.IncomePlan) error {
	if p.UserID == "" {
		return core.Invalid(core.ErrEmptyUser)
	}
	if err := p.Validate(); err != nil {
		return core.Invalid(err)
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		return writeIncomePlan(ctx, tx, p)
	})
}

func writeIncomePlan(ctx context.Context, tx *sql.Tx, p core.IncomePlan) error {
	since := p.Since
	if !since.Valid() {
		since = ""
		for m := range p.Monthly {
			if since == "" || m.Before(since) {
				since = m
			}
		}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO income_plans (user_id, default_income, since) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET default_income = excluded.default_income, since = excluded.since`,
		p.UserID, p.Default, string(since))
	if err != nil {
		return fmt.Errorf("save income plan: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM monthly_incomes WHERE user_id = ?`, p.UserID); err != nil {
		return fmt.Errorf("clear monthly incomes: %w", err)
	}
	for m, amount := range p.Monthly {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO monthly_incomes (user_id, month, amount) VALUES (?, ?, ?)`,
			p.UserID, string(m), amount); err != nil {
			return fmt.Errorf("save monthly income %s: %w", m, err)
		}
	}
	return nil
}

// SaveMonthBudgets upserts the month's category overrides and the income
// plan in one SQL transaction.
func (r *SQLiteRepository) SaveMonthBudgets(ctx context.Context, userID string, month core.MonthKey, overrides map[string]float64, plan core.IncomePlan) error {
	if !month.Valid() {
		return core.Invalid(core.ErrInvalidMonthKey)
	}
	if plan.UserID == "" {
		plan.UserID = userID
	}
	if err := plan.Validate(); err != nil {
		return core.Invalid(err)
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		for id, amount := range overrides {
			if amount < 0 {
				return core.Invalid(core.ErrInvalidBudget)
			}
			if err := requireCategory(ctx, tx, userID, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO category_budgets (category_id, month, amount) VALUES (?, ?, ?)
				ON CONFLICT(category_id, month) DO UPDATE SET amount = excluded.amount`,
				id, string(month), amount); err != nil {
				return fmt.Errorf("save category budget %s: %w", id, err)
			}
		}
		return writeIncomePlan(ctx, tx, plan)
	})
}

// Receipts

const receiptColumns = `id, user_id, transaction_id, uri, merchant_name, total, created_at`

func scanReceipt(row interface{ Scan(...any) error }) (core.Receipt, error) {
	var (
		rc      core.Receipt
		created string
	)
	if err := row.Scan(&rc.ID, &rc.UserID, &rc.TransactionID, &rc.URI, &rc.MerchantName, &rc.Total, &created); err != nil {
		return core.Receipt{}, err
	}
	rc.CreatedAt = parseTime(created)
	return rc, nil
}

func (r *SQLiteRepository) ListReceipts(ctx context.Context, userID string) ([]core.Receipt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+receiptColumns+` FROM receipts WHERE user_id = ? ORDER BY created_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()
	var out []core.Receipt
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) GetReceipt(ctx context.Context, userID, id string) (core.Receipt, error) {
	rc, err := scanReceipt(r.db.QueryRowContext(ctx,
		`SELECT `+receiptColumns+` FROM receipts WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Receipt{}, core.NotFound("receipt", id)
	}
	if err != nil {
		return core.Receipt{}, fmt.Errorf("get receipt: %w", err)
	}
	return rc, nil
}

func (r *SQLiteRepository) CreateReceipt(ctx context.Context, rc core.Receipt) error {
	if err := rc.Validate(); err != nil {
		return core.Invalid(err)
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if rc.TransactionID != "" {
			res, err := tx.ExecContext(ctx,
				`UPDATE transactions SET receipt_id = ? WHERE id = ? AND user_id = ?`,
				rc.ID, rc.TransactionID, rc.UserID)
			if err != nil {
				return fmt.Errorf("link receipt: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return core.NotFound("transaction", rc.TransactionID)
			}
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO receipts (`+receiptColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rc.ID, rc.UserID, rc.TransactionID, rc.URI, rc.MerchantName, rc.Total, formatTime(rc.CreatedAt))
		if err != nil {
			return fmt.Errorf("create receipt: %w", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) DeleteReceipt(ctx context.Context, userID, id string) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM receipts WHERE id = ? AND user_id = ?`, id, userID)
		if err != nil {
			return fmt.Errorf("delete receipt: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return core.NotFound("receipt", id)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE transactions SET receipt_id = '' WHERE user_id = ? AND receipt_id = ?`, userID, id); err != nil {
			return fmt.Errorf("unlink receipt: %w", err)
		}
		return nil
	})
}

// Ledger sync tracking

// PendingSync returns transactions not yet mirrored to the ledger. Pending
// rows come before rows whose export already failed, oldest first within
// each group, so a run of failing rows cannot starve fresh ones.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]core.Transaction, error) {
	return queryTransactions(ctx, r.db, `
		WHERE sync_status != ?
		ORDER BY CASE sync_status WHEN ? THEN 1 ELSE 0 END, created_at, rowid
		LIMIT ?`, SyncSynced, SyncError, limit)
}

// FindTransaction loads a transaction by id regardless of owner. The ledger
// worker only receives ids.
func (r *SQLiteRepository) FindTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("find transaction: %w", err)
	}
	return t, nil
}

// MarkSynced records the ledger row a transaction was written to.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id, ref string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ?, ledger_ref = ? WHERE id = ?`, SyncSynced, ref, id); err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id, "ledger_ref", ref)
	return nil
}

// MarkSyncError flags a transaction whose export failed.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET sync_status = ? WHERE id = ?`, SyncError, id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

// SyncStatus returns the sync state and ledger reference of a transaction.
func (r *SQLiteRepository) SyncStatus(ctx context.Context, id string) (status, ref string, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT sync_status, ledger_ref FROM transactions WHERE id = ?`, id).Scan(&status, &ref)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", core.NotFound("transaction", id)
	}
	return status, ref, err
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
