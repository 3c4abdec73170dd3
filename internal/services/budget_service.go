package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"budgetly/internal/budget"
	"budgetly/internal/cache"
	"budgetly/internal/core"
	"budgetly/internal/log"
	"budgetly/internal/policy"
	"budgetly/internal/ports"
)

// RateProvider supplies the currency table used for conversions. The bool
// reports a degraded (fallback) table for Rates and a fresh one for Table.
type RateProvider interface {
	Rates(ctx context.Context) (budget.Rates, bool)
	Table(ctx context.Context) ([]core.Currency, bool)
}

// Caller identifies who is acting. Role comes from the authenticating
// proxy; an empty role falls back to the stored one.
type Caller struct {
	UserID string
	Role   core.Role
}

type Options struct {
	Limits           policy.Limits
	Events           ports.EventPublisher
	SummaryCacheSize int
	SummaryCacheTTL  time.Duration
	Logger           *log.Logger
	Now              func() time.Time
}

// BudgetService orchestrates budget operations across the repository, the
// rate table and the event bus.
type BudgetService struct {
	repo      ports.Repository
	rates     RateProvider
	events    ports.EventPublisher
	limits    policy.Limits
	summaries *cache.LRUCache[core.MonthSummary]
	logger    *log.Logger
	now       func() time.Time

	// generations counts writes per user. A summary is only cached when no
	// write landed while it was being computed.
	genMu       sync.Mutex
	generations map[string]uint64
}

func NewBudgetService(repo ports.Repository, rates RateProvider, opts Options) *BudgetService {
	if opts.SummaryCacheSize <= 0 {
		opts.SummaryCacheSize = 256
	}
	if opts.SummaryCacheTTL <= 0 {
		opts.SummaryCacheTTL = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BudgetService{
		repo:      repo,
		rates:     rates,
		events:    opts.Events,
		limits:    opts.Limits,
		summaries: cache.NewLRUCache[core.MonthSummary](opts.SummaryCacheSize, opts.SummaryCacheTTL),
		logger:    opts.Logger.WithComponent(log.ComponentBudget),
		now:       opts.Now,

		generations: make(map[string]uint64),
	}
}

// SummaryCache exposes the summary cache so it can be registered for
// periodic cleanup.
func (s *BudgetService) SummaryCache() *cache.LRUCache[core.MonthSummary] {
	return s.summaries
}

func (s *BudgetService) invalidate(userID string) {
	s.genMu.Lock()
	s.generations[userID]++
	s.genMu.Unlock()
	s.summaries.DeletePrefix(userID + "|")
}

func (s *BudgetService) generation(userID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[userID]
}

// cacheSummary stores summary unless a write for userID happened since gen
// was read.
func (s *BudgetService) cacheSummary(userID string, gen uint64, key string, summary core.MonthSummary) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	if s.generations[userID] != gen {
		return
	}
	s.summaries.Set(key, summary)
}

func summaryKey(userID string, month core.MonthKey, base string) string {
	return userID + "|" + string(month) + "|" + base
}

// user loads the caller's settings and applies the caller's role.
func (s *BudgetService) user(ctx context.Context, c Caller) (core.User, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return core.User{}, core.Invalid(core.ErrEmptyUser)
	}
	u, err := s.repo.GetUser(ctx, c.UserID)
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	if c.Role != "" {
		u.Role = c.Role
	}
	if u.BaseCurrency == "" {
		u.BaseCurrency = core.DefaultBaseCurrency
	}
	return u, nil
}

func (s *BudgetService) User(ctx context.Context, c Caller) (core.User, error) {
	return s.user(ctx, c)
}

// SaveSettings stores the caller's base currency. The role is not
// user-editable and is kept as stored.
func (s *BudgetService) SaveSettings(ctx context.Context, c Caller, baseCurrency string) (core.User, error) {
	code := strings.ToUpper(strings.TrimSpace(baseCurrency))
	if !core.ValidCurrencyCode(code) {
		return core.User{}, core.Invalid(core.ErrInvalidCurrency)
	}
	u, err := s.repo.GetUser(ctx, c.UserID)
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	u.ID = c.UserID
	u.BaseCurrency = code
	if err := s.repo.SaveUser(ctx, u); err != nil {
		return core.User{}, fmt.Errorf("save user: %w", err)
	}
	s.invalidate(c.UserID)
	return s.user(ctx, c)
}

// MonthSelection is the list of selectable months and the month to show.
type MonthSelection struct {
	Options []core.MonthKey `json:"options"`
	Active  core.MonthKey   `json:"active"`
}

// Months lists selectable months from anchor back to the first recorded
// income. An unreadable income plan lifts the lower bound.
func (s *BudgetService) Months(ctx context.Context, c Caller, anchor string, active core.MonthKey) (MonthSelection, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return MonthSelection{}, core.Invalid(core.ErrEmptyUser)
	}
	var earliest *core.MonthKey
	plan, err := s.repo.GetIncomePlan(ctx, c.UserID)
	if err != nil {
		s.logger.WarnContext(ctx, "Income plan unavailable, month list unbounded",
			log.NewFields().WithUser(c.UserID).WithError(err).ToSlice()...)
	} else {
		earliest = budget.EarliestIncomeMonth(plan)
	}
	options := budget.MonthOptions(anchor, earliest, s.now())
	return MonthSelection{
		Options: options,
		Active:  budget.ResolveActiveMonth(active, options),
	}, nil
}

func parseMonth(m core.MonthKey) (core.MonthKey, error) {
	key, err := core.ParseMonthKey(string(m))
	if err != nil {
		return "", core.Invalid(err)
	}
	return key, nil
}

// Summary resolves income and budgets for month and aggregates spend in the
// caller's base currency. Spend is always derived from the transaction list.
// When the income plan or the rate table cannot be loaded, defaults are used
// and the summary is marked degraded.
func (s *BudgetService) Summary(ctx context.Context, c Caller, month core.MonthKey) (core.MonthSummary, error) {
	month, err := parseMonth(month)
	if err != nil {
		return core.MonthSummary{}, err
	}
	u, err := s.user(ctx, c)
	if err != nil {
		return core.MonthSummary{}, err
	}
	key := summaryKey(u.ID, month, u.BaseCurrency)
	gen := s.generation(u.ID)
	if cached, ok := s.summaries.Get(key); ok {
		return cached, nil
	}

	var (
		categories []core.Category
		txs        []core.Transaction
		plan       core.IncomePlan
		planFailed bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		categories, err = s.repo.ListCategories(gctx, u.ID)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		txs, err = s.repo.ListTransactions(gctx, u.ID, month)
		if err != nil {
			return fmt.Errorf("list transactions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		p, err := s.repo.GetIncomePlan(gctx, u.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "Income plan unavailable, using zero default",
				log.NewFields().WithUser(u.ID).WithMonth(string(month)).WithError(err).ToSlice()...)
			plan = core.IncomePlan{UserID: u.ID}
			planFailed = true
			return nil
		}
		plan = p
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.MonthSummary{}, err
	}

	rates, ratesDegraded := s.rates.Rates(ctx)
	summary := budget.Summarize(budget.Input{
		Month:        month,
		Categories:   categories,
		Transactions: txs,
		Income:       plan,
		BaseCurrency: u.BaseCurrency,
		Rates:        rates,
	})
	summary.Degraded = planFailed || ratesDegraded
	if len(summary.Unconverted) > 0 {
		s.logger.WarnContext(ctx, "Transactions summed without conversion",
			append(log.NewFields().WithUser(u.ID).WithMonth(string(month)).WithOperation(log.OpSummary).ToSlice(),
				"count", len(summary.Unconverted))...)
	}
	if !summary.Degraded {
		s.cacheSummary(u.ID, gen, key, summary)
	}
	return summary, nil
}

func (s *BudgetService) ListCategories(ctx context.Context, c Caller) ([]core.Category, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return nil, core.Invalid(core.ErrEmptyUser)
	}
	return s.repo.ListCategories(ctx, c.UserID)
}

// CategoryInput creates a category. The budget becomes the default when
// IsDefault is set and an override for Month (current month when empty)
// otherwise.
type CategoryInput struct {
	Name      string        `json:"name"`
	Icon      string        `json:"icon,omitempty"`
	Color     string        `json:"color,omitempty"`
	Budget    float64       `json:"budget"`
	IsDefault bool          `json:"isDefault"`
	Month     core.MonthKey `json:"month,omitempty"`
}

func (s *BudgetService) CreateCategory(ctx context.Context, c Caller, in CategoryInput) (core.Category, error) {
	u, err := s.user(ctx, c)
	if err != nil {
		return core.Category{}, err
	}
	month := in.Month
	if month == "" {
		month = core.MonthKeyOf(s.now())
	}
	if month, err = parseMonth(month); err != nil {
		return core.Category{}, err
	}

	cat := budget.NewCategoryBudget(core.Category{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Name:      strings.TrimSpace(in.Name),
		Icon:      in.Icon,
		Color:     in.Color,
		CreatedAt: s.now().UTC(),
	}, in.Budget, in.IsDefault, month)
	if err := cat.Validate(); err != nil {
		return core.Category{}, core.Invalid(err)
	}
	guard := func(existing int) error { return s.limits.CheckCreateCategory(u, existing) }
	if err := s.repo.CreateCategory(ctx, cat, guard); err != nil {
		if core.IsKind(err, core.KindPolicy) {
			return core.Category{}, err
		}
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	s.invalidate(u.ID)
	s.logger.InfoContext(ctx, "Category created",
		log.NewFields().WithUser(u.ID).WithCategory(cat.ID).WithOperation(log.OpCreate).ToSlice()...)
	return cat, nil
}

// CategoryPatch updates the fields that are set.
type CategoryPatch struct {
	Name   *string  `json:"name,omitempty"`
	Icon   *string  `json:"icon,omitempty"`
	Color  *string  `json:"color,omitempty"`
	Budget *float64 `json:"budget,omitempty"`
}

func (s *BudgetService) UpdateCategory(ctx context.Context, c Caller, id string, p CategoryPatch) (core.Category, error) {
	return s.modifyCategory(ctx, c, id, func(cat *core.Category) {
		if p.Name != nil {
			cat.Name = strings.TrimSpace(*p.Name)
		}
		if p.Icon != nil {
			cat.Icon = *p.Icon
		}
		if p.Color != nil {
			cat.Color = *p.Color
		}
		if p.Budget != nil {
			cat.Budget = *p.Budget
		}
	})
}

// SetMonthBudget overrides the category budget for one month and returns
// the category as re-read after the write.
func (s *BudgetService) SetMonthBudget(ctx context.Context, c Caller, id string, month core.MonthKey, amount float64) (core.Category, error) {
	month, err := parseMonth(month)
	if err != nil {
		return core.Category{}, err
	}
	return s.modifyCategory(ctx, c, id, func(cat *core.Category) {
		if cat.MonthlyBudgets == nil {
			cat.MonthlyBudgets = make(map[core.MonthKey]float64)
		}
		cat.MonthlyBudgets[month] = amount
	})
}

// ClearMonthBudget drops the override so the month falls back to the
// default budget.
func (s *BudgetService) ClearMonthBudget(ctx context.Context, c Caller, id string, month core.MonthKey) (core.Category, error) {
	month, err := parseMonth(month)
	if err != nil {
		return core.Category{}, err
	}
	return s.modifyCategory(ctx, c, id, func(cat *core.Category) {
		delete(cat.MonthlyBudgets, month)
	})
}

func (s *BudgetService) modifyCategory(ctx context.Context, c Caller, id string, fn func(*core.Category)) (core.Category, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return core.Category{}, core.Invalid(core.ErrEmptyUser)
	}
	cat, err := s.repo.GetCategory(ctx, c.UserID, id)
	if err != nil {
		return core.Category{}, err
	}
	cat = cat.Clone()
	fn(&cat)
	if err := cat.Validate(); err != nil {
		return core.Category{}, core.Invalid(err)
	}
	if err := s.repo.UpdateCategory(ctx, cat); err != nil {
		return core.Category{}, fmt.Errorf("update category: %w", err)
	}
	s.invalidate(c.UserID)
	return s.repo.GetCategory(ctx, c.UserID, id)
}

// DeleteCategory removes the category with every transaction filed under it
// and returns how many transactions went with it.
func (s *BudgetService) DeleteCategory(ctx context.Context, c Caller, id string) (int, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return 0, core.Invalid(core.ErrEmptyUser)
	}
	removed, err := s.repo.DeleteCategory(ctx, c.UserID, id)
	if err != nil {
		return 0, err
	}
	s.invalidate(c.UserID)
	s.logger.InfoContext(ctx, "Category deleted",
		append(log.NewFields().WithUser(c.UserID).WithCategory(id).WithOperation(log.OpDelete).ToSlice(),
			"removed_transactions", len(removed))...)

	if s.events == nil {
		return len(removed), nil
	}
	for _, tx := range removed {
		if err := s.events.PublishTransactionDeleted(ctx, tx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish delete event",
				log.NewFields().WithTransaction(tx.ID, tx.CategoryID, tx.Amount, tx.Currency).WithError(err).ToSlice()...)
		}
	}
	if err := s.events.PublishCategoryDeleted(ctx, c.UserID, id, len(removed)); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish category event",
			log.NewFields().WithCategory(id).WithError(err).ToSlice()...)
	}
	return len(removed), nil
}

// GetMonthBudget returns the month's income and each category's effective
// budget.
func (s *BudgetService) GetMonthBudget(ctx context.Context, c Caller, month core.MonthKey) (core.MonthBudget, error) {
	month, err := parseMonth(month)
	if err != nil {
		return core.MonthBudget{}, err
	}
	if strings.TrimSpace(c.UserID) == "" {
		return core.MonthBudget{}, core.Invalid(core.ErrEmptyUser)
	}
	categories, err := s.repo.ListCategories(ctx, c.UserID)
	if err != nil {
		return core.MonthBudget{}, fmt.Errorf("list categories: %w", err)
	}
	plan, err := s.repo.GetIncomePlan(ctx, c.UserID)
	if err != nil {
		s.logger.WarnContext(ctx, "Income plan unavailable, using zero default",
			log.NewFields().WithUser(c.UserID).WithError(err).ToSlice()...)
		plan = core.IncomePlan{UserID: c.UserID}
	}
	return budget.MonthBudget(plan, categories, month), nil
}

// SetMonthBudgets stores the month's income and per-category overrides in
// one atomic write. An unknown category id fails the call with nothing
// written.
func (s *BudgetService) SetMonthBudgets(ctx context.Context, c Caller, mb core.MonthBudget) (core.MonthBudget, error) {
	month, err := parseMonth(mb.Month)
	if err != nil {
		return core.MonthBudget{}, err
	}
	if strings.TrimSpace(c.UserID) == "" {
		return core.MonthBudget{}, core.Invalid(core.ErrEmptyUser)
	}
	if mb.Income < 0 {
		return core.MonthBudget{}, core.Invalid(core.ErrInvalidAmount)
	}
	for _, amount := range mb.Categories {
		if amount < 0 {
			return core.MonthBudget{}, core.Invalid(core.ErrInvalidBudget)
		}
	}

	plan, err := s.repo.GetIncomePlan(ctx, c.UserID)
	if err != nil {
		return core.MonthBudget{}, fmt.Errorf("get income plan: %w", err)
	}
	plan = plan.Clone()
	plan.UserID = c.UserID
	setMonthIncome(&plan, month, mb.Income)
	if err := plan.Validate(); err != nil {
		return core.MonthBudget{}, core.Invalid(err)
	}

	if err := s.repo.SaveMonthBudgets(ctx, c.UserID, month, mb.Categories, plan); err != nil {
		if core.IsKind(err, core.KindNotFound) || core.IsKind(err, core.KindValidation) {
			return core.MonthBudget{}, err
		}
		return core.MonthBudget{}, fmt.Errorf("save month budgets: %w", err)
	}
	s.invalidate(c.UserID)
	return s.GetMonthBudget(ctx, c, month)
}

// TransactionInput carries what the user entered. Amount is in Currency;
// an empty Currency means the caller's base currency.
type TransactionInput struct {
	CategoryID  string               `json:"categoryId"`
	Type        core.TransactionType `json:"type"`
	Amount      float64              `json:"amount"`
	Currency    string               `json:"currency,omitempty"`
	Date        core.Date            `json:"date"`
	Description string               `json:"description,omitempty"`
}

// AddTransaction records a transaction converted into the caller's base
// currency.
func (s *BudgetService) AddTransaction(ctx context.Context, c Caller, in TransactionInput) (core.Transaction, error) {
	u, err := s.user(ctx, c)
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := s.buildTransaction(ctx, u, in)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.ID = uuid.NewString()
	tx.CreatedAt = s.now().UTC()
	guard := func(existing int) error { return s.limits.CheckCreateTransaction(u, existing) }
	if err := s.repo.CreateTransaction(ctx, tx, guard); err != nil {
		if core.IsKind(err, core.KindPolicy) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.invalidate(u.ID)
	log.NewStructuredLogger(s.logger).LogTransactionRecorded(ctx, u.ID, tx.ID, tx.CategoryID, tx.Amount, tx.Currency)

	if s.events != nil {
		if err := s.events.PublishTransactionCreated(ctx, tx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish create event",
				log.NewFields().WithTransaction(tx.ID, tx.CategoryID, tx.Amount, tx.Currency).WithError(err).ToSlice()...)
		}
	}
	return tx, nil
}

// UpdateTransaction replaces amount, category, date and description. The
// amount is converted again at the current rates.
func (s *BudgetService) UpdateTransaction(ctx context.Context, c Caller, id string, in TransactionInput) (core.Transaction, error) {
	u, err := s.user(ctx, c)
	if err != nil {
		return core.Transaction{}, err
	}
	current, err := s.repo.GetTransaction(ctx, u.ID, id)
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := s.buildTransaction(ctx, u, in)
	if err != nil {
		return core.Transaction{}, err
	}
	tx.ID = current.ID
	tx.ReceiptID = current.ReceiptID
	tx.CreatedAt = current.CreatedAt
	if err := s.repo.UpdateTransaction(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	s.invalidate(u.ID)
	return s.repo.GetTransaction(ctx, u.ID, id)
}

func (s *BudgetService) buildTransaction(ctx context.Context, u core.User, in TransactionInput) (core.Transaction, error) {
	if in.Type == "" {
		in.Type = core.Expense
	}
	tx := core.Transaction{
		UserID:      u.ID,
		CategoryID:  strings.TrimSpace(in.CategoryID),
		Type:        in.Type,
		Amount:      in.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(in.Currency)),
		Date:        in.Date,
		Description: strings.TrimSpace(in.Description),
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, core.Invalid(err)
	}
	if _, err := s.repo.GetCategory(ctx, u.ID, tx.CategoryID); err != nil {
		return core.Transaction{}, err
	}
	return s.convert(ctx, u, tx), nil
}

// convert expresses tx in the user's base currency and keeps the entered
// values. Without a rate the entered amount and currency are kept as is.
func (s *BudgetService) convert(ctx context.Context, u core.User, tx core.Transaction) core.Transaction {
	if tx.Currency == "" || tx.Currency == u.BaseCurrency {
		tx.Currency = u.BaseCurrency
		return tx
	}
	rates, _ := s.rates.Rates(ctx)
	converted, ok := rates.Convert(tx.Amount, tx.Currency, u.BaseCurrency)
	if !ok {
		s.logger.WarnContext(ctx, "No rate for currency, amount stored unconverted",
			"user_id", u.ID, "currency", tx.Currency, "base", u.BaseCurrency)
		return tx
	}
	tx.OriginalAmount = tx.Amount
	tx.OriginalCurrency = tx.Currency
	tx.Amount = core.RoundCents(converted)
	tx.Currency = u.BaseCurrency
	return tx
}

func (s *BudgetService) DeleteTransaction(ctx context.Context, c Caller, id string) error {
	if strings.TrimSpace(c.UserID) == "" {
		return core.Invalid(core.ErrEmptyUser)
	}
	removed, err := s.repo.DeleteTransaction(ctx, c.UserID, id)
	if err != nil {
		return err
	}
	s.invalidate(c.UserID)
	if s.events != nil {
		if err := s.events.PublishTransactionDeleted(ctx, removed); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish delete event",
				log.NewFields().WithTransaction(removed.ID, removed.CategoryID, removed.Amount, removed.Currency).WithError(err).ToSlice()...)
		}
	}
	return nil
}

// ListTransactions returns the caller's transactions of month, or all of
// them when month is empty.
func (s *BudgetService) ListTransactions(ctx context.Context, c Caller, month core.MonthKey) ([]core.Transaction, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return nil, core.Invalid(core.ErrEmptyUser)
	}
	if month != "" {
		var err error
		if month, err = parseMonth(month); err != nil {
			return nil, err
		}
	}
	return s.repo.ListTransactions(ctx, c.UserID, month)
}

func (s *BudgetService) GetIncome(ctx context.Context, c Caller) (core.IncomePlan, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return core.IncomePlan{}, core.Invalid(core.ErrEmptyUser)
	}
	return s.repo.GetIncomePlan(ctx, c.UserID)
}

// SetDefaultIncome stores the income used by months without their own
// record and returns the plan as re-read after the write.
func (s *BudgetService) SetDefaultIncome(ctx context.Context, c Caller, amount float64) (core.IncomePlan, error) {
	return s.modifyIncome(ctx, c, func(p *core.IncomePlan) {
		p.Default = amount
		if p.Since == "" && amount > 0 {
			p.Since = core.MonthKeyOf(s.now())
		}
	})
}

// SetMonthIncome records the income of one month.
func (s *BudgetService) SetMonthIncome(ctx context.Context, c Caller, month core.MonthKey, amount float64) (core.IncomePlan, error) {
	month, err := parseMonth(month)
	if err != nil {
		return core.IncomePlan{}, err
	}
	return s.modifyIncome(ctx, c, func(p *core.IncomePlan) {
		setMonthIncome(p, month, amount)
	})
}

func setMonthIncome(p *core.IncomePlan, month core.MonthKey, amount float64) {
	if p.Monthly == nil {
		p.Monthly = make(map[core.MonthKey]float64)
	}
	p.Monthly[month] = amount
	if p.Since == "" || month.Before(p.Since) {
		p.Since = month
	}
}

func (s *BudgetService) modifyIncome(ctx context.Context, c Caller, fn func(*core.IncomePlan)) (core.IncomePlan, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return core.IncomePlan{}, core.Invalid(core.ErrEmptyUser)
	}
	plan, err := s.repo.GetIncomePlan(ctx, c.UserID)
	if err != nil {
		return core.IncomePlan{}, fmt.Errorf("get income plan: %w", err)
	}
	plan = plan.Clone()
	plan.UserID = c.UserID
	fn(&plan)
	if err := plan.Validate(); err != nil {
		return core.IncomePlan{}, core.Invalid(err)
	}
	if err := s.repo.SaveIncomePlan(ctx, plan); err != nil {
		return core.IncomePlan{}, fmt.Errorf("save income plan: %w", err)
	}
	s.invalidate(c.UserID)
	return s.repo.GetIncomePlan(ctx, c.UserID)
}

func (s *BudgetService) ListReceipts(ctx context.Context, c Caller) ([]core.Receipt, error) {
	if strings.TrimSpace(c.UserID) == "" {
		return nil, core.Invalid(core.ErrEmptyUser)
	}
	return s.repo.ListReceipts(ctx, c.UserID)
}

type ReceiptInput struct {
	TransactionID string  `json:"transactionId,omitempty"`
	URI           string  `json:"uri"`
	MerchantName  string  `json:"merchantName,omitempty"`
	Total         float64 `json:"total,omitempty"`
}

func (s *BudgetService) AddReceipt(ctx context.Context, c Caller, in ReceiptInput) (core.Receipt, error) {
	r := core.Receipt{
		ID:            uuid.NewString(),
		UserID:        c.UserID,
		TransactionID: strings.TrimSpace(in.TransactionID),
		URI:           strings.TrimSpace(in.URI),
		MerchantName:  strings.TrimSpace(in.MerchantName),
		Total:         in.Total,
		CreatedAt:     s.now().UTC(),
	}
	if err := r.Validate(); err != nil {
		return core.Receipt{}, core.Invalid(err)
	}
	if err := s.repo.CreateReceipt(ctx, r); err != nil {
		return core.Receipt{}, fmt.Errorf("create receipt: %w", err)
	}
	return r, nil
}

func (s *BudgetService) DeleteReceipt(ctx context.Context, c Caller, id string) error {
	if strings.TrimSpace(c.UserID) == "" {
		return core.Invalid(core.ErrEmptyUser)
	}
	return s.repo.DeleteReceipt(ctx, c.UserID, id)
}

// Currencies returns the rate table and whether it is fresh.
func (s *BudgetService) Currencies(ctx context.Context) ([]core.Currency, bool) {
	return s.rates.Table(ctx)
}

// Conversion is the result of Convert. Converted is false when a rate was
// missing and Amount is the input amount.
type Conversion struct {
	Amount    float64 `json:"amount"`
	From      string  `json:"from"`
	To        string  `json:"to"`
	Converted bool    `json:"converted"`
}

func (s *BudgetService) Convert(ctx context.Context, amount float64, from, to string) (Conversion, error) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if !core.ValidCurrencyCode(from) || !core.ValidCurrencyCode(to) {
		return Conversion{}, core.Invalid(core.ErrInvalidCurrency)
	}
	rates, _ := s.rates.Rates(ctx)
	out, ok := rates.Convert(amount, from, to)
	return Conversion{Amount: out, From: from, To: to, Converted: ok}, nil
}

// SpentDrift is a category whose cached spent counter disagrees with a
// fresh aggregation of its transactions.
type SpentDrift struct {
	CategoryID string  `json:"categoryId"`
	Cached     float64 `json:"cached"`
	Computed   float64 `json:"computed"`
}

const driftTolerance = 0.005

// VerifySpent compares the cached counters of month with the aggregation
// of the stored transactions.
func (s *BudgetService) VerifySpent(ctx context.Context, c Caller, month core.MonthKey) ([]SpentDrift, error) {
	month, err := parseMonth(month)
	if err != nil {
		return nil, err
	}
	cached, err := s.repo.SpentCounters(ctx, c.UserID, month)
	if err != nil {
		return nil, fmt.Errorf("spent counters: %w", err)
	}
	txs, err := s.repo.ListTransactions(ctx, c.UserID, month)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	computed, _ := budget.SpentByCategory(txs, month, "", nil)

	ids := make(map[string]struct{}, len(cached)+len(computed))
	for id := range cached {
		ids[id] = struct{}{}
	}
	for id := range computed {
		ids[id] = struct{}{}
	}
	var drift []SpentDrift
	for id := range ids {
		d := cached[id] - computed[id]
		if d > driftTolerance || d < -driftTolerance {
			drift = append(drift, SpentDrift{CategoryID: id, Cached: cached[id], Computed: computed[id]})
		}
	}
	if len(drift) > 0 {
		s.logger.WarnContext(ctx, "Spent counters drifted",
			log.NewFields().WithUser(c.UserID).WithMonth(string(month)).WithOperation(log.OpVerify).ToSlice()...)
	}
	sort.Slice(drift, func(i, j int) bool { return drift[i].CategoryID < drift[j].CategoryID })
	return drift, nil
}
