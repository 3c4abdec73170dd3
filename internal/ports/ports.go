package ports

import (
	"context"

	"budgetly/internal/core"
)

// CountGuard vets a create against how many entities of the kind the user
// already owns. Repositories call it inside the same atomic write as the
// insert, so concurrent creates cannot both pass it.
type CountGuard func(existing int) error

// Ports for the persistence collaborator and outbound adapters.
type (
	UserRepository interface {
		// GetUser returns the stored settings for id, or a member with the
		// default base currency when none were saved.
		GetUser(ctx context.Context, id string) (core.User, error)
		SaveUser(ctx context.Context, u core.User) error
	}

	CategoryRepository interface {
		ListCategories(ctx context.Context, userID string) ([]core.Category, error)
		GetCategory(ctx context.Context, userID, id string) (core.Category, error)
		// CreateCategory stores c. A non-nil guard sees the user's current
		// category count and aborts the insert by returning an error.
		CreateCategory(ctx context.Context, c core.Category, guard CountGuard) error
		UpdateCategory(ctx context.Context, c core.Category) error
		// DeleteCategory removes the category together with every
		// transaction and receipt referencing it, atomically. It returns
		// the removed transactions.
		DeleteCategory(ctx context.Context, userID, id string) ([]core.Transaction, error)
		CountCategories(ctx context.Context, userID string) (int, error)
	}

	TransactionRepository interface {
		// ListTransactions returns the user's transactions dated in month,
		// or all of them when month is empty, oldest first.
		ListTransactions(ctx context.Context, userID string, month core.MonthKey) ([]core.Transaction, error)
		GetTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
		// CreateTransaction stores tx and adds its amount to the cached
		// spent counter of its category and month. guard works as for
		// CreateCategory with the user's transaction count.
		CreateTransaction(ctx context.Context, tx core.Transaction, guard CountGuard) error
		UpdateTransaction(ctx context.Context, tx core.Transaction) error
		// DeleteTransaction removes tx and its receipt and takes its amount
		// back off the spent counter, floored at zero.
		DeleteTransaction(ctx context.Context, userID, id string) (core.Transaction, error)
		CountTransactions(ctx context.Context, userID string) (int, error)
		// SpentCounters returns the cached spent counter per category for
		// month.
		SpentCounters(ctx context.Context, userID string, month core.MonthKey) (map[string]float64, error)
	}

	IncomeRepository interface {
		GetIncomePlan(ctx context.Context, userID string) (core.IncomePlan, error)
		SaveIncomePlan(ctx context.Context, p core.IncomePlan) error
	}

	MonthBudgetRepository interface {
		// SaveMonthBudgets sets the month's override for each category in
		// overrides and replaces the user's income plan in one atomic
		// write. An unknown category fails the call with nothing written.
		SaveMonthBudgets(ctx context.Context, userID string, month core.MonthKey, overrides map[string]float64, plan core.IncomePlan) error
	}

	ReceiptRepository interface {
		ListReceipts(ctx context.Context, userID string) ([]core.Receipt, error)
		GetReceipt(ctx context.Context, userID, id string) (core.Receipt, error)
		CreateReceipt(ctx context.Context, r core.Receipt) error
		DeleteReceipt(ctx context.Context, userID, id string) error
	}

	// Repository is everything a backend has to provide.
	Repository interface {
		UserRepository
		CategoryRepository
		TransactionRepository
		IncomeRepository
		MonthBudgetRepository
		ReceiptRepository
	}

	// RateSource supplies the currency table. Rates are units per 1 USD.
	RateSource interface {
		Currencies(ctx context.Context) ([]core.Currency, error)
	}

	// EventPublisher announces ledger changes to asynchronous consumers.
	EventPublisher interface {
		PublishTransactionCreated(ctx context.Context, tx core.Transaction) error
		PublishTransactionDeleted(ctx context.Context, tx core.Transaction) error
		PublishCategoryDeleted(ctx context.Context, userID, categoryID string, removed int) error
	}

	// LedgerExporter mirrors transactions into an external ledger.
	LedgerExporter interface {
		AppendTransaction(ctx context.Context, tx core.Transaction, categoryName string) (rowRef string, err error)
		// ReplaceTransaction overwrites the row previously written at rowRef
		// and returns where tx lives afterwards.
		ReplaceTransaction(ctx context.Context, rowRef string, tx core.Transaction, categoryName string) (string, error)
		DeleteTransaction(ctx context.Context, transactionID string) error
	}
)
