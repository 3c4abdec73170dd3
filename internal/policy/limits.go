// Package policy gates mutating operations by user tier.
package policy

import (
	"fmt"

	"budgetly/internal/core"
)

const (
	DefaultGuestCategories   = 5
	DefaultGuestTransactions = 20
)

// Limits caps how many entities a guest may own. A zero or negative value
// disables that cap.
type Limits struct {
	GuestCategories   int
	GuestTransactions int
}

// DefaultLimits returns the demo tier caps.
func DefaultLimits() Limits {
	return Limits{
		GuestCategories:   DefaultGuestCategories,
		GuestTransactions: DefaultGuestTransactions,
	}
}

// CheckCreateCategory rejects a category creation when a guest already owns
// existing categories at or above the cap. It never mutates anything.
func (l Limits) CheckCreateCategory(u core.User, existing int) error {
	return check(u, existing, l.GuestCategories, "categories")
}

// CheckCreateTransaction is CheckCreateCategory for transactions.
func (l Limits) CheckCreateTransaction(u core.User, existing int) error {
	return check(u, existing, l.GuestTransactions, "transactions")
}

func check(u core.User, existing, limit int, entity string) error {
	if !u.Guest() || limit <= 0 || existing < limit {
		return nil
	}
	return &core.Error{
		Kind:    core.KindPolicy,
		Code:    core.CodeGuestLimitReached,
		Message: fmt.Sprintf("Guest accounts can create up to %d %s. Upgrade to add more.", limit, entity),
		Details: map[string]interface{}{
			"entity":   entity,
			"limit":    limit,
			"existing": existing,
		},
	}
}
