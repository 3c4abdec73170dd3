package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetly/internal/core"
)

func TestGuestCategoryLimit(t *testing.T) {
	l := DefaultLimits()
	guest := core.User{ID: "g", Role: core.RoleGuest}

	assert.NoError(t, l.CheckCreateCategory(guest, l.GuestCategories-1))

	err := l.CheckCreateCategory(guest, l.GuestCategories)
	require.Error(t, err)
	assert.Equal(t, core.CodeGuestLimitReached, core.CodeOf(err))
	assert.Equal(t, core.KindPolicy, core.KindOf(err))
	assert.Contains(t, err.Error(), "up to 5 categories")
}

func TestGuestTransactionLimit(t *testing.T) {
	l := DefaultLimits()
	guest := core.User{ID: "g", Role: core.RoleGuest}

	assert.NoError(t, l.CheckCreateTransaction(guest, 19))
	assert.Error(t, l.CheckCreateTransaction(guest, 20))
	assert.Error(t, l.CheckCreateTransaction(guest, 35))
}

func TestNonGuestsAreNotCapped(t *testing.T) {
	l := DefaultLimits()
	for _, role := range []core.Role{core.RoleMember, core.RolePremium, ""} {
		u := core.User{ID: "u", Role: role}
		assert.NoError(t, l.CheckCreateCategory(u, 1000), role)
		assert.NoError(t, l.CheckCreateTransaction(u, 1000), role)
	}
}

func TestDisabledCap(t *testing.T) {
	l := Limits{}
	assert.NoError(t, l.CheckCreateCategory(core.User{Role: core.RoleGuest}, 99))
}
