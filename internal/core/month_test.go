package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonthKey(t *testing.T) {
	valid := []string{"2025-01", "2025-12", "1999-07"}
	for _, s := range valid {
		k, err := ParseMonthKey(s)
		require.NoError(t, err, s)
		assert.Equal(t, MonthKey(s), k)
	}

	invalid := []string{"", "2025-1", "2025-00", "2025-13", "25-01", "2025/01", "2025-1a", "2025-012"}
	for _, s := range invalid {
		_, err := ParseMonthKey(s)
		assert.ErrorIs(t, err, ErrInvalidMonthKey, s)
	}
}

func TestMonthKeyNavigation(t *testing.T) {
	assert.Equal(t, MonthKey("2024-12"), MonthKey("2025-01").Prev())
	assert.Equal(t, MonthKey("2025-01"), MonthKey("2024-12").Next())
	assert.Equal(t, MonthKey("2025-03"), NewMonthKey(2025, 3))
	assert.Equal(t, MonthKey("2025-05"), MonthKeyOf(time.Date(2025, 5, 31, 23, 0, 0, 0, time.UTC)))
	assert.Equal(t, 2025, MonthKey("2025-05").Year())
	assert.Equal(t, 5, MonthKey("2025-05").Month())
	assert.Equal(t, 0, MonthKey("bogus").Month())
}

func TestMonthKeyNavigationStopsAtRange(t *testing.T) {
	assert.Equal(t, MonthKey("0000-01"), MonthKey("0000-02").Prev())
	assert.Equal(t, MonthKey(""), MonthKey("0000-01").Prev())
	assert.Equal(t, MonthKey(""), MonthKey("9999-12").Next())
	assert.Equal(t, MonthKey(""), MonthKey("bogus").Prev())
	assert.Equal(t, MonthKey(""), MonthKey("bogus").Next())
}

func TestMonthKeyOrderingIsCalendarOrder(t *testing.T) {
	k := MonthKey("2023-11")
	for i := 0; i < 30; i++ {
		next := k.Next()
		assert.True(t, k.Before(next), "%s < %s", k, next)
		k = next
	}
}

func TestMonthKeyContains(t *testing.T) {
	m := MonthKey("2025-05")
	assert.True(t, m.Contains(NewDate(2025, 5, 1)))
	assert.True(t, m.Contains(NewDate(2025, 5, 31)))
	assert.False(t, m.Contains(NewDate(2025, 6, 1)))
	assert.False(t, m.Contains(NewDate(2024, 5, 10)))
	assert.False(t, m.Contains(Date{}))

	start, end := m.Bounds()
	assert.Equal(t, "2025-05-01", start.String())
	assert.Equal(t, "2025-06-01", end.String())
}
