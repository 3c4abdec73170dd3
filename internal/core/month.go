package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// MonthKey identifies a calendar month as "YYYY-MM". Keys are always zero
// padded, so lexical order equals calendar order.
type MonthKey string

// ParseMonthKey validates s as a zero padded YYYY-MM key with a month in 01..12.
func ParseMonthKey(s string) (MonthKey, error) {
	if len(s) != 7 || s[4] != '-' {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonthKey, s)
	}
	for i, r := range s {
		if i == 4 {
			continue
		}
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidMonthKey, s)
		}
	}
	month := int(s[5]-'0')*10 + int(s[6]-'0')
	if month < 1 || month > 12 {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonthKey, s)
	}
	return MonthKey(s), nil
}

// NewMonthKey builds a key from a year and a 1-based month.
func NewMonthKey(year, month int) MonthKey {
	return MonthKeyOf(time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC))
}

// MonthKeyOf returns the key of the month containing t.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey(fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month())))
}

// Valid reports whether k is a well formed key.
func (k MonthKey) Valid() bool {
	_, err := ParseMonthKey(string(k))
	return err == nil
}

// Year returns the year part. It returns 0 for malformed keys.
func (k MonthKey) Year() int {
	t, ok := k.start()
	if !ok {
		return 0
	}
	return t.Year()
}

// Month returns the 1-based month part. It returns 0 for malformed keys.
func (k MonthKey) Month() int {
	t, ok := k.start()
	if !ok {
		return 0
	}
	return int(t.Month())
}

// Prev returns the previous calendar month. It returns the empty key for
// malformed keys and for 0000-01, which has no four digit predecessor.
func (k MonthKey) Prev() MonthKey {
	return k.shift(-1)
}

// Next returns the following calendar month, or the empty key after 9999-12.
func (k MonthKey) Next() MonthKey {
	return k.shift(1)
}

func (k MonthKey) shift(months int) MonthKey {
	t, ok := k.start()
	if !ok {
		return ""
	}
	t = t.AddDate(0, months, 0)
	if t.Year() < 0 || t.Year() > 9999 {
		return ""
	}
	return MonthKeyOf(t)
}

// Before reports whether k is strictly earlier than other.
func (k MonthKey) Before(other MonthKey) bool {
	return k < other
}

// Contains reports whether d falls into month k. The comparison uses the
// parsed year and month of d, never a string prefix.
func (k MonthKey) Contains(d Date) bool {
	if d.IsZero() {
		return false
	}
	t, ok := k.start()
	if !ok {
		return false
	}
	return d.Year() == t.Year() && d.Month() == int(t.Month())
}

// Bounds returns the first day of the month and the first day of the next one.
func (k MonthKey) Bounds() (Date, Date) {
	t, ok := k.start()
	if !ok {
		return Date{}, Date{}
	}
	return Date{Time: t}, Date{Time: t.AddDate(0, 1, 0)}
}

func (k MonthKey) String() string {
	return string(k)
}

func (k MonthKey) start() (time.Time, bool) {
	t, err := time.Parse("2006-01", string(k))
	if err != nil || !k.wellFormed() {
		return time.Time{}, false
	}
	return t, true
}

func (k MonthKey) wellFormed() bool {
	return len(k) == 7 && k[4] == '-'
}

// UnmarshalJSON accepts only well formed keys.
func (k *MonthKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseMonthKey(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
