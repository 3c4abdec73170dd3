package core

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"

	RoleGuest   Role = "guest"
	RoleMember  Role = "member"
	RolePremium Role = "premium"

	// DefaultBaseCurrency is used when a user never picked one.
	DefaultBaseCurrency = "USD"
)

type (
	TransactionType string

	Role string

	// Date is a calendar day in UTC.
	Date struct {
		time.Time
	}

	// Category groups transactions and carries a default budget plus
	// optional per-month overrides.
	Category struct {
		ID             string               `json:"id"`
		UserID         string               `json:"userId"`
		Name           string               `json:"name"`
		Icon           string               `json:"icon,omitempty"`
		Color          string               `json:"color,omitempty"`
		Budget         float64              `json:"budget"`
		MonthlyBudgets map[MonthKey]float64 `json:"monthlyBudgets,omitempty"`
		CreatedAt      time.Time            `json:"createdAt"`
	}

	// Transaction is a single expense or income entry. Amount is expressed
	// in Currency, which is the user's base currency at recording time.
	// OriginalAmount and OriginalCurrency keep the entered values when a
	// conversion happened.
	Transaction struct {
		ID               string          `json:"id"`
		UserID           string          `json:"userId"`
		CategoryID       string          `json:"categoryId"`
		Type             TransactionType `json:"type"`
		Amount           float64         `json:"amount"`
		Currency         string          `json:"currency"`
		OriginalAmount   float64         `json:"originalAmount,omitempty"`
		OriginalCurrency string          `json:"originalCurrency,omitempty"`
		Date             Date            `json:"date"`
		Description      string          `json:"description,omitempty"`
		ReceiptID        string          `json:"receiptId,omitempty"`
		CreatedAt        time.Time       `json:"createdAt"`
	}

	// IncomePlan resolves income per month the same way a category resolves
	// its budget: an explicit month entry wins over Default.
	IncomePlan struct {
		UserID  string               `json:"userId"`
		Default float64              `json:"defaultIncome"`
		Monthly map[MonthKey]float64 `json:"monthlyIncomes,omitempty"`
		// Since is the month of the first income ever recorded; empty when
		// none was.
		Since MonthKey `json:"since,omitempty"`
	}

	Currency struct {
		Code   string  `json:"code"`
		Name   string  `json:"name"`
		Symbol string  `json:"symbol"`
		Rate   float64 `json:"rate"` // units per 1 USD
	}

	// Receipt references a captured receipt image. Recognition happens
	// elsewhere; only the reference and the extracted facts are kept.
	Receipt struct {
		ID            string    `json:"id"`
		UserID        string    `json:"userId"`
		TransactionID string    `json:"transactionId,omitempty"`
		URI           string    `json:"uri"`
		MerchantName  string    `json:"merchantName,omitempty"`
		Total         float64   `json:"total,omitempty"`
		CreatedAt     time.Time `json:"createdAt"`
	}

	User struct {
		ID           string `json:"id"`
		Role         Role   `json:"role"`
		BaseCurrency string `json:"baseCurrency"`
	}
)

var (
	ErrInvalidDay         = errors.New("invalid day")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidMonthKey    = errors.New("invalid month key")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidBudget      = errors.New("budget cannot be negative")
	ErrEmptyName          = errors.New("empty name")
	ErrEmptyCategory      = errors.New("empty category")
	ErrEmptyUser          = errors.New("empty user")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidCurrency    = errors.New("invalid currency code")
	ErrEmptyReceiptURI    = errors.New("empty receipt uri")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts "2006-01-02" or a full RFC 3339 timestamp; the time of
// day is dropped.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, ErrInvalidDay
	}
	return NewDate(t.Year(), int(t.Month()), t.Day()), nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Month returns the 1-based month
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Key returns the month the date belongs to.
func (d Date) Key() MonthKey {
	return MonthKeyOf(d.Time)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format("2006-01-02")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (t TransactionType) Valid() bool {
	return t == Expense || t == Income
}

// Guest reports whether the user is on the capped demo tier.
func (u User) Guest() bool {
	return u.Role == RoleGuest
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > 100 {
		return errors.New("name too long (max 100 characters)")
	}
	if c.Budget < 0 || math.IsNaN(c.Budget) || math.IsInf(c.Budget, 0) {
		return ErrInvalidBudget
	}
	for m, v := range c.MonthlyBudgets {
		if !m.Valid() {
			return ErrInvalidMonthKey
		}
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrInvalidBudget
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c Category) Clone() Category {
	out := c
	if c.MonthlyBudgets != nil {
		out.MonthlyBudgets = make(map[MonthKey]float64, len(c.MonthlyBudgets))
		for k, v := range c.MonthlyBudgets {
			out.MonthlyBudgets[k] = v
		}
	}
	return out
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(t.CategoryID) == "" {
		return ErrEmptyCategory
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	if t.Amount <= 0 || math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return ErrInvalidAmount
	}
	if t.Currency != "" && !ValidCurrencyCode(t.Currency) {
		return ErrInvalidCurrency
	}
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if len(t.Description) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}

func (p IncomePlan) Validate() error {
	if p.Default < 0 || math.IsNaN(p.Default) {
		return ErrInvalidAmount
	}
	for m, v := range p.Monthly {
		if !m.Valid() {
			return ErrInvalidMonthKey
		}
		if v < 0 || math.IsNaN(v) {
			return ErrInvalidAmount
		}
	}
	return nil
}

// Clone returns a deep copy.
func (p IncomePlan) Clone() IncomePlan {
	out := p
	if p.Monthly != nil {
		out.Monthly = make(map[MonthKey]float64, len(p.Monthly))
		for k, v := range p.Monthly {
			out.Monthly[k] = v
		}
	}
	return out
}

func (r Receipt) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return ErrEmptyUser
	}
	if strings.TrimSpace(r.URI) == "" {
		return ErrEmptyReceiptURI
	}
	if r.Total < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ValidCurrencyCode reports whether code looks like an ISO 4217 code.
func ValidCurrencyCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
