package budget

import (
	"sort"

	"budgetly/internal/core"
)

// Rates maps a currency code to its table entry. Rates are units per 1 USD.
type Rates map[string]core.Currency

// NewRates indexes a currency list by code, skipping entries without a
// positive rate.
func NewRates(list []core.Currency) Rates {
	r := make(Rates, len(list))
	for _, c := range list {
		if c.Rate <= 0 {
			continue
		}
		r[c.Code] = c
	}
	return r
}

// Rate returns the rate for code.
func (r Rates) Rate(code string) (float64, bool) {
	c, ok := r[code]
	if !ok || c.Rate <= 0 {
		return 0, false
	}
	return c.Rate, true
}

// Convert turns amount in from into to as amount / rate[from] * rate[to].
// When either rate is unknown the raw amount comes back with ok false.
func (r Rates) Convert(amount float64, from, to string) (float64, bool) {
	if from == to || from == "" || to == "" {
		return amount, true
	}
	fromRate, ok := r.Rate(from)
	if !ok {
		return amount, false
	}
	toRate, ok := r.Rate(to)
	if !ok {
		return amount, false
	}
	return amount / fromRate * toRate, true
}

// List returns the table sorted by code.
func (r Rates) List() []core.Currency {
	out := make([]core.Currency, 0, len(r))
	for _, c := range r {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// DefaultCurrencies is the built-in rate table used when no live source is
// configured.
func DefaultCurrencies() []core.Currency {
	return []core.Currency{
		{Code: "USD", Name: "US Dollar", Symbol: "$", Rate: 1.0},
		{Code: "EUR", Name: "Euro", Symbol: "€", Rate: 0.91},
		{Code: "GBP", Name: "British Pound", Symbol: "£", Rate: 0.78},
		{Code: "JPY", Name: "Japanese Yen", Symbol: "¥", Rate: 151.28},
		{Code: "CAD", Name: "Canadian Dollar", Symbol: "C$", Rate: 1.36},
		{Code: "AUD", Name: "Australian Dollar", Symbol: "A$", Rate: 1.51},
		{Code: "CHF", Name: "Swiss Franc", Symbol: "Fr", Rate: 0.90},
		{Code: "CNY", Name: "Chinese Yuan", Symbol: "¥", Rate: 7.24},
		{Code: "INR", Name: "Indian Rupee", Symbol: "₹", Rate: 83.45},
		{Code: "MXN", Name: "Mexican Peso", Symbol: "$", Rate: 16.73},
		{Code: "BRL", Name: "Brazilian Real", Symbol: "R$", Rate: 5.05},
	}
}
