package rates

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"budgetly/internal/budget"
	"budgetly/internal/core"
)

// HTTPOptions configures an HTTPSource.
type HTTPOptions struct {
	URL        string
	HTTPClient *http.Client
	MaxRetries int
	RetryWait  time.Duration
	MaxWait    time.Duration
	Logger     *slog.Logger
}

// HTTPSource reads a JSON rate feed of the form
//
//	{"base": "USD", "rates": {"EUR": 0.91, "JPY": 151.2}}
//
// Rates quoted against another base are rebased to USD.
type HTTPSource struct {
	url    string
	client *retryablehttp.Client
	names  budget.Rates
}

type feed struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

func NewHTTPSource(opts HTTPOptions) *HTTPSource {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = 200 * time.Millisecond
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 2 * time.Second
	}

	client := retryablehttp.NewClient()
	client.HTTPClient = opts.HTTPClient
	client.RetryMax = opts.MaxRetries
	client.RetryWaitMin = opts.RetryWait
	client.RetryWaitMax = opts.MaxWait
	// retryablehttp logs to stderr unless told otherwise.
	client.Logger = nil
	if opts.Logger != nil {
		client.Logger = opts.Logger
	}

	return &HTTPSource{
		url:    opts.URL,
		client: client,
		names:  budget.NewRates(budget.DefaultCurrencies()),
	}
}

func (s *HTTPSource) Currencies(ctx context.Context) ([]core.Currency, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create rates request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch rates")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read rates response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("rates feed returned status %d", resp.StatusCode)
	}

	var f feed
	if err := json.Unmarshal(body, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse rates response")
	}
	return s.table(f)
}

// table turns a feed into currencies quoted per 1 USD.
func (s *HTTPSource) table(f feed) ([]core.Currency, error) {
	base := strings.ToUpper(f.Base)
	if base == "" {
		base = "USD"
	}
	quotes := make(map[string]float64, len(f.Rates)+1)
	for code, rate := range f.Rates {
		quotes[strings.ToUpper(code)] = rate
	}
	quotes[base] = 1

	usd, ok := quotes["USD"]
	if !ok || usd <= 0 {
		return nil, errors.Errorf("rates feed has no USD quote against %s", base)
	}

	out := make([]core.Currency, 0, len(quotes))
	for code, rate := range quotes {
		if !core.ValidCurrencyCode(code) || rate <= 0 {
			continue
		}
		c := core.Currency{Code: code, Name: code, Rate: rate / usd}
		if known, ok := s.names[code]; ok {
			c.Name = known.Name
			c.Symbol = known.Symbol
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}
