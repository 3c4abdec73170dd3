package rates

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"budgetly/internal/budget"
	"budgetly/internal/cache"
	"budgetly/internal/core"
	"budgetly/internal/ports"
)

const tableKey = "currencies"

// Provider caches a source's table for ttl. Concurrent misses share one
// fetch. When the source fails it serves the last good table, or the
// built-in one when nothing was ever fetched.
type Provider struct {
	source ports.RateSource
	cache  *cache.LRUCache[[]core.Currency]
	group  singleflight.Group
	logger *slog.Logger

	mu       sync.RWMutex
	lastGood []core.Currency
}

func NewProvider(source ports.RateSource, ttl time.Duration, logger *slog.Logger) *Provider {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{
		source:   source,
		cache:    cache.NewLRUCache[[]core.Currency](1, ttl),
		logger:   logger,
		lastGood: budget.DefaultCurrencies(),
	}
}

// Currencies implements ports.RateSource.
func (p *Provider) Currencies(ctx context.Context) ([]core.Currency, error) {
	list, _ := p.Table(ctx)
	return list, nil
}

// Rates returns the indexed table and whether it is a fallback.
func (p *Provider) Rates(ctx context.Context) (budget.Rates, bool) {
	list, fresh := p.Table(ctx)
	return budget.NewRates(list), !fresh
}

// Table returns the current currency list. fresh is false when the list is
// a fallback after a failed fetch.
func (p *Provider) Table(ctx context.Context) (list []core.Currency, fresh bool) {
	if cached, ok := p.cache.Get(tableKey); ok {
		return cached, true
	}

	v, err, _ := p.group.Do(tableKey, func() (interface{}, error) {
		list, err := p.source.Currencies(ctx)
		if err != nil {
			return nil, err
		}
		if len(budget.NewRates(list)) == 0 {
			return nil, errEmptyTable
		}
		p.cache.Set(tableKey, list)
		p.mu.Lock()
		p.lastGood = list
		p.mu.Unlock()
		return list, nil
	})
	if err != nil {
		p.logger.WarnContext(ctx, "Rate source failed, using fallback table", "error", err)
		p.mu.RLock()
		defer p.mu.RUnlock()
		return p.lastGood, false
	}
	return v.([]core.Currency), true
}

// Invalidate forces the next call to refetch.
func (p *Provider) Invalidate() {
	p.cache.Delete(tableKey)
}

var errEmptyTable = errors.New("rate source returned no usable rates")
