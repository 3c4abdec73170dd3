package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetly/internal/core"
)

type countingSource struct {
	calls atomic.Int32
	list  []core.Currency
	err   error
	delay time.Duration
}

func (s *countingSource) Currencies(context.Context) ([]core.Currency, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return s.list, s.err
}

func TestStaticSourceDefaults(t *testing.T) {
	list, err := NewStaticSource(nil).Currencies(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	list[0].Rate = -1
	again, _ := NewStaticSource(nil).Currencies(context.Background())
	assert.Positive(t, again[0].Rate)
}

func TestHTTPSourceRebasesToUSD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"base":"EUR","rates":{"USD":2,"GBP":1,"x1":5}}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPOptions{URL: srv.URL, MaxRetries: 1, RetryWait: time.Millisecond, MaxWait: time.Millisecond})
	list, err := src.Currencies(context.Background())
	require.NoError(t, err)

	byCode := map[string]core.Currency{}
	for _, c := range list {
		byCode[c.Code] = c
	}
	require.Len(t, byCode, 3)
	assert.InDelta(t, 1, byCode["USD"].Rate, 1e-9)
	assert.InDelta(t, 0.5, byCode["EUR"].Rate, 1e-9)
	assert.InDelta(t, 0.5, byCode["GBP"].Rate, 1e-9)
	assert.Equal(t, "Euro", byCode["EUR"].Name)
}

func TestHTTPSourceRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"base":"USD","rates":{"EUR":0.9}}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(HTTPOptions{URL: srv.URL, MaxRetries: 3, RetryWait: time.Millisecond, MaxWait: time.Millisecond})
	list, err := src.Currencies(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.Equal(t, int32(3), hits.Load())
}

func TestHTTPSourceBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewHTTPSource(HTTPOptions{URL: srv.URL}).Currencies(context.Background())
	assert.Error(t, err)
}

func TestProviderCachesAndSharesFetches(t *testing.T) {
	src := &countingSource{
		list:  []core.Currency{{Code: "USD", Rate: 1}, {Code: "EUR", Rate: 0.5}},
		delay: 20 * time.Millisecond,
	}
	p := NewProvider(src, time.Minute, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, degraded := p.Rates(context.Background())
			assert.False(t, degraded)
			assert.Len(t, r, 2)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), src.calls.Load())

	_, _ = p.Rates(context.Background())
	assert.Equal(t, int32(1), src.calls.Load())

	p.Invalidate()
	_, _ = p.Rates(context.Background())
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestProviderFallsBack(t *testing.T) {
	src := &countingSource{err: errors.New("down")}
	p := NewProvider(src, time.Minute, nil)

	r, degraded := p.Rates(context.Background())
	assert.True(t, degraded)
	_, ok := r.Rate("EUR")
	assert.True(t, ok, "built-in table expected")

	src.err = nil
	src.list = []core.Currency{{Code: "USD", Rate: 1}, {Code: "XYZ", Rate: 3}}
	r, degraded = p.Rates(context.Background())
	assert.False(t, degraded)
	_, ok = r.Rate("XYZ")
	assert.True(t, ok)

	p.Invalidate()
	src.err = errors.New("down again")
	r, degraded = p.Rates(context.Background())
	assert.True(t, degraded)
	_, ok = r.Rate("XYZ")
	assert.True(t, ok, "last good table expected")
}
