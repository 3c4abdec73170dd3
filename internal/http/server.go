// Package http exposes the budget service as a JSON API.
package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"budgetly/internal/core"
	"budgetly/internal/log"
	"budgetly/internal/middleware/ratelimit"
	"budgetly/internal/middleware/security"
	"budgetly/internal/middleware/trace"
	"budgetly/internal/services"
)

// Options configures a Server. Service is required.
type Options struct {
	Addr    string
	Service *services.BudgetService
	// Ping checks the backend for /readyz. Nil means always ready.
	Ping func(ctx context.Context) error
	// Limiter throttles /api requests per client. Nil disables limiting.
	Limiter *ratelimit.Limiter
	Logger  *log.Logger
	Now     func() time.Time
}

// Server embeds http.Server and owns the middleware it starts.
type Server struct {
	http.Server
	svc      *services.BudgetService
	ping     func(ctx context.Context) error
	limiter  *ratelimit.Limiter
	detector *security.Detector
	logger   *log.Logger
	now      func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Server{
		svc:      opts.Service,
		ping:     opts.Ping,
		limiter:  opts.Limiter,
		detector: security.NewDetector(),
		logger:   opts.Logger.WithComponent(log.ComponentHTTP),
		now:      opts.Now,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("/api/", s.apiHandler())

	tracer := trace.NewMiddleware(s.detector.ClientIP, s.logger)
	handler := security.Headers(security.DefaultHeadersConfig())(tracer.Middleware(s.flagScans(mux)))

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) apiHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/months", s.withCaller(s.handleMonths))
	mux.HandleFunc("GET /api/summary", s.withCaller(s.handleSummary))
	mux.HandleFunc("GET /api/verify", s.withCaller(s.handleVerify))

	mux.HandleFunc("GET /api/settings", s.withCaller(s.handleGetSettings))
	mux.HandleFunc("PUT /api/settings", s.withCaller(s.handlePutSettings))

	mux.HandleFunc("GET /api/categories", s.withCaller(s.handleListCategories))
	mux.HandleFunc("POST /api/categories", s.withCaller(s.handleCreateCategory))
	mux.HandleFunc("PUT /api/categories/{id}", s.withCaller(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /api/categories/{id}", s.withCaller(s.handleDeleteCategory))
	mux.HandleFunc("PUT /api/categories/{id}/budgets/{month}", s.withCaller(s.handleSetCategoryMonthBudget))
	mux.HandleFunc("DELETE /api/categories/{id}/budgets/{month}", s.withCaller(s.handleClearCategoryMonthBudget))

	mux.HandleFunc("GET /api/budgets/{month}", s.withCaller(s.handleGetMonthBudget))
	mux.HandleFunc("PUT /api/budgets/{month}", s.withCaller(s.handlePutMonthBudget))

	mux.HandleFunc("GET /api/transactions", s.withCaller(s.handleListTransactions))
	mux.HandleFunc("POST /api/transactions", s.withCaller(s.handleCreateTransaction))
	mux.HandleFunc("PUT /api/transactions/{id}", s.withCaller(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withCaller(s.handleDeleteTransaction))

	mux.HandleFunc("GET /api/income", s.withCaller(s.handleGetIncome))
	mux.HandleFunc("PUT /api/income", s.withCaller(s.handleSetDefaultIncome))
	mux.HandleFunc("PUT /api/income/{month}", s.withCaller(s.handleSetMonthIncome))

	mux.HandleFunc("GET /api/receipts", s.withCaller(s.handleListReceipts))
	mux.HandleFunc("POST /api/receipts", s.withCaller(s.handleCreateReceipt))
	mux.HandleFunc("DELETE /api/receipts/{id}", s.withCaller(s.handleDeleteReceipt))

	mux.HandleFunc("GET /api/currencies", s.handleCurrencies)
	mux.HandleFunc("POST /api/convert", s.handleConvert)

	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeErrorBody(w, http.StatusNotFound, errorPayload{
			Code:    core.CodeNotFound,
			Message: "no such endpoint",
			Kind:    core.KindNotFound,
		})
	})

	if s.limiter == nil {
		return mux
	}
	return s.limiter.Middleware(s.detector.ClientIP, writeRateLimited)(mux)
}

// withCaller resolves the identity headers before calling fn.
func (s *Server) withCaller(fn func(http.ResponseWriter, *http.Request, services.Caller)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := callerFrom(r)
		if errors.Is(err, core.ErrEmptyUser) {
			writeUnauthenticated(w, "missing "+HeaderUserID+" header")
			return
		}
		if err != nil {
			writeError(w, r, err)
			return
		}
		fn(w, r, c)
	}
}

// flagScans logs requests that look like scans. They are still served.
func (s *Server) flagScans(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.Suspicious(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldClientIP, s.detector.ClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops background middleware and drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) currentMonth() core.MonthKey {
	return core.MonthKeyOf(s.now())
}

func pathMonth(r *http.Request) core.MonthKey {
	return core.MonthKey(strings.TrimSpace(r.PathValue("month")))
}
