package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"budgetly/internal/backend"
	"budgetly/internal/cache"
	"budgetly/internal/cli"
	apphttp "budgetly/internal/http"
	"budgetly/internal/log"
	"budgetly/internal/middleware/ratelimit"
	"budgetly/internal/policy"
	"budgetly/internal/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	flush := log.InitReporting(cfg.SentryDSN, "", version, logger)
	defer flush()

	ctx := context.Background()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Failed to create backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendConfig)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}

	provider, err := backend.NewRateProvider(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create rate provider", log.FieldError, err.Error(), "source", cfg.RatesSource)
		_ = result.Cleanup()
		os.Exit(1)
	}

	svc := services.NewBudgetService(result.Repository, provider, services.Options{
		Limits: policy.Limits{
			GuestCategories:   cfg.GuestCategoryLimit,
			GuestTransactions: cfg.GuestTransactionLimit,
		},
		Events:           result.Events,
		SummaryCacheSize: cfg.SummaryCacheSize,
		SummaryCacheTTL:  cfg.SummaryCacheTTL,
		Logger:           logger,
	})

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Slog())
	caches.Register(svc.SummaryCache())
	caches.StartCleanup(cfg.SummaryCacheTTL)

	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RequestsPerMinute})

	srv := apphttp.NewServer(apphttp.Options{
		Addr:    ":" + cfg.Port,
		Service: svc,
		Ping:    result.Ping,
		Limiter: limiter,
		Logger:  logger,
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		caches.Stop()
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err.Error())
		}
	})

	logger.Info("Starting budgetly server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"rates_source", cfg.RatesSource,
		"version", version)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		flush()
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
