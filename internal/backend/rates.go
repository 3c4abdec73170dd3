package backend

import (
	"context"
	"fmt"

	"budgetly/internal/config"
	"budgetly/internal/log"
	"budgetly/internal/ports"
	"budgetly/internal/rates"
	"budgetly/internal/sheets/google"
)

// NewRateProvider builds the configured currency table source wrapped in a
// caching provider.
func NewRateProvider(ctx context.Context, cfg *config.Config, logger *log.Logger) (*rates.Provider, error) {
	if logger == nil {
		logger = log.Discard()
	}
	logger = logger.WithComponent(log.ComponentRates)

	var source ports.RateSource
	switch cfg.RatesSource {
	case "", "static":
		source = rates.NewStaticSource(nil)
	case "http":
		source = rates.NewHTTPSource(rates.HTTPOptions{
			URL:    cfg.RatesURL,
			Logger: logger.Slog(),
		})
	case "sheets":
		client, err := google.New(ctx, GoogleOptions(cfg))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		source = client
	default:
		return nil, fmt.Errorf("unsupported rates source: %s", cfg.RatesSource)
	}

	logger.Info("Initialized rate source", "source", cfg.RatesSource, "ttl", cfg.RatesTTL)
	return rates.NewProvider(source, cfg.RatesTTL, logger.Slog()), nil
}

// GoogleOptions maps the Google settings of cfg.
func GoogleOptions(cfg *config.Config) google.Options {
	return google.Options{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		LedgerSheet:     cfg.GoogleExportSheet,
		RatesSheet:      cfg.GoogleRatesSheet,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}
}
