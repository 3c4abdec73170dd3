package main

import (
	"context"
	"errors"
	"os"
	"time"

	"budgetly/internal/amqp"
	"budgetly/internal/backend"
	"budgetly/internal/cli"
	"budgetly/internal/log"
	"budgetly/internal/sheets/google"
	"budgetly/internal/storage"
	"budgetly/internal/worker"
)

var version = "dev"

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Worker configuration invalid", log.FieldError, err.Error())
		os.Exit(1)
	}

	flush := log.InitReporting(cfg.SentryDSN, "", version, logger)
	defer flush()

	logger.Info("Starting budgetly-worker", "version", version)

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ledger, err := google.New(context.Background(), backend.GoogleOptions(cfg))
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer client.Close()

	syncWorker := worker.NewSyncWorker(repo, ledger, cfg.SyncBatchSize, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	// Catch up on anything exported while the worker was down.
	synced, failed, err := syncWorker.ProcessPending(ctx)
	if err != nil {
		logger.Error("Startup sync failed", log.FieldError, err.Error())
		log.ReportError(ctx, err, map[string]string{"stage": "startup"})
	} else {
		logger.Info("Startup sync complete", "synced", synced, "failed", failed)
	}

	go syncWorker.Run(ctx, cfg.SyncInterval)

	handle := func(ctx context.Context, ev *amqp.LedgerEvent) error {
		err := syncWorker.HandleEvent(ctx, ev)
		if err != nil {
			log.ReportError(ctx, err, map[string]string{
				"event_type":     string(ev.Type),
				"transaction_id": ev.TransactionID,
			})
		}
		return err
	}
	if err := client.Consume(ctx, handle); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err.Error())
		flush()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
