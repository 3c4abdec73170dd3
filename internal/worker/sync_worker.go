package worker

import (
	"context"
	"fmt"
	"time"

	"budgetly/internal/amqp"
	"budgetly/internal/core"
	"budgetly/internal/log"
	"budgetly/internal/ports"
)

// SyncStore is the storage the worker reads transactions from and records
// export outcomes in.
type SyncStore interface {
	FindTransaction(ctx context.Context, id string) (core.Transaction, error)
	GetCategory(ctx context.Context, userID, id string) (core.Category, error)
	PendingSync(ctx context.Context, limit int) ([]core.Transaction, error)
	// SyncStatus returns the export state and the ledger row of an earlier
	// export, empty when the transaction was never written.
	SyncStatus(ctx context.Context, id string) (status, ref string, err error)
	MarkSynced(ctx context.Context, id, ref string) error
	MarkSyncError(ctx context.Context, id string) error
}

// SyncWorker mirrors ledger changes from storage into the external ledger.
type SyncWorker struct {
	store     SyncStore
	ledger    ports.LedgerExporter
	batchSize int
	logger    *log.Logger
}

func NewSyncWorker(store SyncStore, ledger ports.LedgerExporter, batchSize int, logger *log.Logger) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &SyncWorker{
		store:     store,
		ledger:    ledger,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent processes a single ledger event from AMQP. A returned error
// asks the broker to redeliver.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev *amqp.LedgerEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		"type", ev.Type,
		"user_id", ev.UserID,
		"transaction_id", ev.TransactionID)

	switch ev.Type {
	case amqp.EventTransactionCreated:
		tx, err := w.store.FindTransaction(ctx, ev.TransactionID)
		if core.IsKind(err, core.KindNotFound) {
			// Deleted before we got to it; the delete event follows.
			w.logger.WarnContext(ctx, "Transaction gone before export", "transaction_id", ev.TransactionID)
			return nil
		}
		if err != nil {
			return fmt.Errorf("get transaction from storage: %w", err)
		}
		return w.export(ctx, tx)

	case amqp.EventTransactionDeleted:
		if err := w.ledger.DeleteTransaction(ctx, ev.TransactionID); err != nil {
			return fmt.Errorf("delete ledger row: %w", err)
		}
		w.logger.InfoContext(ctx, "Ledger row removed", "transaction_id", ev.TransactionID)
		return nil

	case amqp.EventCategoryDeleted:
		// Rows of the removed transactions arrive as their own delete events.
		w.logger.InfoContext(ctx, "Category deleted",
			"category_id", ev.CategoryID, "removed", ev.Removed)
		return nil
	}
	return fmt.Errorf("unknown event type %q", ev.Type)
}

func (w *SyncWorker) export(ctx context.Context, tx core.Transaction) error {
	name := tx.CategoryID
	if cat, err := w.store.GetCategory(ctx, tx.UserID, tx.CategoryID); err == nil {
		name = cat.Name
	} else {
		w.logger.WarnContext(ctx, "Category lookup failed, exporting id",
			log.NewFields().WithCategory(tx.CategoryID).WithError(err).ToSlice()...)
	}

	_, prev, err := w.store.SyncStatus(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("get sync status: %w", err)
	}

	// An edited transaction keeps its row; only first exports append.
	var ref string
	if prev != "" {
		ref, err = w.ledger.ReplaceTransaction(ctx, prev, tx, name)
	} else {
		ref, err = w.ledger.AppendTransaction(ctx, tx, name)
	}
	if err != nil {
		if markErr := w.store.MarkSyncError(ctx, tx.ID); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error", "transaction_id", tx.ID, "error", markErr)
		}
		return fmt.Errorf("write ledger row: %w", err)
	}
	if err := w.store.MarkSynced(ctx, tx.ID, ref); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	w.logger.InfoContext(ctx, "Transaction exported",
		append(log.NewFields().WithTransaction(tx.ID, tx.CategoryID, tx.Amount, tx.Currency).WithOperation(log.OpExport).ToSlice(),
			log.FieldLedgerRef, ref)...)
	return nil
}

// ProcessPending exports transactions that were never synced. It backs up
// the event path in case messages are lost.
func (w *SyncWorker) ProcessPending(ctx context.Context) (synced, failed int, err error) {
	pending, err := w.store.PendingSync(ctx, w.batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	w.logger.InfoContext(ctx, "Processing pending transactions", "count", len(pending))
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return synced, failed, err
		}
		if err := w.export(ctx, tx); err != nil {
			w.logger.ErrorContext(ctx, "Failed to export transaction", "transaction_id", tx.ID, "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// Run sweeps pending transactions every interval until ctx is done.
func (w *SyncWorker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := w.ProcessPending(ctx); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Pending sweep failed", "error", err)
			}
		}
	}
}
