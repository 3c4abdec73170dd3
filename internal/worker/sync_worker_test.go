package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetly/internal/amqp"
	"budgetly/internal/core"
)

type fakeStore struct {
	txs     map[string]core.Transaction
	cats    map[string]core.Category
	synced  map[string]string
	refs    map[string]string
	errored []string
}

func newFakeStore(txs ...core.Transaction) *fakeStore {
	s := &fakeStore{
		txs:    map[string]core.Transaction{},
		cats:   map[string]core.Category{"food": {ID: "food", UserID: "u1", Name: "Food"}},
		synced: map[string]string{},
		refs:   map[string]string{},
	}
	for _, tx := range txs {
		s.txs[tx.ID] = tx
	}
	return s
}

func (s *fakeStore) FindTransaction(_ context.Context, id string) (core.Transaction, error) {
	tx, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, core.NotFound("transaction", id)
	}
	return tx, nil
}

func (s *fakeStore) GetCategory(_ context.Context, _, id string) (core.Category, error) {
	c, ok := s.cats[id]
	if !ok {
		return core.Category{}, core.NotFound("category", id)
	}
	return c, nil
}

func (s *fakeStore) PendingSync(_ context.Context, limit int) ([]core.Transaction, error) {
	var out []core.Transaction
	for _, id := range []string{"t1", "t2", "t3"} {
		tx, ok := s.txs[id]
		if !ok {
			continue
		}
		if _, done := s.synced[id]; done {
			continue
		}
		out = append(out, tx)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) MarkSynced(_ context.Context, id, ref string) error {
	s.synced[id] = ref
	s.refs[id] = ref
	return nil
}

func (s *fakeStore) SyncStatus(_ context.Context, id string) (string, string, error) {
	if _, ok := s.synced[id]; ok {
		return "synced", s.refs[id], nil
	}
	return "pending", s.refs[id], nil
}

// edit replaces tx and puts it back in the pending queue, keeping the
// ledger row of its last export.
func (s *fakeStore) edit(tx core.Transaction) {
	s.txs[tx.ID] = tx
	delete(s.synced, tx.ID)
}

func (s *fakeStore) MarkSyncError(_ context.Context, id string) error {
	s.errored = append(s.errored, id)
	return nil
}

type fakeLedger struct {
	rows     map[string]string
	amounts  map[string]float64
	deleted  []string
	replaced []string
	failFor  string
	appended int
}

func (l *fakeLedger) AppendTransaction(_ context.Context, tx core.Transaction, categoryName string) (string, error) {
	if tx.ID == l.failFor {
		return "", errors.New("sheets unavailable")
	}
	l.appended++
	if l.rows == nil {
		l.rows = map[string]string{}
		l.amounts = map[string]float64{}
	}
	l.rows[tx.ID] = categoryName
	l.amounts[tx.ID] = tx.Amount
	return "Ledger!A" + tx.ID, nil
}

func (l *fakeLedger) ReplaceTransaction(_ context.Context, ref string, tx core.Transaction, categoryName string) (string, error) {
	if tx.ID == l.failFor {
		return "", errors.New("sheets unavailable")
	}
	l.replaced = append(l.replaced, ref)
	l.rows[tx.ID] = categoryName
	l.amounts[tx.ID] = tx.Amount
	return ref, nil
}

func (l *fakeLedger) DeleteTransaction(_ context.Context, id string) error {
	l.deleted = append(l.deleted, id)
	return nil
}

func tx(id, cat string) core.Transaction {
	return core.Transaction{
		ID: id, UserID: "u1", CategoryID: cat, Type: core.Expense,
		Amount: 10, Currency: "USD", Date: core.NewDate(2025, 5, 1),
	}
}

func TestHandleCreatedExportsAndMarks(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(tx("t1", "food"), tx("t2", "gone"))
	ledger := &fakeLedger{}
	w := NewSyncWorker(store, ledger, 0, nil)

	require.NoError(t, w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventTransactionCreated, "u1", "t1", "food")))
	assert.Equal(t, "Food", ledger.rows["t1"])
	assert.Equal(t, "Ledger!At1", store.synced["t1"])

	// Unknown category falls back to the id.
	require.NoError(t, w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventTransactionCreated, "u1", "t2", "gone")))
	assert.Equal(t, "gone", ledger.rows["t2"])

	// Already deleted transactions are skipped.
	require.NoError(t, w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventTransactionCreated, "u1", "nope", "food")))
	assert.Equal(t, 2, ledger.appended)
}

func TestHandleCreatedFailureMarksError(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(tx("t1", "food"))
	w := NewSyncWorker(store, &fakeLedger{failFor: "t1"}, 5, nil)

	err := w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventTransactionCreated, "u1", "t1", "food"))
	require.Error(t, err)
	assert.Equal(t, []string{"t1"}, store.errored)
	assert.Empty(t, store.synced)
}

func TestHandleDeleteEvents(t *testing.T) {
	ctx := context.Background()
	ledger := &fakeLedger{}
	w := NewSyncWorker(newFakeStore(), ledger, 5, nil)

	require.NoError(t, w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventTransactionDeleted, "u1", "t9", "food")))
	assert.Equal(t, []string{"t9"}, ledger.deleted)

	require.NoError(t, w.HandleEvent(ctx, amqp.NewCategoryDeletedEvent("u1", "food", 3)))
	assert.Len(t, ledger.deleted, 1)

	err := w.HandleEvent(ctx, &amqp.LedgerEvent{Type: "bogus"})
	require.Error(t, err)
}

func TestProcessPending(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(tx("t1", "food"), tx("t2", "food"), tx("t3", "food"))
	ledger := &fakeLedger{failFor: "t2"}
	w := NewSyncWorker(store, ledger, 10, nil)

	synced, failed, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, synced)
	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"t2"}, store.errored)

	ledger.failFor = ""
	synced, failed, err = w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Zero(t, failed)

	synced, _, err = w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, synced)
}

func TestEditedTransactionRewritesItsRow(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(tx("t1", "food"))
	ledger := &fakeLedger{}
	w := NewSyncWorker(store, ledger, 10, nil)

	require.NoError(t, w.HandleEvent(ctx, amqp.NewTransactionEvent(amqp.EventTransactionCreated, "u1", "t1", "food")))
	require.Equal(t, 1, ledger.appended)

	edited := tx("t1", "food")
	edited.Amount = 75
	store.edit(edited)

	synced, failed, err := w.ProcessPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)
	assert.Zero(t, failed)
	assert.Equal(t, 1, ledger.appended, "edit must not append a second row")
	assert.Equal(t, []string{"Ledger!At1"}, ledger.replaced)
	assert.Equal(t, 75.0, ledger.amounts["t1"])
	assert.Equal(t, "Ledger!At1", store.synced["t1"])
}

func TestRunStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := NewSyncWorker(newFakeStore(), &fakeLedger{}, 1, nil)

	done := make(chan struct{})
	go func() {
		w.Run(ctx, 1)
		close(done)
	}()
	<-done
}
