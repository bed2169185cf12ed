package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monity/internal/amqp"
	"monity/internal/cache"
	"monity/internal/core"
	"monity/internal/services"
	"monity/internal/sheets/memory"
	"monity/internal/storage"
)

func seededService(t *testing.T) *services.LedgerService {
	t.Helper()
	ctx := context.Background()
	svc := services.NewLedgerService(services.Options{Dir: t.TempDir()}, nil, nil, nil)
	require.NoError(t, svc.Expenses.Add(ctx, core.ExpenseRecord{Description: "Coffee", Amount: core.Money{Cents: 350}, Category: "Food", Date: "01/06/24"}))
	require.NoError(t, svc.Expenses.Add(ctx, core.ExpenseRecord{Description: "Rent", Amount: core.Money{Cents: 120000}, Category: "Housing", Date: "01/06/24"}))
	require.NoError(t, svc.Incomes.Add(ctx, core.IncomeRecord{Category: "Salary", Amount: core.Money{Cents: 200000}, Date: "01/06/24"}))
	return svc
}

func TestMirrorWorker_SyncAll(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)
	mirror, err := storage.OpenMirror(filepath.Join(t.TempDir(), "monity.db"), nil)
	require.NoError(t, err)
	defer mirror.Close()
	exporter := memory.New()

	w := NewMirrorWorker(svc, mirror, exporter, 0, nil)
	require.NoError(t, w.SyncAll(ctx))

	n, err := mirror.Count(ctx, core.ExpenseLedger)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	totals, err := mirror.MonthTotals(ctx)
	require.NoError(t, err)
	require.Len(t, totals, 1)
	assert.Equal(t, "796.50", totals[0].Balance.String())

	assert.Len(t, exporter.Expenses(), 2)
	assert.Len(t, exporter.Incomes(), 1)
	require.Len(t, exporter.History(), 1)
	assert.Equal(t, core.MonthKey("06/24"), exporter.History()[0].Month)
}

func TestMirrorWorker_HandleEvent(t *testing.T) {
	ctx := context.Background()
	svc := seededService(t)
	exporter := memory.New()
	w := NewMirrorWorker(svc, nil, exporter, 0, nil)

	require.NoError(t, w.HandleEvent(ctx, amqp.NewLedgerEvent(core.IncomeLedger, amqp.OpAppend, "", 1)))
	assert.Len(t, exporter.Incomes(), 1)
	assert.Empty(t, exporter.Expenses(), "only the named ledger is synced")
	assert.Len(t, exporter.History(), 1)

	err := w.SyncLedger(ctx, core.Kind("savings"))
	assert.ErrorIs(t, err, core.ErrInvalidKind)
}

func TestMirrorWorker_SeesWritesFromAnotherProcess(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	totals, err := cache.New[core.Money](cache.Config{MaxItems: 100, TTL: 5 * time.Minute})
	require.NoError(t, err)
	defer totals.Close()

	svc := services.NewLedgerService(services.Options{Dir: dir}, totals, nil, nil)
	require.NoError(t, svc.Expenses.Add(ctx, core.ExpenseRecord{Description: "Coffee", Amount: core.Money{Cents: 350}, Category: "Food", Date: "01/06/24"}))

	exporter := memory.New()
	w := NewMirrorWorker(svc, nil, exporter, 0, nil)
	require.NoError(t, w.SyncAll(ctx))
	totals.Wait()
	require.Equal(t, "3.50", exporter.History()[0].Expenses.String())

	writer := services.NewLedgerService(services.Options{Dir: dir}, nil, nil, nil)
	require.NoError(t, writer.Expenses.Add(ctx, core.ExpenseRecord{Description: "Rent", Amount: core.Money{Cents: 120000}, Category: "Housing", Date: "01/06/24"}))

	require.NoError(t, w.HandleEvent(ctx, amqp.NewLedgerEvent(core.ExpenseLedger, amqp.OpAppend, "", 1)))
	assert.Len(t, exporter.Expenses(), 2)
	require.Len(t, exporter.History(), 1)
	assert.Equal(t, "1203.50", exporter.History()[0].Expenses.String())
	assert.Equal(t, "-1203.50", exporter.History()[0].Balance.String())
}

type failingMirror struct{}

func (failingMirror) ReplaceExpenses(context.Context, []core.ExpenseRecord) error {
	return errors.New("disk full")
}

func (failingMirror) ReplaceIncomes(context.Context, []core.IncomeRecord) error { return nil }

func TestMirrorWorker_MirrorFailure(t *testing.T) {
	w := NewMirrorWorker(seededService(t), failingMirror{}, nil, 0, nil)
	err := w.SyncLedger(context.Background(), core.ExpenseLedger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mirror expenses")
}

// stubConsumer delivers its events, then blocks until cancelled.
type stubConsumer struct {
	events  []*amqp.LedgerEvent
	handled atomic.Int32
}

func (c *stubConsumer) ConsumeWithRetry(ctx context.Context, handler amqp.Handler) error {
	for _, e := range c.events {
		if err := handler(ctx, e); err != nil {
			return err
		}
		c.handled.Add(1)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestMirrorWorker_Run(t *testing.T) {
	svc := seededService(t)
	exporter := memory.New()
	w := NewMirrorWorker(svc, nil, exporter, 20*time.Millisecond, nil)
	consumer := &stubConsumer{events: []*amqp.LedgerEvent{
		amqp.NewLedgerEvent(core.ExpenseLedger, amqp.OpDelete, "", 1),
	}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer) }()

	// startup sync is 3 exports, the event 2 more, each tick 3 more
	require.Eventually(t, func() bool {
		return consumer.handled.Load() == 1 && exporter.Exports() >= 8
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
