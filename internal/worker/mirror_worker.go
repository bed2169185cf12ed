// Package worker keeps the SQLite mirror and the spreadsheet export in step
// with the flat file ledgers.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"monity/internal/amqp"
	"monity/internal/core"
	applog "monity/internal/log"
	"monity/internal/services"
	"monity/internal/sheets"
)

// Mirror is the part of storage.Mirror the worker writes to.
type Mirror interface {
	ReplaceExpenses(ctx context.Context, records []core.ExpenseRecord) error
	ReplaceIncomes(ctx context.Context, records []core.IncomeRecord) error
}

// Consumer delivers ledger events until ctx is done.
type Consumer interface {
	ConsumeWithRetry(ctx context.Context, handler amqp.Handler) error
}

// MirrorWorker rebuilds the mirror of a ledger whenever it changes, and all
// of them on a timer in case events were lost.
type MirrorWorker struct {
	svc      *services.LedgerService
	mirror   Mirror
	exporter sheets.Exporter
	interval time.Duration
	logger   *applog.Logger
}

// NewMirrorWorker creates a worker. mirror and exporter may each be nil,
// but not both.
func NewMirrorWorker(svc *services.LedgerService, mirror Mirror, exporter sheets.Exporter, interval time.Duration, logger *applog.Logger) *MirrorWorker {
	return &MirrorWorker{
		svc:      svc,
		mirror:   mirror,
		exporter: exporter,
		interval: interval,
		logger:   applog.OrDiscard(logger).WithComponent(applog.ComponentWorker),
	}
}

// HandleEvent resyncs the ledger named by e.
func (w *MirrorWorker) HandleEvent(ctx context.Context, e *amqp.LedgerEvent) error {
	w.logger.InfoContext(ctx, "Processing ledger event",
		applog.FieldEventID, e.ID,
		applog.FieldLedger, e.Ledger.String(),
		applog.FieldOperation, string(e.Op))
	return w.SyncLedger(ctx, e.Ledger)
}

// SyncLedger copies one ledger to the mirror and the exporter, then exports
// the refreshed history. The ledger was written by another process, so the
// service's cached totals for it are dropped first.
func (w *MirrorWorker) SyncLedger(ctx context.Context, kind core.Kind) error {
	if err := w.svc.Refresh(ctx, kind); err != nil {
		return err
	}
	var err error
	switch kind {
	case core.ExpenseLedger:
		err = w.syncExpenses(ctx)
	case core.IncomeLedger:
		err = w.syncIncomes(ctx)
	}
	if err != nil {
		w.logger.Op(ctx, applog.OpSync, err, applog.FieldLedger, kind.String())
		return err
	}
	return w.exportHistory(ctx)
}

// SyncAll resyncs both ledgers.
func (w *MirrorWorker) SyncAll(ctx context.Context) error {
	for _, kind := range []core.Kind{core.ExpenseLedger, core.IncomeLedger} {
		if err := w.svc.Refresh(ctx, kind); err != nil {
			return err
		}
	}
	if err := w.syncExpenses(ctx); err != nil {
		return err
	}
	if err := w.syncIncomes(ctx); err != nil {
		return err
	}
	return w.exportHistory(ctx)
}

func (w *MirrorWorker) syncExpenses(ctx context.Context) error {
	records, err := w.svc.Expenses.List(ctx)
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}
	if w.mirror != nil {
		if err := w.mirror.ReplaceExpenses(ctx, records); err != nil {
			return fmt.Errorf("mirror expenses: %w", err)
		}
	}
	if w.exporter != nil {
		if err := w.exporter.ExportExpenses(ctx, records); err != nil {
			return fmt.Errorf("export expenses: %w", err)
		}
	}
	return nil
}

func (w *MirrorWorker) syncIncomes(ctx context.Context) error {
	records, err := w.svc.Incomes.List(ctx)
	if err != nil {
		return fmt.Errorf("list incomes: %w", err)
	}
	if w.mirror != nil {
		if err := w.mirror.ReplaceIncomes(ctx, records); err != nil {
			return fmt.Errorf("mirror incomes: %w", err)
		}
	}
	if w.exporter != nil {
		if err := w.exporter.ExportIncomes(ctx, records); err != nil {
			return fmt.Errorf("export incomes: %w", err)
		}
	}
	return nil
}

func (w *MirrorWorker) exportHistory(ctx context.Context) error {
	if w.exporter == nil {
		return nil
	}
	report, err := w.svc.History(ctx)
	if err != nil {
		return fmt.Errorf("build history: %w", err)
	}
	if err := w.exporter.ExportHistory(ctx, report); err != nil {
		return fmt.Errorf("export history: %w", err)
	}
	return nil
}

// Run syncs everything once, then consumes events from consumer (if not nil)
// and resyncs on every interval tick until ctx is done. A failed periodic
// sync is logged and retried on the next tick.
func (w *MirrorWorker) Run(ctx context.Context, consumer Consumer) error {
	if err := w.SyncAll(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Startup sync failed",
			applog.NewFields().WithOperation(applog.OpStartup).WithError(err).ToSlice()...)
	}

	g, ctx := errgroup.WithContext(ctx)

	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeWithRetry(ctx, w.HandleEvent)
		})
	}

	if w.interval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(w.interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if err := w.SyncAll(ctx); err != nil {
						w.logger.ErrorContext(ctx, "Periodic sync failed",
							applog.NewFields().WithOperation(applog.OpSync).WithError(err).ToSlice()...)
					}
				}
			}
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
