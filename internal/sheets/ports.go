// Package sheets defines where ledger snapshots are exported to.
package sheets

import (
	"context"

	"monity/internal/core"
)

// Ports for outbound adapters. Every export replaces what was exported
// before.
type (
	ExpenseExporter interface {
		ExportExpenses(ctx context.Context, records []core.ExpenseRecord) error
	}

	IncomeExporter interface {
		ExportIncomes(ctx context.Context, records []core.IncomeRecord) error
	}

	// HistoryExporter publishes the per month balance report.
	HistoryExporter interface {
		ExportHistory(ctx context.Context, report []core.MonthBalance) error
	}

	Exporter interface {
		ExpenseExporter
		IncomeExporter
		HistoryExporter
	}
)
