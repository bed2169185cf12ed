package ledger

import (
	"context"
	"fmt"

	"monity/internal/core"
	applog "monity/internal/log"
)

// MonthTotal sums one ledger for a month.
type MonthTotal func(ctx context.Context, key core.MonthKey) (core.Money, error)

// History derives per month balances from the income and expense ledgers.
type History struct {
	incomes   *Query[core.IncomeRecord]
	expenses  *Query[core.ExpenseRecord]
	maxMonths int
	logger    *applog.Logger

	incomeTotal  MonthTotal
	expenseTotal MonthTotal
}

// NewHistory returns a History. maxMonths <= 0 means no limit.
func NewHistory(incomes *Query[core.IncomeRecord], expenses *Query[core.ExpenseRecord], maxMonths int, logger *applog.Logger) *History {
	return &History{
		incomes:      incomes,
		expenses:     expenses,
		maxMonths:    maxMonths,
		logger:       applog.OrDiscard(logger).WithComponent(applog.ComponentLedger),
		incomeTotal:  incomes.SumForMonth,
		expenseTotal: expenses.SumForMonth,
	}
}

// WithTotals returns a copy of h that sums months through income and expense
// instead of scanning the ledgers directly. Month discovery still scans.
func (h *History) WithTotals(income, expense MonthTotal) *History {
	c := *h
	c.incomeTotal = income
	c.expenseTotal = expense
	return &c
}

// DistinctMonths returns every MonthKey present in the ledgers, incomes
// first, in first-seen order.
func (h *History) DistinctMonths(ctx context.Context) ([]core.MonthKey, error) {
	seen := make(map[core.MonthKey]struct{})
	var months []core.MonthKey
	add := func(key core.MonthKey) error {
		if _, ok := seen[key]; ok {
			return nil
		}
		if h.maxMonths > 0 && len(months) == h.maxMonths {
			return fmt.Errorf("%w: more than %d distinct months", core.ErrCapacityExceeded, h.maxMonths)
		}
		seen[key] = struct{}{}
		months = append(months, key)
		return nil
	}

	if err := h.incomes.months(ctx, add); err != nil {
		return nil, err
	}
	if err := h.expenses.months(ctx, add); err != nil {
		return nil, err
	}
	return months, nil
}

// MonthlyBalance is income minus expenses for key.
func (h *History) MonthlyBalance(ctx context.Context, key core.MonthKey) (core.MonthBalance, error) {
	income, err := h.incomeTotal(ctx, key)
	if err != nil {
		return core.MonthBalance{}, fmt.Errorf("sum incomes for %s: %w", key, err)
	}
	spent, err := h.expenseTotal(ctx, key)
	if err != nil {
		return core.MonthBalance{}, fmt.Errorf("sum expenses for %s: %w", key, err)
	}
	return core.NewMonthBalance(key, income, spent), nil
}

// Report returns the balance of every distinct month in discovery order.
func (h *History) Report(ctx context.Context) ([]core.MonthBalance, error) {
	months, err := h.DistinctMonths(ctx)
	if err != nil {
		h.logger.Op(ctx, applog.OpHistory, err)
		return nil, err
	}
	report := make([]core.MonthBalance, 0, len(months))
	for _, m := range months {
		b, err := h.MonthlyBalance(ctx, m)
		if err != nil {
			h.logger.Op(ctx, applog.OpHistory, err, applog.FieldMonth, m.String())
			return nil, err
		}
		report = append(report, b)
	}
	h.logger.Op(ctx, applog.OpHistory, nil, applog.FieldCount, len(report))
	return report, nil
}
