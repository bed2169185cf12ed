// Package memory is an in-process sheets.Exporter, used when no spreadsheet
// is configured and in tests.
package memory

import (
	"context"
	"sync"

	"monity/internal/core"
	"monity/internal/sheets"
)

var _ sheets.Exporter = (*Store)(nil)

type Store struct {
	mu       sync.Mutex
	expenses []core.ExpenseRecord
	incomes  []core.IncomeRecord
	history  []core.MonthBalance
	exports  int
}

func New() *Store {
	return &Store{}
}

func (s *Store) ExportExpenses(_ context.Context, records []core.ExpenseRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expenses = append([]core.ExpenseRecord(nil), records...)
	s.exports++
	return nil
}

func (s *Store) ExportIncomes(_ context.Context, records []core.IncomeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incomes = append([]core.IncomeRecord(nil), records...)
	s.exports++
	return nil
}

func (s *Store) ExportHistory(_ context.Context, report []core.MonthBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]core.MonthBalance(nil), report...)
	s.exports++
	return nil
}

// Expenses returns a copy of the last exported expenses.
func (s *Store) Expenses() []core.ExpenseRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ExpenseRecord(nil), s.expenses...)
}

// Incomes returns a copy of the last exported incomes.
func (s *Store) Incomes() []core.IncomeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.IncomeRecord(nil), s.incomes...)
}

// History returns a copy of the last exported report.
func (s *Store) History() []core.MonthBalance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.MonthBalance(nil), s.history...)
}

// Exports counts the export calls received.
func (s *Store) Exports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exports
}
