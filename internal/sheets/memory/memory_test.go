package memory

import (
	"context"
	"testing"

	"monity/internal/core"
)

func TestStore_ExportReplaces(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := []core.ExpenseRecord{
		{Description: "Coffee", Amount: core.Money{Cents: 350}, Category: "Food", Date: "01/06/24"},
		{Description: "Rent", Amount: core.Money{Cents: 120000}, Category: "Housing", Date: "01/06/24"},
	}
	if err := s.ExportExpenses(ctx, first); err != nil {
		t.Fatalf("ExportExpenses() error = %v", err)
	}
	first[0].Description = "changed"
	if got := s.Expenses()[0].Description; got != "Coffee" {
		t.Errorf("Store should keep its own copy, got %q", got)
	}

	if err := s.ExportExpenses(ctx, first[1:]); err != nil {
		t.Fatalf("ExportExpenses() error = %v", err)
	}
	if got := len(s.Expenses()); got != 1 {
		t.Errorf("Expenses() len = %d, want 1", got)
	}
	if s.Exports() != 2 {
		t.Errorf("Exports() = %d, want 2", s.Exports())
	}
}

func TestStore_IncomesAndHistory(t *testing.T) {
	ctx := context.Background()
	s := New()

	_ = s.ExportIncomes(ctx, []core.IncomeRecord{{Category: "Salary", Amount: core.Money{Cents: 200000}, Date: "01/06/24"}})
	_ = s.ExportHistory(ctx, []core.MonthBalance{core.NewMonthBalance("06/24", core.Money{Cents: 200000}, core.Money{Cents: 120350})})

	if len(s.Incomes()) != 1 {
		t.Errorf("Incomes() len = %d, want 1", len(s.Incomes()))
	}
	if got := s.History()[0].Balance.String(); got != "796.50" {
		t.Errorf("History()[0].Balance = %s, want 796.50", got)
	}
}
