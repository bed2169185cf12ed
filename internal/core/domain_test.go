package core

import (
	"errors"
	"strings"
	"testing"
)

func TestMonthKeyOf(t *testing.T) {
	cases := []struct {
		date string
		want MonthKey
		ok   bool
	}{
		{"01/06/24", "06/24", true},
		{"31/12/99", "12/99", true},
		{"01/06/2024", "06/20", true}, // positional, not calendar aware
		{"1/6/24", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := MonthKeyOf(tc.date)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%q expected (%q,%v), got (%q,%v)", tc.date, tc.want, tc.ok, got, ok)
		}
	}
}

func TestExpenseValidate(t *testing.T) {
	good := ExpenseRecord{Description: "Coffee", Amount: Money{Cents: 350}, Category: "Food", Date: "01/06/24"}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		e   ExpenseRecord
		err error
	}{
		{ExpenseRecord{Description: " ", Category: "Food", Date: "01/06/24"}, ErrEmptyDescription},
		{ExpenseRecord{Description: "a,b", Category: "Food", Date: "01/06/24"}, ErrDelimiterInField},
		{ExpenseRecord{Description: strings.Repeat("x", 50), Category: "Food", Date: "01/06/24"}, ErrFieldTooLong},
		{ExpenseRecord{Description: "ok", Category: "", Date: "01/06/24"}, ErrEmptyCategory},
		{ExpenseRecord{Description: "ok", Category: "Fo\nod", Date: "01/06/24"}, ErrDelimiterInField},
		{ExpenseRecord{Description: "ok", Category: "Food", Date: "1/6/24"}, ErrInvalidDate},
	}
	for i, tc := range cases {
		if err := tc.e.Validate(); !errors.Is(err, tc.err) {
			t.Fatalf("case %d expected %v, got %v", i, tc.err, err)
		}
	}
}

func TestIncomeValidate(t *testing.T) {
	if err := (IncomeRecord{Category: "Salary", Date: "01/06/24"}).Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}
	if err := (IncomeRecord{Category: "", Date: "01/06/24"}).Validate(); !errors.Is(err, ErrEmptyCategory) {
		t.Fatalf("expected empty category, got %v", err)
	}
	if err := (IncomeRecord{Category: "Salary", Date: "01,06,24"}).Validate(); !errors.Is(err, ErrDelimiterInField) {
		t.Fatalf("expected delimiter error, got %v", err)
	}
}

func TestMatchesKeyword(t *testing.T) {
	e := ExpenseRecord{Description: "Coffee beans", Category: "Food"}
	if !e.MatchesKeyword("bean") || !e.MatchesKeyword("Foo") || e.MatchesKeyword("food") {
		t.Fatalf("unexpected expense keyword matching")
	}
	i := IncomeRecord{Category: "Salary"}
	if !i.MatchesKeyword("Sal") || i.MatchesKeyword("sal") {
		t.Fatalf("unexpected income keyword matching")
	}
}

func TestStoreMissingIsUnavailable(t *testing.T) {
	if !errors.Is(ErrStoreMissing, ErrStoreUnavailable) {
		t.Fatalf("ErrStoreMissing should match ErrStoreUnavailable")
	}
	if errors.Is(ErrStoreUnavailable, ErrStoreMissing) {
		t.Fatalf("ErrStoreUnavailable should not match ErrStoreMissing")
	}
}

func TestKindIsValid(t *testing.T) {
	if !ExpenseLedger.IsValid() || !IncomeLedger.IsValid() || Kind("savings").IsValid() {
		t.Fatalf("unexpected kind validity")
	}
}
