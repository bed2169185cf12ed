package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"3.5", 350, true},
		{"1200.00", 120000, true},
		{"0.01", 1, true},
		{"0", 0, true},
		{"1.005", 101, true}, // half away from zero
		{"-1.005", -101, true},
		{" 2.50 ", 250, true},
		{"-12.34", -1234, true},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1,23", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.Cents != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestLeadingAmount(t *testing.T) {
	cases := map[string]int64{
		"3.50abc":  350,
		"12":       1200,
		"  -4.5kg": -450,
		"+2":       200,
		"7.":       700,
		"1e2x":     10000,
		"5e":       500,
		"abc":      0,
		"":         0,
		"-":        0,
		".":        0,
		"3.50 EUR": 350,
	}
	for in, want := range cases {
		if got := LeadingAmount(in); got.Cents != want {
			t.Errorf("LeadingAmount(%q) = %d, want %d", in, got.Cents, want)
		}
	}
}

func TestMoneyString(t *testing.T) {
	cases := map[int64]string{
		0:      "0.00",
		350:    "3.50",
		120000: "1200.00",
		-5:     "-0.05",
		79650:  "796.50",
	}
	for cents, want := range cases {
		if got := (Money{Cents: cents}).String(); got != want {
			t.Fatalf("%d expected %q, got %q", cents, want, got)
		}
	}
}

func TestMonthBalance(t *testing.T) {
	b := NewMonthBalance("06/24", Money{Cents: 200000}, Money{Cents: 120350})
	if b.Balance.Cents != 79650 {
		t.Fatalf("expected 79650, got %d", b.Balance.Cents)
	}
}
