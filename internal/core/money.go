// Package core provides the ledger domain types and money handling.
//
// This file contains the amount parser used by the line codec and the front
// ends, and the fixed two-digit rendering used on every ledger line.
package core

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a decimal string to Money, rounding half away from zero
// to whole cents.
//
// Signed values are accepted; ledgers store signed amounts. Leading and
// trailing whitespace is ignored. Anything decimal.NewFromString rejects
// yields ErrUnparsableAmount.
//
// Examples:
//
//	ParseAmount("3.50")   -> {350}, nil
//	ParseAmount("3.5")    -> {350}, nil
//	ParseAmount("-12.345") -> {-1235}, nil
//	ParseAmount("abc")    -> {0}, ErrUnparsableAmount
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrUnparsableAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrUnparsableAmount
	}
	cents := d.Mul(hundred).Round(0)
	if cents.Abs().GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return Money{}, ErrUnparsableAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// LeadingAmount reads the longest numeric prefix of s, the way C's atof
// does: "3.50abc" is 3.50 and "abc" is 0. Leading whitespace is skipped.
func LeadingAmount(s string) Money {
	s = strings.TrimLeft(s, " \t")
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	digits := 0
	for ; i < len(s) && isDigit(s[i]); i++ {
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for ; i < len(s) && isDigit(s[i]); i++ {
			digits++
		}
	}
	if digits == 0 {
		return Money{}
	}
	end := i
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		if j < len(s) && isDigit(s[j]) {
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			end = j
		}
	}
	m, err := ParseAmount(strings.TrimSuffix(strings.TrimPrefix(s[:end], "+"), "."))
	if err != nil {
		return Money{}
	}
	return m
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// String renders the amount with exactly two fraction digits, as written on
// ledger lines.
func (m Money) String() string {
	return decimal.New(m.Cents, -2).StringFixed(2)
}

// Float returns the amount as a float64 for display purposes.
// Use cents for calculations.
func (m Money) Float() float64 {
	return float64(m.Cents) / 100.0
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

func (m Money) Sub(o Money) Money {
	return Money{Cents: m.Cents - o.Cents}
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.Cents == 0
}
