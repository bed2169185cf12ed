// Package ledger implements the query, mutation and history engines over the
// flat file ledgers in package storage.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"monity/internal/codec"
	"monity/internal/core"
	applog "monity/internal/log"
	"monity/internal/storage"
)

// Store is the part of storage.Ledger the engines use.
type Store[R core.Entry] interface {
	Kind() core.Kind
	Codec() codec.Codec[R]
	Scan(ctx context.Context, fn func(ordinal int, line string) error) error
	Rewrite(ctx context.Context, fn func(w *storage.LineWriter) error) error
}

var _ Store[core.ExpenseRecord] = (*storage.Ledger[core.ExpenseRecord])(nil)

// MonthMatch selects how SumForMonth compares a record date with a month key.
type MonthMatch int

const (
	// MatchSubstring matches any date that contains the key. This is the
	// historical behaviour: "06/24" also matches a token like "06/24/xx",
	// and a two character key can match inside the day field.
	MatchSubstring MonthMatch = iota
	// MatchExact compares the positional MonthKey of the date with the key.
	MatchExact
)

func (m MonthMatch) String() string {
	if m == MatchExact {
		return "exact"
	}
	return "substring"
}

// ParseMonthMatch maps a configuration value to a MonthMatch.
func ParseMonthMatch(s string) (MonthMatch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "substring":
		return MatchSubstring, nil
	case "exact":
		return MatchExact, nil
	default:
		return MatchSubstring, fmt.Errorf("invalid month match '%s': must be one of [substring exact]", s)
	}
}

func (m MonthMatch) matches(date string, key core.MonthKey) bool {
	if m == MatchExact {
		k, ok := core.MonthKeyOf(date)
		return ok && k == key
	}
	return strings.Contains(date, string(key))
}

// Filtered is the result of a filter: the matching records in file order and
// the sum of their amounts.
type Filtered[R core.Entry] struct {
	Records []R
	Total   core.Money
}

// TotalLine renders the summary line printed under a filtered listing, e.g.
// TotalLine("spent in category Food") -> "Total spent in category Food: $3.50".
func (f Filtered[R]) TotalLine(label string) string {
	return fmt.Sprintf("Total %s: $%s", label, f.Total)
}

// Query answers read-only questions about one ledger. Results are always in
// file order.
type Query[R core.Entry] struct {
	store  Store[R]
	match  MonthMatch
	logger *applog.Logger
}

func NewQuery[R core.Entry](store Store[R], match MonthMatch, logger *applog.Logger) *Query[R] {
	return &Query[R]{
		store: store,
		match: match,
		logger: applog.OrDiscard(logger).
			WithComponent(applog.ComponentLedger).
			With(applog.FieldLedger, store.Kind().String()),
	}
}

func (q *Query[R]) Kind() core.Kind { return q.store.Kind() }

// MonthMatch reports the month comparison in use.
func (q *Query[R]) MonthMatch() MonthMatch { return q.match }

// each decodes every line and calls fn with the records that decode. A
// missing ledger has no records. Malformed lines are skipped. Lines whose
// amount the codec rejects are skipped too unless strict is set, in which
// case the first one aborts the walk: totals must not silently under-count.
func (q *Query[R]) each(ctx context.Context, strict bool, fn func(ordinal int, r R) error) error {
	c := q.store.Codec()
	skipped := 0
	err := q.store.Scan(ctx, func(ordinal int, line string) error {
		r, err := c.Decode(line)
		switch {
		case err == nil:
			return fn(ordinal, r)
		case errors.Is(err, core.ErrUnparsableAmount) && strict:
			return fmt.Errorf("line %d: %w", ordinal+1, err)
		default:
			skipped++
			return nil
		}
	})
	if errors.Is(err, core.ErrStoreMissing) {
		return nil
	}
	if skipped > 0 {
		q.logger.DebugContext(ctx, "Skipped undecodable lines", applog.FieldSkipped, skipped)
	}
	return err
}

// ListAll returns every decodable record in file order.
func (q *Query[R]) ListAll(ctx context.Context) ([]R, error) {
	var out []R
	err := q.each(ctx, false, func(_ int, r R) error {
		out = append(out, r)
		return nil
	})
	q.logger.Op(ctx, applog.OpList, err, applog.FieldCount, len(out))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FilterByCategory returns the records whose category equals cat exactly.
func (q *Query[R]) FilterByCategory(ctx context.Context, cat string) (Filtered[R], error) {
	return q.filter(ctx, func(r R) bool { return r.CategoryName() == cat })
}

// FilterByDate returns the records whose date token equals date exactly.
func (q *Query[R]) FilterByDate(ctx context.Context, date string) (Filtered[R], error) {
	return q.filter(ctx, func(r R) bool { return r.DateToken() == date })
}

func (q *Query[R]) filter(ctx context.Context, keep func(R) bool) (Filtered[R], error) {
	var f Filtered[R]
	err := q.each(ctx, true, func(_ int, r R) error {
		if keep(r) {
			f.Records = append(f.Records, r)
			f.Total = f.Total.Add(r.Value())
		}
		return nil
	})
	q.logger.Op(ctx, applog.OpFilter, err, applog.FieldCount, len(f.Records))
	if err != nil {
		return Filtered[R]{}, err
	}
	return f, nil
}

// SumForMonth adds up the amounts of the records in month key, compared as
// configured by MonthMatch.
func (q *Query[R]) SumForMonth(ctx context.Context, key core.MonthKey) (core.Money, error) {
	var total core.Money
	err := q.each(ctx, true, func(_ int, r R) error {
		if q.match.matches(r.DateToken(), key) {
			total = total.Add(r.Value())
		}
		return nil
	})
	q.logger.Op(ctx, applog.OpSum, err, applog.FieldMonth, key.String())
	if err != nil {
		return core.Money{}, err
	}
	return total, nil
}

// Search returns the records MatchesKeyword accepts, in file order.
func (q *Query[R]) Search(ctx context.Context, keyword string) ([]R, error) {
	var out []R
	err := q.each(ctx, false, func(_ int, r R) error {
		if r.MatchesKeyword(keyword) {
			out = append(out, r)
		}
		return nil
	})
	q.logger.Op(ctx, applog.OpSearch, err, applog.FieldKeyword, keyword, applog.FieldCount, len(out))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// months calls fn with the MonthKey of every record, in file order. Records
// whose date is too short to carry one are skipped.
func (q *Query[R]) months(ctx context.Context, fn func(core.MonthKey) error) error {
	return q.each(ctx, false, func(_ int, r R) error {
		key, ok := core.MonthKeyOf(r.DateToken())
		if !ok {
			return nil
		}
		return fn(key)
	})
}
