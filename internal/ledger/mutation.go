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

// MatchMode selects which lines a delete or edit touches.
type MatchMode int

const (
	// MatchOrdinal touches only the line the candidate was collected from,
	// and only while its content is unchanged.
	MatchOrdinal MatchMode = iota
	// MatchContent touches every line whose canonical form equals the
	// candidate's. Records that encode identically are indistinguishable, so
	// one selection can remove or replace several of them.
	MatchContent
)

func (m MatchMode) String() string {
	if m == MatchContent {
		return "content"
	}
	return "ordinal"
}

// ParseMatchMode maps a configuration value to a MatchMode.
func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ordinal":
		return MatchOrdinal, nil
	case "content":
		return MatchContent, nil
	default:
		return MatchOrdinal, fmt.Errorf("invalid match mode '%s': must be one of [ordinal content]", s)
	}
}

// Candidate is a record found by keyword, offered for deletion or editing.
type Candidate[R core.Entry] struct {
	Index   int    // position in the candidate list
	Ordinal int    // line number in the ledger, zero based
	Record  R
	Line    string // canonical line
}

// Result describes a committed rewrite.
type Result struct {
	Affected int // lines removed or replaced
	Lines    int // lines in the ledger after the rewrite
}

// Mutator deletes and edits records through a full rewrite of the ledger.
type Mutator[R core.Entry] struct {
	store         Store[R]
	mode          MatchMode
	maxCandidates int
	logger        *applog.Logger
}

// NewMutator returns a Mutator. maxCandidates <= 0 means no limit.
func NewMutator[R core.Entry](store Store[R], mode MatchMode, maxCandidates int, logger *applog.Logger) *Mutator[R] {
	return &Mutator[R]{
		store:         store,
		mode:          mode,
		maxCandidates: maxCandidates,
		logger: applog.OrDiscard(logger).
			WithComponent(applog.ComponentLedger).
			With(applog.FieldLedger, store.Kind().String()),
	}
}

func (m *Mutator[R]) Kind() core.Kind { return m.store.Kind() }

// Collect lists the records matching keyword. The ledger must exist.
func (m *Mutator[R]) Collect(ctx context.Context, keyword string) ([]Candidate[R], error) {
	c := m.store.Codec()
	var out []Candidate[R]
	err := m.store.Scan(ctx, func(ordinal int, line string) error {
		r, err := c.Decode(line)
		if err != nil {
			return nil
		}
		if !r.MatchesKeyword(keyword) {
			return nil
		}
		canonical, err := codec.CanonicalOf(c, r)
		if err != nil {
			return nil
		}
		if m.maxCandidates > 0 && len(out) == m.maxCandidates {
			return fmt.Errorf("%w: more than %d records match %q", core.ErrCapacityExceeded, m.maxCandidates, keyword)
		}
		out = append(out, Candidate[R]{Index: len(out), Ordinal: ordinal, Record: r, Line: canonical})
		return nil
	})
	m.logger.Op(ctx, applog.OpSearch, err, applog.FieldKeyword, keyword, applog.FieldCount, len(out))
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Select returns candidates[selection], or core.ErrSelectionOutOfRange.
func Select[R core.Entry](candidates []Candidate[R], selection int) (Candidate[R], error) {
	if selection < 0 || selection >= len(candidates) {
		return Candidate[R]{}, fmt.Errorf("%w: %d not in [0, %d)", core.ErrSelectionOutOfRange, selection, len(candidates))
	}
	return candidates[selection], nil
}

// Delete removes the selected candidate from the ledger.
func (m *Mutator[R]) Delete(ctx context.Context, candidates []Candidate[R], selection int) (Result, error) {
	sel, err := Select(candidates, selection)
	if err != nil {
		return Result{}, err
	}
	res, err := m.rewrite(ctx, sel, nil)
	m.logger.Op(ctx, applog.OpDelete, err, applog.FieldLine, sel.Ordinal, applog.FieldAffected, res.Affected)
	return res, err
}

// Edit replaces the selected candidate with replacement. The replacement is
// validated before the ledger is touched.
func (m *Mutator[R]) Edit(ctx context.Context, candidates []Candidate[R], selection int, replacement R) (Result, error) {
	sel, err := Select(candidates, selection)
	if err != nil {
		return Result{}, err
	}
	if err := replacement.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid replacement: %w", err)
	}
	line, err := codec.CanonicalOf(m.store.Codec(), replacement)
	if err != nil {
		return Result{}, fmt.Errorf("encode replacement: %w", err)
	}
	res, err := m.rewrite(ctx, sel, &line)
	m.logger.Op(ctx, applog.OpEdit, err, applog.FieldLine, sel.Ordinal, applog.FieldAffected, res.Affected)
	return res, err
}

// rewrite copies the ledger to a temporary file, dropping the selected
// record, or writing *replacement in its place, then commits. Unmatched lines
// are copied verbatim.
func (m *Mutator[R]) rewrite(ctx context.Context, sel Candidate[R], replacement *string) (Result, error) {
	c := m.store.Codec()
	var res Result
	err := m.store.Rewrite(ctx, func(w *storage.LineWriter) error {
		err := m.store.Scan(ctx, func(ordinal int, line string) error {
			if m.selected(c, sel, ordinal, line) {
				res.Affected++
				if replacement == nil {
					return nil
				}
				return w.WriteLine(*replacement)
			}
			return w.WriteLine(line)
		})
		if err != nil {
			return err
		}
		if res.Affected == 0 {
			return fmt.Errorf("%w: line %d", core.ErrStaleSelection, sel.Ordinal+1)
		}
		res.Lines = w.Lines()
		return nil
	})
	if err != nil {
		if !errors.Is(err, core.ErrStaleSelection) {
			err = fmt.Errorf("rewrite %s: %w", m.store.Kind(), err)
		}
		return Result{}, err
	}
	return res, nil
}

func (m *Mutator[R]) selected(c codec.Codec[R], sel Candidate[R], ordinal int, line string) bool {
	if m.mode == MatchOrdinal && ordinal != sel.Ordinal {
		return false
	}
	canonical, err := codec.Canonical(c, line)
	return err == nil && canonical == sel.Line
}
