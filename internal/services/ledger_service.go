// Package services ties the ledger engines to the query cache and the change
// event publisher. Front ends talk to a LedgerService only.
package services

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"monity/internal/amqp"
	"monity/internal/cache"
	"monity/internal/codec"
	"monity/internal/core"
	"monity/internal/ledger"
	applog "monity/internal/log"
	"monity/internal/storage"
)

// Publisher receives an event after every committed change.
type Publisher interface {
	PublishLedgerEvent(ctx context.Context, e *amqp.LedgerEvent) error
}

// Options configures the engines behind a LedgerService.
type Options struct {
	Dir           string
	ExpensesFile  string
	IncomesFile   string
	AmountPolicy  codec.AmountPolicy
	MonthMatch    ledger.MonthMatch
	MatchMode     ledger.MatchMode
	MaxCandidates int
	MaxMonths     int
}

func (o Options) path(name, fallback string) string {
	if name == "" {
		name = fallback
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.Dir, name)
}

// shared is what both books need from the service.
type shared struct {
	totals    cache.Cache[core.Money]
	publisher Publisher
	logger    *applog.Logger
}

// LedgerService orchestrates the expense and income ledgers.
type LedgerService struct {
	Expenses *Book[core.ExpenseRecord]
	Incomes  *Book[core.IncomeRecord]

	history *ledger.History
}

// NewLedgerService builds the engines. totals and publisher may be nil.
func NewLedgerService(opts Options, totals cache.Cache[core.Money], publisher Publisher, logger *applog.Logger) *LedgerService {
	logger = applog.OrDiscard(logger)
	sh := &shared{totals: totals, publisher: publisher, logger: logger.WithComponent(applog.ComponentService)}

	expStore := storage.NewLedger[core.ExpenseRecord](
		opts.path(opts.ExpensesFile, storage.ExpensesFile), codec.ExpenseCodec{Policy: opts.AmountPolicy}, logger)
	incStore := storage.NewLedger[core.IncomeRecord](
		opts.path(opts.IncomesFile, storage.IncomesFile), codec.IncomeCodec{Policy: opts.AmountPolicy}, logger)

	expenses := newBook(expStore, opts, sh, logger)
	incomes := newBook(incStore, opts, sh, logger)

	history := ledger.NewHistory(incomes.query, expenses.query, opts.MaxMonths, logger).
		WithTotals(incomes.Total, expenses.Total)

	return &LedgerService{
		Expenses: expenses,
		Incomes:  incomes,
		history:  history,
	}
}

// Balance is the month's income minus its expenses.
func (s *LedgerService) Balance(ctx context.Context, key core.MonthKey) (core.MonthBalance, error) {
	return s.history.MonthlyBalance(ctx, key)
}

// History returns the balance of every month found in the ledgers, in
// discovery order.
func (s *LedgerService) History(ctx context.Context) ([]core.MonthBalance, error) {
	return s.history.Report(ctx)
}

// Refresh drops the cached totals of a ledger another process may have
// changed.
func (s *LedgerService) Refresh(ctx context.Context, kind core.Kind) error {
	switch kind {
	case core.ExpenseLedger:
		s.Expenses.invalidate(ctx)
	case core.IncomeLedger:
		s.Incomes.invalidate(ctx)
	default:
		return fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}
	return nil
}

// Months lists the distinct months found in the ledgers.
func (s *LedgerService) Months(ctx context.Context) ([]core.MonthKey, error) {
	return s.history.DistinctMonths(ctx)
}

// Book is one ledger seen through the service: reads go through the totals
// cache, writes invalidate it and publish a change event.
type Book[R core.Entry] struct {
	// writeMu serializes appends and rewrites of this ledger.
	writeMu sync.Mutex
	// version counts invalidations; a total summed across one is not cached.
	version atomic.Uint64

	store  *storage.Ledger[R]
	query  *ledger.Query[R]
	mut    *ledger.Mutator[R]
	shared *shared
	logger *applog.Logger
}

func newBook[R core.Entry](store *storage.Ledger[R], opts Options, sh *shared, logger *applog.Logger) *Book[R] {
	return &Book[R]{
		store:  store,
		query:  ledger.NewQuery[R](store, opts.MonthMatch, logger),
		mut:    ledger.NewMutator[R](store, opts.MatchMode, opts.MaxCandidates, logger),
		shared: sh,
		logger: sh.logger.With(applog.FieldLedger, store.Kind().String()),
	}
}

func (b *Book[R]) Kind() core.Kind { return b.store.Kind() }

// Path is the ledger file.
func (b *Book[R]) Path() string { return b.store.Path() }

// Line renders r the way the ledger stores it, without the terminator.
func (b *Book[R]) Line(r R) (string, error) {
	return codec.CanonicalOf(b.store.Codec(), r)
}

// Add validates r and appends it.
func (b *Book[R]) Add(ctx context.Context, r R) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid %s record: %w", b.Kind(), err)
	}
	b.writeMu.Lock()
	err := b.store.Append(ctx, r)
	b.writeMu.Unlock()
	if err != nil {
		return err
	}
	line, _ := b.Line(r)
	b.changed(ctx, amqp.OpAppend, line, 1)
	return nil
}

func (b *Book[R]) List(ctx context.Context) ([]R, error) {
	return b.query.ListAll(ctx)
}

func (b *Book[R]) ByCategory(ctx context.Context, category string) (ledger.Filtered[R], error) {
	return b.query.FilterByCategory(ctx, category)
}

func (b *Book[R]) ByDate(ctx context.Context, date string) (ledger.Filtered[R], error) {
	return b.query.FilterByDate(ctx, date)
}

func (b *Book[R]) Search(ctx context.Context, keyword string) ([]R, error) {
	return b.query.Search(ctx, keyword)
}

// Total sums the month's amounts, served from the cache when present.
func (b *Book[R]) Total(ctx context.Context, key core.MonthKey) (core.Money, error) {
	cacheKey := cache.Key(b.Kind().String(), "sum", b.query.MonthMatch().String(), key.String())
	if b.shared.totals != nil {
		if v, ok := b.shared.totals.Get(cacheKey); ok {
			b.logger.DebugContext(ctx, "Month total served from cache", applog.FieldMonth, key.String())
			return v, nil
		}
	}
	seen := b.version.Load()
	total, err := b.query.SumForMonth(ctx, key)
	if err != nil {
		return core.Money{}, err
	}
	if b.shared.totals != nil {
		b.shared.totals.Set(cacheKey, total)
		if b.version.Load() != seen {
			b.shared.totals.Delete(cacheKey)
		}
	}
	return total, nil
}

// Candidates lists the records matching keyword for Delete and Edit.
func (b *Book[R]) Candidates(ctx context.Context, keyword string) ([]ledger.Candidate[R], error) {
	return b.mut.Collect(ctx, keyword)
}

func (b *Book[R]) Delete(ctx context.Context, candidates []ledger.Candidate[R], selection int) (ledger.Result, error) {
	b.writeMu.Lock()
	res, err := b.mut.Delete(ctx, candidates, selection)
	b.writeMu.Unlock()
	if err != nil {
		return res, err
	}
	b.changed(ctx, amqp.OpDelete, candidates[selection].Line, res.Affected)
	return res, nil
}

func (b *Book[R]) Edit(ctx context.Context, candidates []ledger.Candidate[R], selection int, replacement R) (ledger.Result, error) {
	b.writeMu.Lock()
	res, err := b.mut.Edit(ctx, candidates, selection, replacement)
	b.writeMu.Unlock()
	if err != nil {
		return res, err
	}
	line, _ := b.Line(replacement)
	b.changed(ctx, amqp.OpEdit, line, res.Affected)
	return res, nil
}

// DeleteMatching collects the candidates for keyword and deletes the one at
// selection in a single call.
func (b *Book[R]) DeleteMatching(ctx context.Context, keyword string, selection int) (ledger.Result, error) {
	cands, err := b.Candidates(ctx, keyword)
	if err != nil {
		return ledger.Result{}, err
	}
	if len(cands) == 0 {
		return ledger.Result{}, fmt.Errorf("%w for %q", core.ErrNoMatches, keyword)
	}
	return b.Delete(ctx, cands, selection)
}

// EditMatching collects the candidates for keyword and replaces the one at
// selection in a single call.
func (b *Book[R]) EditMatching(ctx context.Context, keyword string, selection int, replacement R) (ledger.Result, error) {
	cands, err := b.Candidates(ctx, keyword)
	if err != nil {
		return ledger.Result{}, err
	}
	if len(cands) == 0 {
		return ledger.Result{}, fmt.Errorf("%w for %q", core.ErrNoMatches, keyword)
	}
	return b.Edit(ctx, cands, selection, replacement)
}

// invalidate drops the cached totals of this ledger. The version is bumped
// first so a Total racing with it does not keep what it summed.
func (b *Book[R]) invalidate(ctx context.Context) {
	b.version.Add(1)
	if b.shared.totals != nil {
		n := b.shared.totals.DeletePrefix(b.Kind().String() + ":")
		b.logger.DebugContext(ctx, "Invalidated cached totals", applog.FieldCount, n)
	}
}

// changed drops the cached totals of this ledger and publishes an event.
// A publish failure is logged only: the change is already committed.
func (b *Book[R]) changed(ctx context.Context, op amqp.Op, line string, affected int) {
	b.invalidate(ctx)
	if b.shared.publisher == nil {
		return
	}
	event := amqp.NewLedgerEvent(b.Kind(), op, line, affected)
	if err := b.shared.publisher.PublishLedgerEvent(ctx, event); err != nil {
		b.logger.ErrorContext(ctx, "Failed to publish ledger event",
			applog.FieldEventID, event.ID,
			applog.FieldOperation, string(op),
			applog.FieldError, err)
	}
}
