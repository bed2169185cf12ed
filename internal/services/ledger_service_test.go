package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monity/internal/amqp"
	"monity/internal/core"
	"monity/internal/ledger"
)

// mapCache is a synchronous cache.Cache for tests.
type mapCache struct {
	mu   sync.Mutex
	m    map[string]core.Money
	hits int
}

func newMapCache() *mapCache { return &mapCache{m: make(map[string]core.Money)} }

func (c *mapCache) Get(key string) (core.Money, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	if ok {
		c.hits++
	}
	return v, ok
}

func (c *mapCache) Set(key string, v core.Money) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = v
}

func (c *mapCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}

func (c *mapCache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k := range c.m {
		if strings.HasPrefix(k, prefix) {
			delete(c.m, k)
			n++
		}
	}
	return n
}

func (c *mapCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

type recordingPublisher struct {
	events []*amqp.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, e *amqp.LedgerEvent) error {
	p.events = append(p.events, e)
	return p.err
}

func money(t *testing.T, s string) core.Money {
	t.Helper()
	m, err := core.ParseAmount(s)
	require.NoError(t, err)
	return m
}

func newService(t *testing.T, pub Publisher) (*LedgerService, *mapCache) {
	t.Helper()
	c := newMapCache()
	svc := NewLedgerService(Options{Dir: t.TempDir()}, c, pub, nil)
	return svc, c
}

func TestLedgerService_Scenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)

	require.NoError(t, svc.Expenses.Add(ctx, core.ExpenseRecord{Description: "Coffee", Amount: money(t, "3.50"), Category: "Food", Date: "01/06/24"}))
	require.NoError(t, svc.Expenses.Add(ctx, core.ExpenseRecord{Description: "Rent", Amount: money(t, "1200.00"), Category: "Housing", Date: "01/06/24"}))
	require.NoError(t, svc.Incomes.Add(ctx, core.IncomeRecord{Category: "Salary", Amount: money(t, "2000.00"), Date: "01/06/24"}))

	total, err := svc.Expenses.Total(ctx, "06/24")
	require.NoError(t, err)
	assert.Equal(t, "1203.50", total.String())

	food, err := svc.Expenses.ByCategory(ctx, "Food")
	require.NoError(t, err)
	assert.Len(t, food.Records, 1)
	assert.Equal(t, "3.50", food.Total.String())

	b, err := svc.Balance(ctx, "06/24")
	require.NoError(t, err)
	assert.Equal(t, "796.50", b.Balance.String())

	report, err := svc.History(ctx)
	require.NoError(t, err)
	require.Len(t, report, 1)
	assert.Equal(t, b, report[0])
}

func TestLedgerService_AddValidates(t *testing.T) {
	svc, _ := newService(t, nil)
	err := svc.Incomes.Add(context.Background(), core.IncomeRecord{Category: "", Date: "01/06/24"})
	assert.ErrorIs(t, err, core.ErrEmptyCategory)

	err = svc.Expenses.Add(context.Background(), core.ExpenseRecord{Description: "a,b", Category: "x", Date: "01/06/24"})
	assert.ErrorIs(t, err, core.ErrDelimiterInField)
}

func TestLedgerService_TotalsCacheInvalidatedOnWrite(t *testing.T) {
	ctx := context.Background()
	svc, c := newService(t, nil)
	require.NoError(t, svc.Expenses.Add(ctx, core.ExpenseRecord{Description: "Coffee", Amount: money(t, "3.50"), Category: "Food", Date: "01/06/24"}))
	require.NoError(t, svc.Incomes.Add(ctx, core.IncomeRecord{Category: "Salary", Amount: money(t, "10.00"), Date: "01/06/24"}))

	_, err := svc.Expenses.Total(ctx, "06/24")
	require.NoError(t, err)
	_, err = svc.Incomes.Total(ctx, "06/24")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Size())

	total, err := svc.Expenses.Total(ctx, "06/24")
	require.NoError(t, err)
	assert.Equal(t, "3.50", total.String())
	assert.Equal(t, 1, c.hits)

	require.NoError(t, svc.Expenses.Add(ctx, core.ExpenseRecord{Description: "Tea", Amount: money(t, "2.00"), Category: "Food", Date: "02/06/24"}))
	assert.Equal(t, 1, c.Size(), "only the expense totals are dropped")

	total, err = svc.Expenses.Total(ctx, "06/24")
	require.NoError(t, err)
	assert.Equal(t, "5.50", total.String())
}

func TestLedgerService_PublishesEvents(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc, _ := newService(t, pub)

	require.NoError(t, svc.Expenses.Add(ctx, core.ExpenseRecord{Description: "Coffee", Amount: money(t, "3.50"), Category: "Food", Date: "01/06/24"}))
	require.NoError(t, svc.Expenses.Add(ctx, core.ExpenseRecord{Description: "Rent", Amount: money(t, "1200"), Category: "Housing", Date: "01/06/24"}))

	res, err := svc.Expenses.EditMatching(ctx, "Coffee", 0,
		core.ExpenseRecord{Description: "Tea", Amount: money(t, "2.00"), Category: "Food", Date: "02/06/24"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Affected)

	res, err = svc.Expenses.DeleteMatching(ctx, "Rent", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Affected)

	require.Len(t, pub.events, 4)
	assert.Equal(t, amqp.OpAppend, pub.events[0].Op)
	assert.Equal(t, "Coffee,3.50,Food,01/06/24", pub.events[0].Line)
	assert.Equal(t, amqp.OpEdit, pub.events[2].Op)
	assert.Equal(t, "Tea,2.00,Food,02/06/24", pub.events[2].Line)
	assert.Equal(t, amqp.OpDelete, pub.events[3].Op)
	assert.Equal(t, core.ExpenseLedger, pub.events[3].Ledger)

	list, err := svc.Expenses.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Tea", list[0].Description)
}

func TestLedgerService_PublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, _ := newService(t, pub)

	require.NoError(t, svc.Incomes.Add(ctx, core.IncomeRecord{Category: "Salary", Amount: money(t, "1"), Date: "01/06/24"}))
	list, err := svc.Incomes.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestLedgerService_MatchingErrors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)

	_, err := svc.Incomes.DeleteMatching(ctx, "Salary", 0)
	assert.ErrorIs(t, err, core.ErrStoreMissing)

	require.NoError(t, svc.Incomes.Add(ctx, core.IncomeRecord{Category: "Salary", Amount: money(t, "1"), Date: "01/06/24"}))
	_, err = svc.Incomes.DeleteMatching(ctx, "Bonus", 0)
	assert.ErrorIs(t, err, core.ErrNoMatches)

	_, err = svc.Incomes.DeleteMatching(ctx, "Salary", 3)
	assert.ErrorIs(t, err, core.ErrSelectionOutOfRange)
}

func TestLedgerService_Options(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	svc := NewLedgerService(Options{
		Dir:          dir,
		ExpensesFile: "outgoings.txt",
		MonthMatch:   ledger.MatchExact,
		MatchMode:    ledger.MatchContent,
		MaxMonths:    1,
	}, nil, nil, nil)
	assert.True(t, strings.HasSuffix(svc.Expenses.Path(), "outgoings.txt"))

	dup := core.ExpenseRecord{Description: "Coffee", Amount: money(t, "1"), Category: "Food", Date: "01/06/24"}
	require.NoError(t, svc.Expenses.Add(ctx, dup))
	require.NoError(t, svc.Expenses.Add(ctx, dup))

	res, err := svc.Expenses.DeleteMatching(ctx, "Coffee", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Affected)

	require.NoError(t, svc.Expenses.Add(ctx, core.ExpenseRecord{Description: "A", Amount: money(t, "1"), Category: "X", Date: "01/05/24"}))
	require.NoError(t, svc.Incomes.Add(ctx, core.IncomeRecord{Category: "B", Amount: money(t, "1"), Date: "01/07/24"}))
	_, err = svc.History(ctx)
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
}

func TestLedgerService_ConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	svc := NewLedgerService(Options{Dir: t.TempDir(), MatchMode: ledger.MatchContent}, nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := core.ExpenseRecord{Description: fmt.Sprintf("item-%02d", i), Amount: core.Money{Cents: 100}, Category: "Misc", Date: "01/06/24"}
			assert.NoError(t, svc.Expenses.Add(ctx, e))
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i += 2 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Expenses.DeleteMatching(ctx, fmt.Sprintf("item-%02d", i), 0)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	records, err := svc.Expenses.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 10)
	total, err := svc.Expenses.Total(ctx, "06/24")
	require.NoError(t, err)
	assert.Equal(t, "10.00", total.String())
}

// interleavingCache runs beforeSet once, just before storing a value, to
// commit a write between a Total's sum and its cache store.
type interleavingCache struct {
	*mapCache
	beforeSet func()
}

func (c *interleavingCache) Set(key string, v core.Money) {
	if f := c.beforeSet; f != nil {
		c.beforeSet = nil
		f()
	}
	c.mapCache.Set(key, v)
}

func TestLedgerService_TotalDoesNotCacheAcrossAWrite(t *testing.T) {
	ctx := context.Background()
	c := &interleavingCache{mapCache: newMapCache()}
	svc := NewLedgerService(Options{Dir: t.TempDir()}, c, nil, nil)
	require.NoError(t, svc.Expenses.Add(ctx, core.ExpenseRecord{Description: "Coffee", Amount: money(t, "3.50"), Category: "Food", Date: "01/06/24"}))

	c.beforeSet = func() {
		require.NoError(t, svc.Expenses.Add(ctx, core.ExpenseRecord{Description: "Rent", Amount: money(t, "1200"), Category: "Housing", Date: "01/06/24"}))
	}
	total, err := svc.Expenses.Total(ctx, "06/24")
	require.NoError(t, err)
	assert.Equal(t, "3.50", total.String(), "summed before the write committed")

	total, err = svc.Expenses.Total(ctx, "06/24")
	require.NoError(t, err)
	assert.Equal(t, "1203.50", total.String())
}

func TestLedgerService_Refresh(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c := newMapCache()
	reader := NewLedgerService(Options{Dir: dir}, c, nil, nil)
	writer := NewLedgerService(Options{Dir: dir}, nil, nil, nil)

	require.NoError(t, writer.Incomes.Add(ctx, core.IncomeRecord{Category: "Salary", Amount: money(t, "100"), Date: "01/06/24"}))
	b, err := reader.Balance(ctx, "06/24")
	require.NoError(t, err)
	assert.Equal(t, "100.00", b.Balance.String())

	require.NoError(t, writer.Incomes.Add(ctx, core.IncomeRecord{Category: "Bonus", Amount: money(t, "50"), Date: "02/06/24"}))
	b, err = reader.Balance(ctx, "06/24")
	require.NoError(t, err)
	assert.Equal(t, "100.00", b.Balance.String(), "served from the cache")

	require.NoError(t, reader.Refresh(ctx, core.IncomeLedger))
	b, err = reader.Balance(ctx, "06/24")
	require.NoError(t, err)
	assert.Equal(t, "150.00", b.Balance.String())

	assert.ErrorIs(t, reader.Refresh(ctx, core.Kind("savings")), core.ErrInvalidKind)
}
