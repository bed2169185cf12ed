package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"monity/internal/core"
	applog "monity/internal/log"

	_ "modernc.org/sqlite"
)

// Mirror is a SQLite copy of the flat file ledgers, rebuilt from them on
// every sync. The flat files stay the source of truth.
type Mirror struct {
	db     *sql.DB
	logger *applog.Logger
}

// SyncState records the last successful sync of one ledger.
type SyncState struct {
	Ledger   core.Kind
	Records  int
	SyncedAt time.Time
}

func OpenMirror(dbPath string, logger *applog.Logger) (*Mirror, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// a single connection keeps writes serialized
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Mirror{db: db, logger: applog.OrDiscard(logger).WithComponent(applog.ComponentMirror)}, nil
}

func (m *Mirror) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}

// ReplaceExpenses swaps the mirrored expenses for records in one transaction.
func (m *Mirror) ReplaceExpenses(ctx context.Context, records []core.ExpenseRecord) error {
	err := m.replace(ctx, core.ExpenseLedger, len(records), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO expenses (ordinal, description, amount_cents, category, date, month_key) VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		for i, r := range records {
			if _, err := stmt.ExecContext(ctx, i, r.Description, r.Amount.Cents, r.Category, r.Date, monthKey(r.Date)); err != nil {
				return fmt.Errorf("insert expense %d: %w", i, err)
			}
		}
		return nil
	})
	m.logger.Op(ctx, applog.OpSync, err, applog.FieldLedger, core.ExpenseLedger.String(), applog.FieldCount, len(records))
	return err
}

// ReplaceIncomes swaps the mirrored incomes for records in one transaction.
func (m *Mirror) ReplaceIncomes(ctx context.Context, records []core.IncomeRecord) error {
	err := m.replace(ctx, core.IncomeLedger, len(records), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO incomes (ordinal, category, amount_cents, date, month_key) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()
		for i, r := range records {
			if _, err := stmt.ExecContext(ctx, i, r.Category, r.Amount.Cents, r.Date, monthKey(r.Date)); err != nil {
				return fmt.Errorf("insert income %d: %w", i, err)
			}
		}
		return nil
	})
	m.logger.Op(ctx, applog.OpSync, err, applog.FieldLedger, core.IncomeLedger.String(), applog.FieldCount, len(records))
	return err
}

func (m *Mirror) replace(ctx context.Context, kind core.Kind, n int, insert func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// kind is one of two fixed table names
	if _, err := tx.ExecContext(ctx, "DELETE FROM "+kind.String()); err != nil {
		return fmt.Errorf("clear %s: %w", kind, err)
	}
	if err := insert(tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sync_state (ledger, records, synced_at) VALUES (?, ?, ?)
		 ON CONFLICT(ledger) DO UPDATE SET records = excluded.records, synced_at = excluded.synced_at`,
		kind.String(), n, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("record sync state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of mirrored records of kind.
func (m *Mirror) Count(ctx context.Context, kind core.Kind) (int, error) {
	if !kind.IsValid() {
		return 0, core.ErrInvalidKind
	}
	var n int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+kind.String()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", kind, err)
	}
	return n, nil
}

// LastSync returns the sync state of kind. ok is false if it never synced.
func (m *Mirror) LastSync(ctx context.Context, kind core.Kind) (state SyncState, ok bool, err error) {
	var synced string
	err = m.db.QueryRowContext(ctx, `SELECT records, synced_at FROM sync_state WHERE ledger = ?`, kind.String()).
		Scan(&state.Records, &synced)
	if err == sql.ErrNoRows {
		return SyncState{}, false, nil
	}
	if err != nil {
		return SyncState{}, false, fmt.Errorf("get sync state: %w", err)
	}
	state.Ledger = kind
	state.SyncedAt, err = time.Parse(time.RFC3339, synced)
	if err != nil {
		return SyncState{}, false, fmt.Errorf("parse sync time: %w", err)
	}
	return state, true, nil
}

// MonthTotals returns income, expenses and balance per MonthKey, ordered by
// key. Months are compared exactly; dates without a MonthKey are left out.
func (m *Mirror) MonthTotals(ctx context.Context) ([]core.MonthBalance, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT month_key, SUM(income), SUM(spent) FROM (
			SELECT month_key, amount_cents AS income, 0 AS spent FROM incomes WHERE month_key != ''
			UNION ALL
			SELECT month_key, 0, amount_cents FROM expenses WHERE month_key != ''
		) GROUP BY month_key ORDER BY month_key`)
	if err != nil {
		return nil, fmt.Errorf("query month totals: %w", err)
	}
	defer rows.Close()

	var out []core.MonthBalance
	for rows.Next() {
		var key string
		var income, spent int64
		if err := rows.Scan(&key, &income, &spent); err != nil {
			return nil, fmt.Errorf("scan month total: %w", err)
		}
		out = append(out, core.NewMonthBalance(core.MonthKey(key), core.Money{Cents: income}, core.Money{Cents: spent}))
	}
	return out, rows.Err()
}

func monthKey(date string) string {
	k, _ := core.MonthKeyOf(date)
	return string(k)
}
