package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"monity/internal/codec"
	"monity/internal/core"
	applog "monity/internal/log"
)

const (
	// ExpensesFile and IncomesFile are the default ledger file names.
	ExpensesFile = "expenses.txt"
	IncomesFile  = "incomes.txt"

	filePerm = 0o644
)

// Ledger is the append-only flat file holding one kind of record.
type Ledger[R core.Entry] struct {
	path   string
	codec  codec.Codec[R]
	logger *applog.Logger
}

// NewLedger opens nothing; the file is created on first Append.
func NewLedger[R core.Entry](path string, c codec.Codec[R], logger *applog.Logger) *Ledger[R] {
	return &Ledger[R]{
		path:  path,
		codec: c,
		logger: applog.OrDiscard(logger).
			WithComponent(applog.ComponentStorage).
			With(applog.NewFields().WithLedger(c.Kind().String(), path).ToSlice()...),
	}
}

// NewExpenseLedger is the expenses.txt ledger under dir.
func NewExpenseLedger(dir string, policy codec.AmountPolicy, logger *applog.Logger) *Ledger[core.ExpenseRecord] {
	return NewLedger[core.ExpenseRecord](filepath.Join(dir, ExpensesFile), codec.ExpenseCodec{Policy: policy}, logger)
}

// NewIncomeLedger is the incomes.txt ledger under dir.
func NewIncomeLedger(dir string, policy codec.AmountPolicy, logger *applog.Logger) *Ledger[core.IncomeRecord] {
	return NewLedger[core.IncomeRecord](filepath.Join(dir, IncomesFile), codec.IncomeCodec{Policy: policy}, logger)
}

func (l *Ledger[R]) Path() string { return l.path }

func (l *Ledger[R]) Codec() codec.Codec[R] { return l.codec }

func (l *Ledger[R]) Kind() core.Kind { return l.codec.Kind() }

// Append encodes r and writes it as the last line of the file, creating the
// file if needed.
func (l *Ledger[R]) Append(ctx context.Context, r R) error {
	line, err := l.codec.Encode(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		l.logger.Op(ctx, applog.OpAppend, err)
		return fmt.Errorf("%w: open %s: %w", core.ErrStoreUnavailable, l.path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		l.logger.Op(ctx, applog.OpAppend, err)
		return fmt.Errorf("%w: write %s: %w", core.ErrStoreUnavailable, l.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", core.ErrStoreUnavailable, l.path, err)
	}

	l.logger.Op(ctx, applog.OpAppend, nil)
	return nil
}

// Scan calls fn for every line of the file in order. ordinal is the zero
// based line number. The file is read once; call Scan again to rescan.
//
// A missing file yields core.ErrStoreMissing. An error returned by fn stops
// the scan and is returned as is.
func (l *Ledger[R]) Scan(ctx context.Context, fn func(ordinal int, line string) error) error {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", core.ErrStoreMissing, l.path)
		}
		return fmt.Errorf("%w: open %s: %w", core.ErrStoreUnavailable, l.path, err)
	}
	defer f.Close()

	// Lines have no length limit; an oversized one reaches fn like any other.
	r := bufio.NewReader(f)
	for ordinal := 0; ; ordinal++ {
		line, readErr := r.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return fmt.Errorf("%w: read %s: %w", core.ErrStoreUnavailable, l.path, readErr)
		}
		if line == "" {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
		if err := fn(ordinal, line); err != nil {
			return err
		}
		if readErr == io.EOF {
			return nil
		}
	}
}

// Exists reports whether the ledger file has been created.
func (l *Ledger[R]) Exists() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

// LineWriter receives the lines of a rewrite.
type LineWriter struct {
	w     *bufio.Writer
	lines int
}

// WriteLine writes line followed by a newline. A trailing newline already
// present in line is not doubled.
func (w *LineWriter) WriteLine(line string) error {
	if _, err := w.w.WriteString(codec.TrimLine(line)); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	w.lines++
	return nil
}

// Lines is the number of lines written so far.
func (w *LineWriter) Lines() int {
	return w.lines
}

// Rewrite replaces the ledger with the lines fn writes. The new content goes
// to a temporary file in the same directory, which is flushed, synced and
// closed before it is renamed over the ledger. If fn or any step fails the
// temporary file is removed and the ledger is left as it was.
func (l *Ledger[R]) Rewrite(ctx context.Context, fn func(w *LineWriter) error) error {
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".tmp.*")
	if err != nil {
		l.logger.Op(ctx, applog.OpRewrite, err)
		return fmt.Errorf("%w: create temp file in %s: %w", core.ErrStoreUnavailable, dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	lw := &LineWriter{w: bufio.NewWriter(tmp)}
	if err := fn(lw); err != nil {
		l.logger.Op(ctx, applog.OpRewrite, err)
		return err
	}
	if err := lw.w.Flush(); err != nil {
		return fmt.Errorf("%w: flush %s: %w", core.ErrStoreUnavailable, tmpName, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", core.ErrStoreUnavailable, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", core.ErrStoreUnavailable, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", core.ErrStoreUnavailable, tmpName, err)
	}
	if err := Replace(tmpName, l.path); err != nil {
		if !errors.Is(err, ErrNotDurable) {
			l.logger.Op(ctx, applog.OpRewrite, err)
			return err
		}
		// The new content is in place; only its durability is in doubt.
		l.logger.WarnContext(ctx, "Ledger rewritten but not synced", applog.FieldError, err)
	}
	committed = true

	l.logger.Op(ctx, applog.OpRewrite, nil, applog.FieldCount, lw.lines)
	return nil
}

// ErrNotDurable reports that Replace renamed the file but could not sync its
// directory. The replacement is visible; it may not survive a crash.
var ErrNotDurable = errors.New("rename not synced to disk")

// Replace atomically renames a fully written temporary file over finalPath
// and syncs the directory so the rename is durable.
func Replace(tempPath, finalPath string) error {
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("%w: replace %s: %w", core.ErrStoreUnavailable, finalPath, err)
	}
	if err := syncDir(filepath.Dir(finalPath)); err != nil {
		return fmt.Errorf("%w: sync directory of %s: %w", ErrNotDurable, finalPath, err)
	}
	return nil
}

// syncDir is replaced in tests.
var syncDir = fsyncDir

func fsyncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
