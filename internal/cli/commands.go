package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"monity/internal/config"
	"monity/internal/core"
	apphttp "monity/internal/http"
	"monity/internal/ledger"
	applog "monity/internal/log"
	"monity/internal/services"
)

// Exit statuses of Execute.
const (
	ExitOK    = 0
	ExitError = 1
	ExitUsage = 2
)

// usageError marks a command line the user got wrong.
type usageError struct{ error }

func (e usageError) Unwrap() error { return e.error }

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError{fmt.Errorf("%s expects %d argument(s), got %d", cmd.Name(), n, len(args))}
		}
		return nil
	}
}

// Options configures Execute. Zero values mean the process's standard streams
// and a service built from the configuration.
type Options struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	// Service replaces the one built from the configuration.
	Service *services.LedgerService
	Logger  *applog.Logger
}

type runner struct {
	opts       Options
	configFile string

	cfg     *config.Config
	svc     *services.LedgerService
	logger  *applog.Logger
	cleanup func()
}

// prepare loads the configuration and builds the service, once.
func (r *runner) prepare(cmd *cobra.Command, _ []string) error {
	if r.svc != nil {
		return nil
	}
	if r.opts.Service != nil {
		r.svc = r.opts.Service
		r.logger = applog.OrDiscard(r.opts.Logger)
		return nil
	}

	LoadEnvFile()
	cfg, err := LoadAndValidateConfig(r.configFile)
	if err != nil {
		return err
	}
	r.cfg = cfg
	r.logger = r.opts.Logger
	if r.logger == nil {
		r.logger = SetupLogger(cfg.LogLevel)
	}
	r.logger = r.logger.WithComponent(applog.ComponentCLI)

	svc, cleanup, err := BuildService(cfg, r.logger)
	if err != nil {
		return err
	}
	r.svc, r.cleanup = svc, cleanup
	return nil
}

func (r *runner) close() {
	if r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
}

// Execute runs the command line in args and returns the process exit status.
func Execute(ctx context.Context, args []string, opts Options) int {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}

	r := &runner{opts: opts}
	root := newRootCommand(r)
	root.SetArgs(args)
	root.SetIn(opts.In)
	root.SetOut(opts.Out)
	root.SetErr(opts.Err)

	err := root.ExecuteContext(ctx)
	r.close()
	if err == nil {
		return ExitOK
	}
	fmt.Fprintln(opts.Err, "Error:", err)
	var ue usageError
	if errors.As(err, &ue) {
		return ExitUsage
	}
	return ExitError
}

func newRootCommand(r *runner) *cobra.Command {
	root := &cobra.Command{
		Use:   "monity",
		Short: "Track expenses and incomes in plain text ledgers",
		Long: `Monity records expenses and incomes in two comma separated text files
and reports totals, balances and a monthly history.

Run without arguments for the interactive menu.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return usageError{err}
			}
			return nil
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: r.prepare,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return NewMenu(r.svc, cmd.InOrStdin(), cmd.OutOrStdout()).Run(cmd.Context())
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})
	root.PersistentFlags().StringVar(&r.configFile, "config", "", "configuration file (toml, yaml or json)")

	root.AddCommand(
		addExpenseCommand(r),
		addIncomeCommand(r),
		listCommand("list-expenses", "Print every expense", func() *services.Book[core.ExpenseRecord] { return r.svc.Expenses }),
		listCommand("list-incomes", "Print every income", func() *services.Book[core.IncomeRecord] { return r.svc.Incomes }),
		totalCommand("total-expenses", "Print the expenses of a month", func() *services.Book[core.ExpenseRecord] { return r.svc.Expenses }),
		totalCommand("total-incomes", "Print the incomes of a month", func() *services.Book[core.IncomeRecord] { return r.svc.Incomes }),
		balanceCommand(r),
		historyCommand(r),
		filterCommand(r, "filter-category", "Print the records of a category", false),
		filterCommand(r, "filter-date", "Print the records of a date", true),
		searchCommand(r),
		deleteCommand("delete-expense", func() *services.Book[core.ExpenseRecord] { return r.svc.Expenses }),
		deleteCommand("delete-income", func() *services.Book[core.IncomeRecord] { return r.svc.Incomes }),
		editCommand("edit-expense", "KEYWORD --select N [--] DESCRIPTION AMOUNT CATEGORY DATE", 4, parseExpense,
			func() *services.Book[core.ExpenseRecord] { return r.svc.Expenses }),
		editCommand("edit-income", "KEYWORD --select N [--] CATEGORY AMOUNT DATE", 3, parseIncome,
			func() *services.Book[core.IncomeRecord] { return r.svc.Incomes }),
		serveCommand(r),
	)
	return root
}

// parseExpense reads DESCRIPTION AMOUNT CATEGORY DATE.
func parseExpense(args []string) (core.ExpenseRecord, error) {
	amount, err := core.ParseAmount(args[1])
	if err != nil {
		return core.ExpenseRecord{}, fmt.Errorf("amount %q: %w", args[1], err)
	}
	return core.ExpenseRecord{Description: args[0], Amount: amount, Category: args[2], Date: args[3]}, nil
}

// parseIncome reads CATEGORY AMOUNT DATE.
func parseIncome(args []string) (core.IncomeRecord, error) {
	amount, err := core.ParseAmount(args[1])
	if err != nil {
		return core.IncomeRecord{}, fmt.Errorf("amount %q: %w", args[1], err)
	}
	return core.IncomeRecord{Category: args[0], Amount: amount, Date: args[2]}, nil
}

func addExpenseCommand(r *runner) *cobra.Command {
	return positionalOnly(&cobra.Command{
		Use:   "add-expense DESCRIPTION AMOUNT CATEGORY DATE",
		Short: "Append an expense",
		Args:  exactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := parseExpense(args)
			if err != nil {
				return err
			}
			return addRecord(cmd, r.svc.Expenses, e)
		},
	})
}

func addIncomeCommand(r *runner) *cobra.Command {
	return positionalOnly(&cobra.Command{
		Use:   "add-income CATEGORY AMOUNT DATE",
		Short: "Append an income",
		Args:  exactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parseIncome(args)
			if err != nil {
				return err
			}
			return addRecord(cmd, r.svc.Incomes, i)
		},
	})
}

// positionalOnly stops flag parsing at the first argument, so a negative
// amount such as -3.50 is read as an argument. Flags go before the record.
func positionalOnly(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// addRecord appends rec and echoes the stored line.
func addRecord[R core.Entry](cmd *cobra.Command, book *services.Book[R], rec R) error {
	if err := book.Add(cmd.Context(), rec); err != nil {
		return err
	}
	return printLines(cmd.OutOrStdout(), book, []R{rec})
}

// printLines writes records in their ledger form, one per line.
func printLines[R core.Entry](out io.Writer, book *services.Book[R], records []R) error {
	for _, rec := range records {
		line, err := book.Line(rec)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, line)
	}
	return nil
}

func listCommand[R core.Entry](name, short string, book func() *services.Book[R]) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			records, err := book().List(cmd.Context())
			if err != nil {
				return err
			}
			return printLines(cmd.OutOrStdout(), book(), records)
		},
	}
}

func totalCommand[R core.Entry](name, short string, book func() *services.Book[R]) *cobra.Command {
	return &cobra.Command{
		Use:   name + " MM/YY",
		Short: short,
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := book().Total(cmd.Context(), core.MonthKey(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), total)
			return nil
		},
	}
}

func balanceCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "balance MM/YY",
		Short: "Print a month's income minus its expenses",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := r.svc.Balance(cmd.Context(), core.MonthKey(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), b.Balance)
			return nil
		},
	}
}

func historyCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print MONTH,INCOME,EXPENSES,BALANCE for every month",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := r.svc.History(cmd.Context())
			if err != nil {
				return err
			}
			for _, b := range report {
				fmt.Fprintf(cmd.OutOrStdout(), "%s,%s,%s,%s\n", b.Month, b.Income, b.Expenses, b.Balance)
			}
			return nil
		},
	}
}

// selectBook runs fn against the book named by --ledger, which defaults to
// expenses.
func selectBook(cmd *cobra.Command, svc *services.LedgerService,
	expenses func(*services.Book[core.ExpenseRecord]) error,
	incomes func(*services.Book[core.IncomeRecord]) error,
) error {
	name, _ := cmd.Flags().GetString("ledger")
	switch core.Kind(name) {
	case core.ExpenseLedger:
		return expenses(svc.Expenses)
	case core.IncomeLedger:
		return incomes(svc.Incomes)
	default:
		return usageError{fmt.Errorf("%w: %q", core.ErrInvalidKind, name)}
	}
}

// filterRecords prints the records of book whose category, or date when
// byDate is set, equals value.
func filterRecords[R core.Entry](cmd *cobra.Command, book *services.Book[R], byDate bool, value string) error {
	var (
		res ledger.Filtered[R]
		err error
	)
	if byDate {
		res, err = book.ByDate(cmd.Context(), value)
	} else {
		res, err = book.ByCategory(cmd.Context(), value)
	}
	if err != nil {
		return err
	}
	return printLines(cmd.OutOrStdout(), book, res.Records)
}

func searchRecords[R core.Entry](cmd *cobra.Command, book *services.Book[R], keyword string) error {
	found, err := book.Search(cmd.Context(), keyword)
	if err != nil {
		return err
	}
	return printLines(cmd.OutOrStdout(), book, found)
}

func filterCommand(r *runner, name, short string, byDate bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name + " VALUE",
		Short: short,
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return selectBook(cmd, r.svc,
				func(b *services.Book[core.ExpenseRecord]) error { return filterRecords(cmd, b, byDate, args[0]) },
				func(b *services.Book[core.IncomeRecord]) error { return filterRecords(cmd, b, byDate, args[0]) })
		},
	}
	cmd.Flags().String("ledger", string(core.ExpenseLedger), "ledger to filter: expenses or incomes")
	return cmd
}

func searchCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search KEYWORD",
		Short: "Print the records containing KEYWORD",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return selectBook(cmd, r.svc,
				func(b *services.Book[core.ExpenseRecord]) error { return searchRecords(cmd, b, args[0]) },
				func(b *services.Book[core.IncomeRecord]) error { return searchRecords(cmd, b, args[0]) })
		},
	}
	cmd.Flags().String("ledger", string(core.ExpenseLedger), "ledger to search: expenses or incomes")
	return cmd
}

// listCandidates prints the candidates for keyword as "[index] line". It is
// what delete and edit do when --select is not given.
func listCandidates[R core.Entry](cmd *cobra.Command, book *services.Book[R], keyword string) error {
	cands, err := book.Candidates(cmd.Context(), keyword)
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		return fmt.Errorf("%w for %q", core.ErrNoMatches, keyword)
	}
	for _, c := range cands {
		fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s\n", c.Index, c.Line)
	}
	return nil
}

func deleteCommand[R core.Entry](name string, book func() *services.Book[R]) *cobra.Command {
	var selection int
	cmd := &cobra.Command{
		Use:   name + " KEYWORD [--select N]",
		Short: "Delete the N-th record containing KEYWORD, or list the candidates",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("select") {
				return listCandidates(cmd, book(), args[0])
			}
			res, err := book().DeleteMatching(cmd.Context(), args[0], selection)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted "+strconv.Itoa(res.Affected))
			return nil
		},
	}
	cmd.Flags().IntVar(&selection, "select", 0, "index of the candidate to delete")
	return cmd
}

func editCommand[R core.Entry](name, usage string, fields int, parse func([]string) (R, error), book func() *services.Book[R]) *cobra.Command {
	var selection int
	cmd := &cobra.Command{
		Use:   name + " " + usage,
		Short: "Replace the N-th record containing KEYWORD, or list the candidates",
		Long: "Replace the N-th record containing KEYWORD, or list the candidates.\n" +
			"Put -- before the replacement when its amount is negative.",
		Args: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("select") {
				return exactArgs(1)(cmd, args)
			}
			return exactArgs(1+fields)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("select") {
				return listCandidates(cmd, book(), args[0])
			}
			replacement, err := parse(args[1:])
			if err != nil {
				return err
			}
			res, err := book().EditMatching(cmd.Context(), args[0], selection, replacement)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "edited "+strconv.Itoa(res.Affected))
			return nil
		},
	}
	cmd.Flags().IntVar(&selection, "select", 0, "index of the candidate to replace")
	return cmd
}

func serveCommand(r *runner) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledgers as a JSON API",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := apphttp.Options{}
			if addr == "" {
				addr = ":8081"
				if r.cfg != nil {
					addr = ":" + r.cfg.Port
				}
			}
			if r.cfg != nil {
				opts.RateLimit = r.cfg.RateLimit
			}
			srv := apphttp.NewServer(addr, r.svc, opts, r.logger)

			errCh := make(chan error, 1)
			go func() {
				r.logger.Info("HTTP server starting", "addr", addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			ctx, cancel := GracefulShutdown(r.logger, nil)
			defer cancel()
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			case <-cmd.Context().Done():
			}

			shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}
			r.logger.Info("HTTP server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :PORT)")
	return cmd
}
