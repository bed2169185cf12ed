package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"monity/internal/core"
	"monity/internal/ledger"
	"monity/internal/services"
)

// Menu is the interactive front end: a numbered menu read line by line from
// in. Errors are printed and the menu is shown again.
type Menu struct {
	svc   *services.LedgerService
	in    *bufio.Scanner
	out   io.Writer
	style styles
}

func NewMenu(svc *services.LedgerService, in io.Reader, out io.Writer) *Menu {
	return &Menu{svc: svc, in: bufio.NewScanner(in), out: out, style: newStyles(out)}
}

// errInputClosed ends the menu when the input runs out.
var errInputClosed = errors.New("input closed")

const rule = "-----------------------------"

// Run shows the menu until the user picks 0, the input ends, or ctx is done.
func (m *Menu) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.printMenu()
		choice, err := m.prompt("\nWhat do you want to do? [0 to 9]: ")
		if errors.Is(err, errInputClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if choice == "0" {
			return nil
		}
		if err := m.dispatch(ctx, choice); err != nil {
			if errors.Is(err, errInputClosed) {
				return nil
			}
			fmt.Fprintln(m.out, m.style.failure.Render("Error: "+err.Error()))
		}
	}
}

func (m *Menu) printMenu() {
	fmt.Fprintln(m.out, "=============================")
	fmt.Fprintln(m.out, "      "+m.style.title.Render("Monity Tracker"))
	fmt.Fprintln(m.out, "=============================")
	for _, item := range []string{
		"1. Add Expense",
		"2. List All Expenses",
		"3. Filter Expenses",
		"4. Show Month Totals",
		"5. Add Income",
		"6. Show Total Income",
		"7. Show Month Balance",
		"8. Show Monthly History",
		"9. Cleanup Options",
		"0. Exit",
	} {
		fmt.Fprintln(m.out, item)
	}
	fmt.Fprintln(m.out, rule)
}

func (m *Menu) dispatch(ctx context.Context, choice string) error {
	switch choice {
	case "1":
		return m.addExpense(ctx)
	case "2":
		return m.listExpenses(ctx)
	case "3":
		return m.filterExpenses(ctx)
	case "4":
		return m.monthTotal(ctx, m.svc.Expenses.Total, "Total spent in %s: %s\n")
	case "5":
		return m.addIncome(ctx)
	case "6":
		return m.monthTotal(ctx, m.svc.Incomes.Total, "Total income for %s: %s\n")
	case "7":
		return m.balance(ctx)
	case "8":
		return m.history(ctx)
	case "9":
		return m.cleanup(ctx)
	default:
		fmt.Fprintln(m.out, m.style.failure.Render("Invalid option. Please choose between 0 and 9."))
		return nil
	}
}

// prompt prints label and returns the next input line, trimmed.
func (m *Menu) prompt(label string) (string, error) {
	fmt.Fprint(m.out, label)
	if !m.in.Scan() {
		if err := m.in.Err(); err != nil {
			return "", err
		}
		return "", errInputClosed
	}
	return strings.TrimSpace(m.in.Text()), nil
}

func (m *Menu) promptAmount(label string) (core.Money, error) {
	s, err := m.prompt(label)
	if err != nil {
		return core.Money{}, err
	}
	return core.ParseAmount(s)
}

func (m *Menu) promptInt(label string) (int, error) {
	s, err := m.prompt(label)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return n, nil
}

func (m *Menu) readExpense() (core.ExpenseRecord, error) {
	var (
		e   core.ExpenseRecord
		err error
	)
	if e.Description, err = m.prompt("\nExpense short description: "); err != nil {
		return e, err
	}
	if e.Amount, err = m.promptAmount("How much did you spend: "); err != nil {
		return e, err
	}
	if e.Category, err = m.prompt("Expense category: "); err != nil {
		return e, err
	}
	if e.Date, err = m.prompt("When did you buy it [DD/MM/YY]: "); err != nil {
		return e, err
	}
	return e, nil
}

func (m *Menu) readIncome() (core.IncomeRecord, error) {
	var (
		i   core.IncomeRecord
		err error
	)
	if i.Category, err = m.prompt("\nIncome category: "); err != nil {
		return i, err
	}
	if i.Amount, err = m.promptAmount("Income amount: "); err != nil {
		return i, err
	}
	if i.Date, err = m.prompt("When did you receive this money [DD/MM/YY]: "); err != nil {
		return i, err
	}
	return i, nil
}

func (m *Menu) addExpense(ctx context.Context) error {
	e, err := m.readExpense()
	if err != nil {
		return err
	}
	if err := m.svc.Expenses.Add(ctx, e); err != nil {
		return err
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, m.style.success.Render("Expense added successfully!"))
	return nil
}

func (m *Menu) addIncome(ctx context.Context) error {
	i, err := m.readIncome()
	if err != nil {
		return err
	}
	if err := m.svc.Incomes.Add(ctx, i); err != nil {
		return err
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, m.style.success.Render("Income added successfully!"))
	return nil
}

func (m *Menu) listExpenses(ctx context.Context) error {
	records, err := m.svc.Expenses.List(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(m.out, "\nHere are all your expenses:")
	rows := make([]row, 0, len(records))
	for _, e := range records {
		rows = append(rows, expenseRow(e))
	}
	writeTable(m.out, rows, true)
	return nil
}

func (m *Menu) filterExpenses(ctx context.Context) error {
	fmt.Fprintln(m.out, "\nHow do you want to filter?")
	fmt.Fprintln(m.out, "1. Filter by Category")
	fmt.Fprintln(m.out, "2. Filter by Date")
	fmt.Fprintln(m.out, rule)
	choice, err := m.prompt("[1|2]: ")
	if err != nil {
		return err
	}

	var (
		res   ledger.Filtered[core.ExpenseRecord]
		label string
	)
	switch choice {
	case "1":
		cat, err := m.prompt("Category you want to filter: ")
		if err != nil {
			return err
		}
		if res, err = m.svc.Expenses.ByCategory(ctx, cat); err != nil {
			return err
		}
		label = "spent in category " + cat
	case "2":
		date, err := m.prompt("Date you want to filter: ")
		if err != nil {
			return err
		}
		if res, err = m.svc.Expenses.ByDate(ctx, date); err != nil {
			return err
		}
		label = "spent in date " + date
	default:
		fmt.Fprintln(m.out, m.style.failure.Render("Invalid option."))
		return nil
	}

	rows := make([]row, 0, len(res.Records))
	for _, e := range res.Records {
		rows = append(rows, expenseRow(e))
	}
	writeTable(m.out, rows, true)
	fmt.Fprintln(m.out, rule)
	fmt.Fprintln(m.out, res.TotalLine(label))
	return nil
}

func (m *Menu) monthTotal(ctx context.Context, total func(context.Context, core.MonthKey) (core.Money, error), format string) error {
	month, err := m.prompt("\nWhich month? [MM/YY]: ")
	if err != nil {
		return err
	}
	sum, err := total(ctx, core.MonthKey(month))
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, format, month, money(sum))
	return nil
}

func (m *Menu) balance(ctx context.Context) error {
	month, err := m.prompt("\nWhat month do you want balance for? [MM/YY]: ")
	if err != nil {
		return err
	}
	b, err := m.svc.Balance(ctx, core.MonthKey(month))
	if err != nil {
		return err
	}
	fmt.Fprintf(m.out, "Your balance in %s: %s\n", month, money(b.Balance))
	return nil
}

func (m *Menu) history(ctx context.Context) error {
	report, err := m.svc.History(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(m.out, "\n"+m.style.title.Render("Monthly Summary"))
	if len(report) == 0 {
		fmt.Fprintln(m.out, m.style.faint.Render("No records yet."))
		return nil
	}
	for _, b := range report {
		fmt.Fprintln(m.out, historyLine(b))
	}
	return nil
}

func (m *Menu) cleanup(ctx context.Context) error {
	fmt.Fprintln(m.out, "\nWhat do you want to do?")
	fmt.Fprintln(m.out, "1. Delete an Entry")
	fmt.Fprintln(m.out, "2. Edit an Entry")
	fmt.Fprintln(m.out, rule)
	action, err := m.prompt("[1|2]: ")
	if err != nil {
		return err
	}
	if action != "1" && action != "2" {
		fmt.Fprintln(m.out, m.style.failure.Render("Invalid option."))
		return nil
	}

	fmt.Fprintln(m.out, "1. Expense")
	fmt.Fprintln(m.out, "2. Income")
	which, err := m.prompt("[1|2]: ")
	if err != nil {
		return err
	}
	switch which {
	case "1":
		return cleanupBook(ctx, m, m.svc.Expenses, action == "2", m.readExpense)
	case "2":
		return cleanupBook(ctx, m, m.svc.Incomes, action == "2", m.readIncome)
	default:
		fmt.Fprintln(m.out, m.style.failure.Render("Invalid option."))
		return nil
	}
}

// cleanupBook lists the records matching a keyword and deletes the chosen
// one, or replaces it with a record read by read when edit is set.
func cleanupBook[R core.Entry](ctx context.Context, m *Menu, book *services.Book[R], edit bool, read func() (R, error)) error {
	keyword, err := m.prompt("What keyword do you want to search? ")
	if err != nil {
		return err
	}
	cands, err := book.Candidates(ctx, keyword)
	if err != nil {
		return err
	}
	if len(cands) == 0 {
		fmt.Fprintln(m.out, m.style.faint.Render("No entries match "+strconv.Quote(keyword)+"."))
		return nil
	}
	for _, c := range cands {
		fmt.Fprintf(m.out, "[%d] %s\n", c.Index, c.Line)
	}

	verb := "delete"
	if edit {
		verb = "edit"
	}
	sel, err := m.promptInt(fmt.Sprintf("Which entry do you want to %s? [0 to %d]: ", verb, len(cands)-1))
	if err != nil {
		return err
	}

	if !edit {
		if _, err := book.Delete(ctx, cands, sel); err != nil {
			return err
		}
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, m.style.success.Render("Entry deleted successfully!"))
		return nil
	}

	// Reject a bad selection before asking for the replacement.
	if _, err := ledger.Select(cands, sel); err != nil {
		return err
	}
	replacement, err := read()
	if err != nil {
		return err
	}
	if _, err := book.Edit(ctx, cands, sel, replacement); err != nil {
		return err
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, m.style.success.Render("Entry edited successfully!"))
	return nil
}
