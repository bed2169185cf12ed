package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"monity/internal/core"
)

// barUnit is the balance one history bar stands for, in whole currency units.
const barUnit = 50

// money renders an amount for people: "$1,203.50".
func money(m core.Money) string {
	return "$" + humanize.FormatFloat("#,###.##", m.Float())
}

// bars draws one block per barUnit of balance. Negative balances get none.
func bars(balance core.Money) string {
	n := balance.Cents / 100 / barUnit
	if n <= 0 {
		return ""
	}
	return strings.Repeat("█", int(n))
}

// styles colours interactive output when it goes to a terminal and renders
// plain text otherwise.
type styles struct {
	title   lipgloss.Style
	faint   lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		title:   r.NewStyle().Foreground(lipgloss.Color("#89b4fa")).Bold(true),
		faint:   r.NewStyle().Foreground(lipgloss.Color("#7f849c")),
		success: r.NewStyle().Foreground(lipgloss.Color("#a6e3a1")),
		failure: r.NewStyle().Foreground(lipgloss.Color("#f38ba8")),
	}
}

// row is one record as the interactive tables show it.
type row struct {
	description string
	amount      core.Money
	category    string
	date        string
}

func expenseRow(e core.ExpenseRecord) row {
	return row{description: e.Description, amount: e.Amount, category: e.Category, date: e.Date}
}

func incomeRow(i core.IncomeRecord) row {
	return row{amount: i.Amount, category: i.Category, date: i.Date}
}

// writeTable prints rows as aligned columns. Incomes have no description
// column.
func writeTable(out io.Writer, rows []row, withDescription bool) {
	tw := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	if withDescription {
		fmt.Fprintln(tw, "Description\tAmount\tCategory\tDate")
	} else {
		fmt.Fprintln(tw, "Category\tAmount\tDate")
	}
	for _, r := range rows {
		if withDescription {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.description, money(r.amount), r.category, r.date)
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", r.category, money(r.amount), r.date)
		}
	}
	tw.Flush()
}

func historyLine(b core.MonthBalance) string {
	return fmt.Sprintf("%-6s  income %12s  spent %12s  balance %12s | %s",
		b.Month, money(b.Income), money(b.Expenses), money(b.Balance), bars(b.Balance))
}
