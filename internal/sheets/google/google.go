// Package google exports ledger snapshots to a Google spreadsheet.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"monity/internal/core"
	applog "monity/internal/log"
	ports "monity/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Default tab names.
const (
	DefaultExpensesSheet = "Expenses"
	DefaultIncomesSheet  = "Incomes"
	DefaultHistorySheet  = "History"
)

// ErrMissingSpreadsheetID is returned by New without a spreadsheet.
var ErrMissingSpreadsheetID = errors.New("missing GOOGLE_SPREADSHEET_ID")

type Config struct {
	SpreadsheetID   string
	CredentialsJSON string // inline service account key, preferred
	CredentialsFile string // path to a service account key
	ExpensesSheet   string
	IncomesSheet    string
	HistorySheet    string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	expensesSheet string
	incomesSheet  string
	historySheet  string
	logger        *applog.Logger
}

var _ ports.Exporter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, cfg Config, logger *applog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, ErrMissingSpreadsheetID
	}
	logger = applog.OrDiscard(logger).WithComponent(applog.ComponentSheets)

	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	logger.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", cfg.SpreadsheetID)

	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		expensesSheet: orDefault(cfg.ExpensesSheet, DefaultExpensesSheet),
		incomesSheet:  orDefault(cfg.IncomesSheet, DefaultIncomesSheet),
		historySheet:  orDefault(cfg.HistorySheet, DefaultHistorySheet),
		logger:        logger,
	}, nil
}

// credentials resolves the service account key: inline JSON, then the
// configured file, then GOOGLE_APPLICATION_CREDENTIALS.
func credentials(cfg Config) ([]byte, error) {
	if s := strings.TrimSpace(cfg.CredentialsJSON); s != "" {
		return []byte(s), nil
	}
	path := strings.TrimSpace(cfg.CredentialsFile)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

func (c *Client) ExportExpenses(ctx context.Context, records []core.ExpenseRecord) error {
	return c.replace(ctx, c.expensesSheet, "D", expenseRows(records))
}

func (c *Client) ExportIncomes(ctx context.Context, records []core.IncomeRecord) error {
	return c.replace(ctx, c.incomesSheet, "C", incomeRows(records))
}

func (c *Client) ExportHistory(ctx context.Context, report []core.MonthBalance) error {
	return c.replace(ctx, c.historySheet, "D", historyRows(report))
}

// replace clears columns A..lastCol of sheet and writes rows from A1.
func (c *Client) replace(ctx context.Context, sheet, lastCol string, rows [][]any) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	clearRange := fmt.Sprintf("%s!A:%s", sheet, lastCol)
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		c.logger.Op(ctx, applog.OpExport, err, "sheet", sheet)
		return fmt.Errorf("clear %s: %w", clearRange, err)
	}

	writeRange := fmt.Sprintf("%s!A1:%s%d", sheet, lastCol, len(rows))
	vr := &gsheet.ValueRange{Values: rows}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, writeRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		c.logger.Op(ctx, applog.OpExport, err, "sheet", sheet)
		return fmt.Errorf("update %s: %w", writeRange, err)
	}

	c.logger.Op(ctx, applog.OpExport, nil, "sheet", sheet, applog.FieldCount, len(rows)-1)
	return nil
}

// The first row of every export is a header. Amounts are written as numbers
// so the sheet can sum them.

func expenseRows(records []core.ExpenseRecord) [][]any {
	rows := make([][]any, 0, len(records)+1)
	rows = append(rows, []any{"Description", "Amount", "Category", "Date"})
	for _, r := range records {
		rows = append(rows, []any{r.Description, r.Amount.Float(), r.Category, r.Date})
	}
	return rows
}

func incomeRows(records []core.IncomeRecord) [][]any {
	rows := make([][]any, 0, len(records)+1)
	rows = append(rows, []any{"Category", "Amount", "Date"})
	for _, r := range records {
		rows = append(rows, []any{r.Category, r.Amount.Float(), r.Date})
	}
	return rows
}

func historyRows(report []core.MonthBalance) [][]any {
	rows := make([][]any, 0, len(report)+1)
	rows = append(rows, []any{"Month", "Income", "Expenses", "Balance"})
	for _, b := range report {
		// leading apostrophe keeps "06/24" from being read as a date
		rows = append(rows, []any{"'" + b.Month.String(), b.Income.Float(), b.Expenses.Float(), b.Balance.Float()})
	}
	return rows
}

func orDefault(s, def string) string {
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}
