package http

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"monity/internal/core"
)

// maxBodyBytes caps request bodies; a record is a few hundred bytes.
const maxBodyBytes = 64 << 10

// recordJSON is the wire form of both record kinds. Description is empty
// for incomes. Amounts travel as decimal strings.
type recordJSON struct {
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	Category    string `json:"category"`
	Date        string `json:"date"`
}

func expenseToJSON(r core.ExpenseRecord) recordJSON {
	return recordJSON{Description: r.Description, Amount: r.Amount.String(), Category: r.Category, Date: r.Date}
}

func incomeToJSON(r core.IncomeRecord) recordJSON {
	return recordJSON{Amount: r.Amount.String(), Category: r.Category, Date: r.Date}
}

func expenseFromJSON(j recordJSON) (core.ExpenseRecord, error) {
	amount, err := core.ParseAmount(j.Amount)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	return core.ExpenseRecord{
		Description: sanitizeInput(j.Description),
		Amount:      amount,
		Category:    sanitizeInput(j.Category),
		Date:        sanitizeInput(j.Date),
	}, nil
}

func incomeFromJSON(j recordJSON) (core.IncomeRecord, error) {
	amount, err := core.ParseAmount(j.Amount)
	if err != nil {
		return core.IncomeRecord{}, err
	}
	return core.IncomeRecord{
		Amount:   amount,
		Category: sanitizeInput(j.Category),
		Date:     sanitizeInput(j.Date),
	}, nil
}

type balanceJSON struct {
	Month    string `json:"month"`
	Income   string `json:"income"`
	Expenses string `json:"expenses"`
	Balance  string `json:"balance"`
}

func balanceToJSON(b core.MonthBalance) balanceJSON {
	return balanceJSON{
		Month:    b.Month.String(),
		Income:   b.Income.String(),
		Expenses: b.Expenses.String(),
		Balance:  b.Balance.String(),
	}
}

type errorJSON struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorJSON{Error: msg})
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrStoreMissing), errors.Is(err, core.ErrNoMatches):
		return http.StatusNotFound
	case errors.Is(err, core.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrStaleSelection):
		return http.StatusConflict
	case errors.Is(err, core.ErrCapacityExceeded), errors.Is(err, core.ErrUnparsableAmount):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrSelectionOutOfRange),
		errors.Is(err, core.ErrDelimiterInField),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrFieldTooLong),
		errors.Is(err, core.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidKind):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}
