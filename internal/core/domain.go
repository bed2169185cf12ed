package core

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Delimiter separates fields on a ledger line.
	Delimiter = ","

	// DateLen is the width of a DD/MM/YY date token.
	DateLen = 8

	// MaxTextLen is the practical limit of a free text field in bytes.
	MaxTextLen = 49

	monthKeyOffset = 3
)

const (
	ExpenseLedger Kind = "expenses"
	IncomeLedger  Kind = "incomes"
)

type (
	// Kind names one of the two ledgers.
	Kind string

	Money struct {
		Cents int64
	}

	// MonthKey is the MM/YY part of a date token.
	MonthKey string

	ExpenseRecord struct {
		Description string
		Amount      Money
		Category    string
		Date        string // DD/MM/YY
	}

	IncomeRecord struct {
		Category string
		Amount   Money
		Date     string // DD/MM/YY
	}

	// Entry is what the query and mutation engines need from a record.
	Entry interface {
		CategoryName() string
		DateToken() string
		Value() Money
		MatchesKeyword(keyword string) bool
		Validate() error
	}
)

var (
	ErrStoreUnavailable    = errors.New("cannot access ledger")
	ErrStoreMissing        = fmt.Errorf("ledger file does not exist: %w", ErrStoreUnavailable)
	ErrMalformedRecord     = errors.New("malformed record")
	ErrUnparsableAmount    = errors.New("unparsable amount")
	ErrSelectionOutOfRange = errors.New("selection out of range")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrDelimiterInField    = errors.New("field contains delimiter")
	ErrStaleSelection      = errors.New("selected record changed since it was listed")
	ErrNoMatches           = errors.New("no matching records")

	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrFieldTooLong     = errors.New("field too long (max 49 bytes)")
	ErrInvalidDate      = errors.New("date must be 8 characters (DD/MM/YY)")
	ErrInvalidKind      = errors.New("unknown ledger")
)

func (k Kind) String() string {
	return string(k)
}

// IsValid reports whether k names a known ledger.
func (k Kind) IsValid() bool {
	switch k {
	case ExpenseLedger, IncomeLedger:
		return true
	default:
		return false
	}
}

// MonthKeyOf extracts the MM/YY part of a DD/MM/YY token. The bool is false
// when the token is too short to hold one.
func MonthKeyOf(date string) (MonthKey, bool) {
	if len(date) < DateLen {
		return "", false
	}
	return MonthKey(date[monthKeyOffset:DateLen]), true
}

func (m MonthKey) String() string {
	return string(m)
}

func (e ExpenseRecord) CategoryName() string { return e.Category }
func (e ExpenseRecord) DateToken() string    { return e.Date }
func (e ExpenseRecord) Value() Money         { return e.Amount }

// MatchesKeyword reports whether keyword occurs in the description or the
// category.
func (e ExpenseRecord) MatchesKeyword(keyword string) bool {
	return strings.Contains(e.Description, keyword) || strings.Contains(e.Category, keyword)
}

func (e ExpenseRecord) Validate() error {
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if err := validateText(e.Description); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if err := validateText(e.Category); err != nil {
		return err
	}
	return validateDate(e.Date)
}

func (i IncomeRecord) CategoryName() string { return i.Category }
func (i IncomeRecord) DateToken() string    { return i.Date }
func (i IncomeRecord) Value() Money         { return i.Amount }

// MatchesKeyword reports whether keyword occurs in the category.
func (i IncomeRecord) MatchesKeyword(keyword string) bool {
	return strings.Contains(i.Category, keyword)
}

func (i IncomeRecord) Validate() error {
	if strings.TrimSpace(i.Category) == "" {
		return ErrEmptyCategory
	}
	if err := validateText(i.Category); err != nil {
		return err
	}
	return validateDate(i.Date)
}

func validateText(s string) error {
	if len(s) > MaxTextLen {
		return ErrFieldTooLong
	}
	if HasDelimiter(s) {
		return ErrDelimiterInField
	}
	return nil
}

func validateDate(d string) error {
	if HasDelimiter(d) {
		return ErrDelimiterInField
	}
	if len(d) != DateLen {
		return ErrInvalidDate
	}
	return nil
}

// HasDelimiter reports whether s would break the line format.
func HasDelimiter(s string) bool {
	return strings.ContainsAny(s, Delimiter+"\n\r")
}
