// Package codec converts ledger records to and from single delimited lines.
package codec

import (
	"fmt"
	"strings"

	"monity/internal/core"
)

// AmountPolicy decides what Decode does with an amount token that is not a
// number.
type AmountPolicy int

const (
	// CoerceZero reads the numeric prefix of an unparsable amount, 0.00
	// when there is none.
	CoerceZero AmountPolicy = iota
	// Reject fails the record with core.ErrUnparsableAmount.
	Reject
)

func (p AmountPolicy) String() string {
	switch p {
	case CoerceZero:
		return "coerce"
	case Reject:
		return "reject"
	default:
		return fmt.Sprintf("AmountPolicy(%d)", int(p))
	}
}

// ParseAmountPolicy maps a configuration value to a policy.
func ParseAmountPolicy(s string) (AmountPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "coerce":
		return CoerceZero, nil
	case "reject":
		return Reject, nil
	default:
		return CoerceZero, fmt.Errorf("invalid amount policy '%s': must be one of [coerce reject]", s)
	}
}

// Codec encodes and decodes one record kind.
type Codec[R core.Entry] interface {
	Kind() core.Kind
	Encode(r R) (string, error)
	Decode(line string) (R, error)
}

// ExpenseCodec handles description,amount,category,date lines.
type ExpenseCodec struct {
	Policy AmountPolicy
}

// IncomeCodec handles category,amount,date lines.
type IncomeCodec struct {
	Policy AmountPolicy
}

var (
	_ Codec[core.ExpenseRecord] = ExpenseCodec{}
	_ Codec[core.IncomeRecord]  = IncomeCodec{}
)

func (ExpenseCodec) Kind() core.Kind { return core.ExpenseLedger }

// Encode returns the line for e, newline included.
func (ExpenseCodec) Encode(e core.ExpenseRecord) (string, error) {
	return join(e.Description, e.Amount.String(), e.Category, e.Date)
}

func (c ExpenseCodec) Decode(line string) (core.ExpenseRecord, error) {
	tok, err := split(line, 4)
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	amount, err := c.Policy.amount(tok[1])
	if err != nil {
		return core.ExpenseRecord{}, err
	}
	return core.ExpenseRecord{
		Description: tok[0],
		Amount:      amount,
		Category:    tok[2],
		Date:        tok[3],
	}, nil
}

func (IncomeCodec) Kind() core.Kind { return core.IncomeLedger }

// Encode returns the line for i, newline included.
func (IncomeCodec) Encode(i core.IncomeRecord) (string, error) {
	return join(i.Category, i.Amount.String(), i.Date)
}

func (c IncomeCodec) Decode(line string) (core.IncomeRecord, error) {
	tok, err := split(line, 3)
	if err != nil {
		return core.IncomeRecord{}, err
	}
	amount, err := c.Policy.amount(tok[1])
	if err != nil {
		return core.IncomeRecord{}, err
	}
	return core.IncomeRecord{
		Category: tok[0],
		Amount:   amount,
		Date:     tok[2],
	}, nil
}

// Canonical decodes line and encodes it again without the terminator. It is
// the form records are compared by during a rewrite.
func Canonical[R core.Entry](c Codec[R], line string) (string, error) {
	r, err := c.Decode(line)
	if err != nil {
		return "", err
	}
	return CanonicalOf(c, r)
}

// CanonicalOf is the canonical line of an already decoded record.
func CanonicalOf[R core.Entry](c Codec[R], r R) (string, error) {
	enc, err := c.Encode(r)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(enc, "\n"), nil
}

// TrimLine strips the record terminator.
func TrimLine(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

func join(fields ...string) (string, error) {
	for _, f := range fields {
		if core.HasDelimiter(f) {
			return "", fmt.Errorf("%w: %q", core.ErrDelimiterInField, f)
		}
	}
	return strings.Join(fields, core.Delimiter) + "\n", nil
}

// split returns the first n tokens of line. Tokens past n are ignored.
func split(line string, n int) ([]string, error) {
	tok := strings.Split(TrimLine(line), core.Delimiter)
	if len(tok) < n {
		return nil, fmt.Errorf("%w: want %d fields, got %d", core.ErrMalformedRecord, n, len(tok))
	}
	return tok[:n], nil
}

func (p AmountPolicy) amount(tok string) (core.Money, error) {
	m, err := core.ParseAmount(tok)
	if err == nil {
		return m, nil
	}
	if p == Reject {
		return core.Money{}, fmt.Errorf("%w: %q", err, tok)
	}
	return core.LeadingAmount(tok), nil
}
