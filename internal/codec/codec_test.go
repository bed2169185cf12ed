package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"monity/internal/core"
)

func TestExpenseCodec_Encode(t *testing.T) {
	line, err := ExpenseCodec{}.Encode(core.ExpenseRecord{
		Description: "Coffee",
		Amount:      core.Money{Cents: 350},
		Category:    "Food",
		Date:        "01/06/24",
	})
	require.NoError(t, err)
	assert.Equal(t, "Coffee,3.50,Food,01/06/24\n", line)
}

func TestExpenseCodec_EncodeRejectsDelimiter(t *testing.T) {
	_, err := ExpenseCodec{}.Encode(core.ExpenseRecord{Description: "a,b", Category: "Food", Date: "01/06/24"})
	assert.ErrorIs(t, err, core.ErrDelimiterInField)

	_, err = IncomeCodec{}.Encode(core.IncomeRecord{Category: "Sal\nary", Date: "01/06/24"})
	assert.ErrorIs(t, err, core.ErrDelimiterInField)
}

func TestRoundTrip(t *testing.T) {
	expenses := []core.ExpenseRecord{
		{Description: "Coffee", Amount: core.Money{Cents: 350}, Category: "Food", Date: "01/06/24"},
		{Description: "Refund", Amount: core.Money{Cents: -1999}, Category: "Misc", Date: "15/07/24"},
		{Description: "Free sample", Amount: core.Money{}, Category: "Food", Date: "02/06/24"},
	}
	c := ExpenseCodec{}
	for _, e := range expenses {
		line, err := c.Encode(e)
		require.NoError(t, err)
		got, err := c.Decode(line)
		require.NoError(t, err)
		assert.Equal(t, e, got)
	}

	ic := IncomeCodec{}
	in := core.IncomeRecord{Category: "Salary", Amount: core.Money{Cents: 200000}, Date: "01/06/24"}
	line, err := ic.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, "Salary,2000.00,01/06/24\n", line)
	got, err := ic.Decode(line)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestDecode_Malformed(t *testing.T) {
	for _, line := range []string{"", "\n", "Coffee,3.50,Food", "only one field\n"} {
		_, err := ExpenseCodec{}.Decode(line)
		assert.ErrorIs(t, err, core.ErrMalformedRecord, "line %q", line)
	}
	_, err := IncomeCodec{}.Decode("Salary,2000.00\n")
	assert.ErrorIs(t, err, core.ErrMalformedRecord)
}

func TestDecode_ExtraFieldsIgnored(t *testing.T) {
	got, err := IncomeCodec{}.Decode("Salary,10.00,01/06/24,trailing\n")
	require.NoError(t, err)
	assert.Equal(t, "01/06/24", got.Date)
}

func TestDecode_CRLF(t *testing.T) {
	got, err := ExpenseCodec{}.Decode("Coffee,3.50,Food,01/06/24\r\n")
	require.NoError(t, err)
	assert.Equal(t, "01/06/24", got.Date)
}

func TestDecode_AmountPolicy(t *testing.T) {
	line := "Coffee,three,Food,01/06/24\n"

	got, err := ExpenseCodec{Policy: CoerceZero}.Decode(line)
	require.NoError(t, err)
	assert.True(t, got.Amount.IsZero())

	_, err = ExpenseCodec{Policy: Reject}.Decode(line)
	assert.ErrorIs(t, err, core.ErrUnparsableAmount)

	got, err = ExpenseCodec{Policy: CoerceZero}.Decode("Coffee,3.50abc,Food,01/06/24\n")
	require.NoError(t, err)
	assert.Equal(t, "3.50", got.Amount.String(), "the numeric prefix is kept")

	_, err = IncomeCodec{Policy: Reject}.Decode("Salary,3.50abc,01/06/24")
	assert.ErrorIs(t, err, core.ErrUnparsableAmount)
}

func TestCanonical(t *testing.T) {
	c := ExpenseCodec{}
	got, err := Canonical[core.ExpenseRecord](c, "Coffee,3.5,Food,01/06/24\n")
	require.NoError(t, err)
	assert.Equal(t, "Coffee,3.50,Food,01/06/24", got)

	_, err = Canonical[core.ExpenseRecord](c, "broken")
	assert.ErrorIs(t, err, core.ErrMalformedRecord)
}

func TestParseAmountPolicy(t *testing.T) {
	p, err := ParseAmountPolicy("")
	require.NoError(t, err)
	assert.Equal(t, CoerceZero, p)

	p, err = ParseAmountPolicy("Reject")
	require.NoError(t, err)
	assert.Equal(t, Reject, p)

	_, err = ParseAmountPolicy("ignore")
	assert.Error(t, err)
}
