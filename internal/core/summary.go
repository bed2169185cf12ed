package core

// MonthBalance is the income/expense position of one month.
type MonthBalance struct {
	Month    MonthKey
	Income   Money
	Expenses Money
	Balance  Money
}

// NewMonthBalance computes Balance from the two totals.
func NewMonthBalance(month MonthKey, income, expenses Money) MonthBalance {
	return MonthBalance{
		Month:    month,
		Income:   income,
		Expenses: expenses,
		Balance:  income.Sub(expenses),
	}
}
