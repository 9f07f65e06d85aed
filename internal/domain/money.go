package domain

import "github.com/shopspring/decimal"

// MoneyScale is the number of decimal places balances and amounts are stored with.
const MoneyScale = 8

// FitsMoneyScale reports whether d can be stored without rounding.
func FitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}
