package domain

import (
	"strings"

	"fund-transfers/internal/errors"
)

type Currency string

const (
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	USD Currency = "USD"
)

func (c Currency) Valid() bool {
	switch c {
	case EUR, GBP, USD:
		return true
	}
	return false
}

func (c Currency) String() string {
	return string(c)
}

// ParseCurrency accepts a currency code in any case, surrounding spaces ignored.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", errors.ErrInvalidCurrency.WithDetails("got " + s)
	}
	return c, nil
}
