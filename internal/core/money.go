// Package core provides money parsing and handling utilities.
//
// Amounts are whole Vietnamese đồng. Input comes from a form field that
// groups thousands with dots ("1.500.000"), so parsing strips the grouping
// before reading the number.
package core

import (
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// CurrencyCode is the ISO code of every amount handled by the module.
const CurrencyCode = money.VND

// maxAmount keeps sums of realistic rosters far from int64 overflow.
var maxAmount = decimal.New(1, 15)

// ParseAmount converts a user-entered amount to Money.
//
// Dots and spaces are treated as thousands separators and removed. The
// remaining text must be a positive whole number of đồng.
//
// Examples:
//
//	ParseAmount("1.500.000") -> Money{Dong: 1500000}, nil
//	ParseAmount("500000")    -> Money{Dong: 500000}, nil
//	ParseAmount("0")         -> Money{}, ErrInvalidAmount
//	ParseAmount("12,5")      -> Money{}, ErrInvalidAmount
func ParseAmount(s string) (Money, error) {
	s = strings.NewReplacer(".", "", " ", "", "\u00a0", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return Money{}, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	if !d.IsPositive() || d.GreaterThan(maxAmount) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Dong: d.IntPart()}, nil
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Dong: m.Dong + o.Dong}
}

// Sub returns m - o. The result may be negative.
func (m Money) Sub(o Money) Money {
	return Money{Dong: m.Dong - o.Dong}
}

// Display formats the amount with the currency grapheme for exports and logs.
func (m Money) Display() string {
	return money.New(m.Dong, CurrencyCode).Display()
}
