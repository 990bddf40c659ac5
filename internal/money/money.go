// Package money holds the rounding and formatting rules shared by every
// balance-moving operation. Amounts are decimal.Decimal values in dollars.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

const microsPerDollar = 6

var (
	Zero = decimal.Zero

	ErrInvalidAmount = errors.New("amount must be a positive dollar value")
)

// Cents rounds half away from zero to two places.
func Cents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Milli rounds half away from zero to three places. Only the sub-cent flows
// (opening fee, daily fee, tiny begging proceeds, coin prices) use it.
func Milli(d decimal.Decimal) decimal.Decimal {
	return d.Round(3)
}

func New(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

func MustParse(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Parse reads user input such as "1.5", "$0.25" or "2,000.10" and rounds it
// to cents. Zero and negative values are rejected.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return Zero, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, ErrInvalidAmount
	}
	d = Cents(d)
	if !d.IsPositive() {
		return Zero, ErrInvalidAmount
	}
	return d, nil
}

// Uniform maps a draw u in [0,1) onto [lo, lo+span).
func Uniform(u float64, span, lo decimal.Decimal) decimal.Decimal {
	return decimal.NewFromFloat(u).Mul(span).Add(lo)
}

func ToMicros(d decimal.Decimal) int64 {
	return d.Shift(microsPerDollar).Round(0).IntPart()
}

func FromMicros(v int64) decimal.Decimal {
	return decimal.New(v, -microsPerDollar)
}

// Format renders cents with a leading sign for debits: "$1.23", "-$0.50".
func Format(d decimal.Decimal) string {
	return format(d, 2)
}

// FormatMilli keeps the third place so that $0.005 fees stay visible.
func FormatMilli(d decimal.Decimal) string {
	return format(d, 3)
}

func format(d decimal.Decimal, places int32) string {
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(places)
	}
	return "$" + d.StringFixed(places)
}

// Sum adds signed amounts without intermediate rounding.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
