package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor currency units (cents).
type Money int64

var hundred = decimal.NewFromInt(100)

// MoneyFromDecimal converts a currency amount to cents, rounding half-up.
func MoneyFromDecimal(d decimal.Decimal) Money {
	return Money(d.Shift(2).Round(0).IntPart())
}

// ParseMoney parses a decimal string such as "12.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid money amount %q: %w", s, err)
	}
	return MoneyFromDecimal(d), nil
}

func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Times multiplies the amount by a whole quantity.
func (m Money) Times(n int) Money {
	return m * Money(n)
}

// Percent returns pct percent of m, rounded half-up to the cent.
func (m Money) Percent(pct decimal.Decimal) Money {
	return MoneyFromDecimal(m.Decimal().Mul(pct).Div(hundred))
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("invalid money amount: %w", err)
	}
	*m = MoneyFromDecimal(d)
	return nil
}

func MinMoney(a, b Money) Money {
	if a < b {
		return a
	}
	return b
}

func MaxMoney(a, b Money) Money {
	if a > b {
		return a
	}
	return b
}
