package domain

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// MinorUnitExponent is the number of decimal places carried by Money.
const MinorUnitExponent = 2

// ErrInvalidMoney reports amounts that cannot be represented as Money.
var ErrInvalidMoney = errors.New("money: invalid amount")

// Money is an amount in minor units (1/100) of the store currency.
type Money int64

// NewMoney builds Money from whole and fractional minor units, e.g. NewMoney(109, 95) == 109.95.
func NewMoney(major int64, minor int64) Money {
	return Money(major*100 + minor)
}

// MoneyFromDecimal rounds the decimal half away from zero to the nearest minor unit.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	scaled := d.Shift(MinorUnitExponent).Round(0)
	if !scaled.IsInteger() || scaled.Abs().GreaterThan(decimal.NewFromInt(1<<53)) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidMoney, d.String())
	}
	return Money(scaled.IntPart()), nil
}

// ParseMoney parses decimal text such as "490", "490.5" or "490.00".
func ParseMoney(raw string) (Money, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidMoney)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidMoney, err)
	}
	return MoneyFromDecimal(d)
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -MinorUnitExponent)
}

// String renders the amount with exactly two decimal places.
func (m Money) String() string {
	return m.Decimal().StringFixed(MinorUnitExponent)
}

// Percent returns pct percent of m, rounded half away from zero.
func (m Money) Percent(pct int64) Money {
	if pct == 0 || m == 0 {
		return 0
	}
	share := decimal.NewFromInt(int64(m)).Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100)).Round(0)
	return Money(share.IntPart())
}

// MarshalJSON writes the amount as a JSON number in major units.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

// UnmarshalJSON accepts JSON numbers and numeric strings in major units.
func (m *Money) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*m = 0
		return nil
	}
	parsed, err := ParseMoney(strings.Trim(string(trimmed), `"`))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
