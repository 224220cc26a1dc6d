package models

import (
	"database/sql/driver"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is an amount in minor units (paise). All ledger arithmetic happens on
// this integer type; decimal is only used at the JSON and SQL boundaries.
type Money int64

// ParseMoney parses a decimal amount with at most two fractional digits
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return MoneyFromDecimal(d)
}

// MaxMoney is the largest amount a NUMERIC(12,2) column holds
const MaxMoney Money = 999999999999

// MoneyFromDecimal converts d to minor units, rejecting sub-paisa precision
// and amounts beyond MaxMoney in either direction
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if !d.Round(2).Equal(d) {
		return 0, ValidationError{Field: "amount", Msg: fmt.Sprintf("%s has more than 2 decimal places", d.String())}
	}
	if d.Abs().GreaterThan(MaxMoney.Decimal()) {
		return 0, ValidationError{Field: "amount", Msg: fmt.Sprintf("%s exceeds %s", d.String(), MaxMoney.String())}
	}
	return Money(d.Shift(2).IntPart()), nil
}

// NewMoney builds an amount from whole rupees and paise
func NewMoney(rupees, paise int64) Money {
	return Money(rupees*100 + paise)
}

// Decimal returns the amount as a two-place decimal
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// String formats the amount with exactly two decimals, e.g. "7000.00"
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// MarshalJSON writes the amount as a JSON number with two decimals
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts either a JSON number or a quoted decimal string
func (m *Money) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}
	v, err := MoneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Value stores the amount as a NUMERIC(12,2) literal
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan reads a NUMERIC column
func (m *Money) Scan(src interface{}) error {
	var d decimal.Decimal
	if err := d.Scan(src); err != nil {
		return fmt.Errorf("failed to scan amount: %w", err)
	}
	v, err := MoneyFromDecimal(d.Round(2))
	if err != nil {
		return err
	}
	*m = v
	return nil
}
