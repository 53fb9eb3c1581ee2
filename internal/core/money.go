// Package core provides money parsing and handling utilities.
//
// Amounts are decimal values with currency precision (two fractional digits).
// They are never represented as binary floating point, so summing many small
// transactions does not drift.
package core

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Money is a non-negative currency amount with at most two decimal places.
// The zero value is a valid zero amount.
type Money struct {
	d decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// MaxMoney is the largest accepted amount. Amounts are stored as int64 cents,
// which must also hold their sums.
var MaxMoney = Money{d: decimal.New(99999999999999, -2)}

// NewMoney wraps a decimal value. The result is not validated.
func NewMoney(d decimal.Decimal) Money {
	return Money{d: d}
}

// MoneyFromCents builds an amount from integer minor units.
func MoneyFromCents(cents int64) Money {
	return Money{d: decimal.New(cents, -2)}
}

// MustParseMoney is ParseMoney for constants and tests.
func MustParseMoney(s string) Money {
	m, err := ParseMoney(s)
	if err != nil {
		panic(fmt.Sprintf("core: MustParseMoney(%q): %v", s, err))
	}
	return m
}

// ParseMoney converts a decimal string to an amount with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. Zero is accepted; signs,
// exponents and anything that is not a plain decimal are rejected.
//
// Examples:
//
//	ParseMoney("12.34")  -> 12.34
//	ParseMoney("12,34")  -> 12.34
//	ParseMoney("12.345") -> 12.35 (half-up)
//	ParseMoney("12.344") -> 12.34
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "-") {
		return Zero, ErrNegativeAmount
	}
	if strings.HasPrefix(s, "+") {
		return Zero, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 || strings.Join(parts, "") == "" {
		return Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return Zero, ErrInvalidAmount
			}
		}
	}
	if parts[0] == "" {
		s = "0" + s
	}
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	// Round is half away from zero, which is half-up for non-negative values.
	m := Money{d: d.Round(2)}
	if m.d.GreaterThan(MaxMoney.d) {
		return Zero, ErrAmountTooLarge
	}
	return m, nil
}

// Validate enforces the persisted amount invariants.
func (m Money) Validate() error {
	if m.d.IsNegative() {
		return ErrNegativeAmount
	}
	if !m.d.Equal(m.d.Round(2)) {
		return ErrAmountPrecision
	}
	if m.d.GreaterThan(MaxMoney.d) {
		return ErrAmountTooLarge
	}
	return nil
}

// Cents returns the amount in integer minor units, truncating anything past
// the second decimal place.
func (m Money) Cents() int64 {
	return m.d.Shift(2).IntPart()
}

// Decimal exposes the underlying decimal value.
func (m Money) Decimal() decimal.Decimal {
	return m.d
}

func (m Money) Add(o Money) Money {
	return Money{d: m.d.Add(o.d)}
}

func (m Money) Sub(o Money) Money {
	return Money{d: m.d.Sub(o.d)}
}

func (m Money) IsZero() bool {
	return m.d.IsZero()
}

func (m Money) Equal(o Money) bool {
	return m.d.Equal(o.d)
}

func (m Money) GreaterThan(o Money) bool {
	return m.d.GreaterThan(o.d)
}

// String formats the amount with exactly two decimals.
func (m Money) String() string {
	return m.d.StringFixed(2)
}

// MarshalJSON encodes the amount as a quoted decimal string to keep precision.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// UnmarshalJSON accepts either a quoted decimal string or a bare JSON number.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*m = Zero
		return nil
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// SumMoney adds up the amounts of the given transactions.
func SumMoney(txs []Transaction) Money {
	total := Zero
	for _, t := range txs {
		total = total.Add(t.Amount)
	}
	return total
}
