package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidFormat is returned when a monetary amount cannot be parsed.
var ErrInvalidFormat = errors.New("money: invalid amount format")

// ErrCurrencyMismatch is returned when arithmetic mixes currencies.
var ErrCurrencyMismatch = errors.New("money: currency mismatch")

// Money is an exact decimal amount in a fixed currency. Internal precision
// exceeds display precision; rounding happens only at the minor-unit boundary.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// FromString parses a decimal amount such as "19.99".
func FromString(value, currency string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Money{}, fmt.Errorf("empty amount: %w", ErrInvalidFormat)
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return Money{}, fmt.Errorf("parse %q: %w", value, ErrInvalidFormat)
	}
	return Money{amount: d, currency: normalizeCurrency(currency)}, nil
}

// FromFloat converts a binary float into an exact decimal amount.
func FromFloat(value float64, currency string) Money {
	return Money{amount: decimal.NewFromFloat(value), currency: normalizeCurrency(currency)}
}

// FromMinorUnits converts an integer minor-unit amount (cents) into Money.
func FromMinorUnits(cents int64, currency string) Money {
	return Money{amount: decimal.NewFromInt(cents).Shift(-2), currency: normalizeCurrency(currency)}
}

// Zero returns the zero amount for the given currency.
func Zero(currency string) Money {
	return Money{amount: decimal.Zero, currency: normalizeCurrency(currency)}
}

// Add returns m + o.
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(o.amount), currency: m.currency}, nil
}

// Sub returns m - o.
func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(o.amount), currency: m.currency}, nil
}

// MulInt returns m multiplied by an integer quantity.
func (m Money) MulInt(n int) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(int64(n))), currency: m.currency}
}

// MulBps multiplies by a basis-point rate (e.g. 1900 bps = 19%) without rounding.
func (m Money) MulBps(bps int) Money {
	rate := decimal.NewFromInt(int64(bps)).Shift(-4)
	return Money{amount: m.amount.Mul(rate), currency: m.currency}
}

// Equal reports exact decimal equality within the same currency.
func (m Money) Equal(o Money) bool {
	return m.currency == o.currency && m.amount.Equal(o.amount)
}

// GreaterOrEqual reports m >= o. Amounts in different currencies never compare.
func (m Money) GreaterOrEqual(o Money) bool {
	return m.currency == o.currency && m.amount.GreaterThanOrEqual(o.amount)
}

// LessThan reports m < o.
func (m Money) LessThan(o Money) bool {
	return m.currency == o.currency && m.amount.LessThan(o.amount)
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// MinorUnits rounds to the minor-unit boundary using round-half-up and
// returns the integer cent amount. This is the single rounding point.
func (m Money) MinorUnits() int64 {
	return m.amount.Shift(2).Round(0).IntPart()
}

// Currency returns the ISO currency code.
func (m Money) Currency() string {
	return m.currency
}

// String renders the amount with two decimal places.
func (m Money) String() string {
	return m.amount.StringFixed(2)
}

// Format renders the amount with its currency symbol for display.
func (m Money) Format() string {
	if sym, ok := currencySymbols[m.currency]; ok {
		return sym + m.amount.StringFixed(2)
	}
	return m.currency + " " + m.amount.StringFixed(2)
}

var currencySymbols = map[string]string{
	"EUR": "€",
	"USD": "$",
	"GBP": "£",
	"IDR": "Rp",
}

func (m Money) sameCurrency(o Money) error {
	if m.currency != o.currency {
		return fmt.Errorf("%s vs %s: %w", m.currency, o.currency, ErrCurrencyMismatch)
	}
	return nil
}

func normalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
