// Package money implements the Money value type used across the
// authorization and settlement pipelines. Amounts are arbitrary-precision
// decimals tagged with a currency; arithmetic across mismatched currencies
// is rejected rather than silently coerced.
package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Currency is a closed set of ISO 4217-style currency codes this core
// understands. Unknown codes are rejected at construction time.
type Currency string

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	USDC Currency = "USDC"
)

var minorUnits = map[Currency]int32{
	USD:  2,
	EUR:  2,
	GBP:  2,
	USDC: 2,
}

// Valid reports whether c is a currency this core can post money in.
func (c Currency) Valid() bool {
	_, ok := minorUnits[c]
	return ok
}

// MinorUnit returns the number of fractional digits used to round amounts
// in this currency (2 for all currently supported currencies).
func (c Currency) MinorUnit() int32 {
	return minorUnits[c]
}

var (
	// ErrUnsupportedCurrency is returned when a currency code outside the
	// closed set above is used to construct a Money value.
	ErrUnsupportedCurrency = errors.New("money: unsupported currency")
	// ErrCurrencyMismatch is returned by any arithmetic or comparison
	// operation between two Money values carrying different currencies.
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	// ErrInvalidAmount is returned when an amount string cannot be parsed
	// as a decimal number.
	ErrInvalidAmount = errors.New("money: invalid amount")
)

// Money is an immutable amount in a given currency, rounded to the
// currency's minor unit at construction time.
type Money struct {
	amount   decimal.Decimal
	currency Currency
}

// New builds a Money value from a decimal.Decimal amount, rounding to the
// currency's minor unit using round-half-up.
func New(amount decimal.Decimal, currency Currency) (Money, error) {
	if !currency.Valid() {
		return Money{}, fmt.Errorf("%w: %q", ErrUnsupportedCurrency, currency)
	}
	return Money{
		amount:   amount.Round(currency.MinorUnit()),
		currency: currency,
	}, nil
}

// NewFromString parses amount as a decimal string and builds a Money value.
func NewFromString(amount string, currency Currency) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return New(d, currency)
}

// Zero returns a zero-valued Money in the given currency.
func Zero(currency Currency) Money {
	m, _ := New(decimal.Zero, currency)
	return m
}

// Amount returns the underlying decimal amount.
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency tag.
func (m Money) Currency() Currency {
	return m.currency
}

func (m Money) requireSameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}

// Add returns m + other. Both operands must share a currency.
func (m Money) Add(other Money) (Money, error) {
	if err := m.requireSameCurrency(other); err != nil {
		return Money{}, err
	}
	return New(m.amount.Add(other.amount), m.currency)
}

// Sub returns m - other. Both operands must share a currency.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.requireSameCurrency(other); err != nil {
		return Money{}, err
	}
	return New(m.amount.Sub(other.amount), m.currency)
}

// Cmp compares m and other, returning -1, 0, or 1. Both operands must share
// a currency.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.requireSameCurrency(other); err != nil {
		return 0, err
	}
	return m.amount.Cmp(other.amount), nil
}

// GreaterThan reports whether m > other.
func (m Money) GreaterThan(other Money) (bool, error) {
	c, err := m.Cmp(other)
	return c > 0, err
}

// LessThanOrEqual reports whether m <= other.
func (m Money) LessThanOrEqual(other Money) (bool, error) {
	c, err := m.Cmp(other)
	return c <= 0, err
}

// IsNegative reports whether the amount is strictly less than zero.
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// String renders the amount with its currency code, e.g. "12.50 USD".
func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.amount.StringFixed(m.currency.MinorUnit()), m.currency)
}
