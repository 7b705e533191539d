package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrCurrencyMismatch is returned when arithmetic mixes two currencies.
	ErrCurrencyMismatch = errors.New("currency mismatch")
	// ErrUnknownCurrency is returned for a currency code without a known minor unit.
	ErrUnknownCurrency = errors.New("unknown currency")
)

// minorUnits maps ISO-4217 codes to their default fraction digits.
var minorUnits = map[string]int32{
	"AUD": 2,
	"BHD": 3,
	"CAD": 2,
	"CHF": 2,
	"CNY": 2,
	"EUR": 2,
	"GBP": 2,
	"HKD": 2,
	"JPY": 0,
	"KRW": 0,
	"KWD": 3,
	"SGD": 2,
	"USD": 2,
}

// CurrencyScale returns the number of fraction digits used by a currency.
func CurrencyScale(currency string) (int32, error) {
	scale, ok := minorUnits[strings.ToUpper(currency)]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}
	return scale, nil
}

// Money is an amount in a single currency, held at the currency's minor-unit scale.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney creates a Money rounding half-up to the currency scale.
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	currency = strings.ToUpper(currency)
	scale, err := CurrencyScale(currency)
	if err != nil {
		return Money{}, err
	}
	return Money{amount: amount.Round(scale), currency: currency}, nil
}

// ParseMoney parses a decimal string into Money.
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return NewMoney(d, currency)
}

// MustMoney is ParseMoney that panics on error. Intended for fixtures and constants.
func MustMoney(amount, currency string) Money {
	m, err := ParseMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney returns a zero amount in the given currency.
func ZeroMoney(currency string) (Money, error) {
	return NewMoney(decimal.Zero, currency)
}

// Amount returns the scaled decimal amount.
func (m Money) Amount() decimal.Decimal { return m.amount }

// Currency returns the ISO-4217 currency code.
func (m Money) Currency() string { return m.currency }

// Add returns m + other.
func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return NewMoney(m.amount.Add(other.amount), m.currency)
}

// Subtract returns m - other.
func (m Money) Subtract(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return NewMoney(m.amount.Sub(other.amount), m.currency)
}

// Multiply returns m * factor rounded half-up to the currency scale.
func (m Money) Multiply(factor decimal.Decimal) Money {
	out, _ := NewMoney(m.amount.Mul(factor), m.currency)
	return out
}

// Compare returns -1, 0 or 1 like decimal.Cmp.
func (m Money) Compare(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	return m.amount.Cmp(other.amount), nil
}

// Mod returns the remainder of m divided by unit.
func (m Money) Mod(unit Money) (Money, error) {
	if err := m.sameCurrency(unit); err != nil {
		return Money{}, err
	}
	if unit.amount.IsZero() {
		return m, nil
	}
	return NewMoney(m.amount.Mod(unit.amount), m.currency)
}

func (m Money) IsZero() bool     { return m.amount.IsZero() }
func (m Money) IsPositive() bool { return m.amount.IsPositive() }
func (m Money) IsNegative() bool { return m.amount.IsNegative() }

// MinorUnits returns the amount expressed in the currency's smallest unit.
func (m Money) MinorUnits() int64 {
	scale, _ := CurrencyScale(m.currency)
	return m.amount.Shift(scale).IntPart()
}

// Equals checks value equality including currency.
func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// StringFixed returns the amount with exactly the currency's fraction digits.
func (m Money) StringFixed() string {
	scale, _ := CurrencyScale(m.currency)
	return m.amount.StringFixed(scale)
}

func (m Money) String() string {
	return m.StringFixed() + " " + m.currency
}

type moneyJSON struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON encodes Money as {"amount":"100.00","currency":"CNY"}.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.StringFixed(), Currency: m.currency})
}

// UnmarshalJSON decodes the format produced by MarshalJSON.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseMoney(raw.Amount, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}
