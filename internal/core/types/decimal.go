// Package types provides common type aliases and utilities.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value or a unit cost with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

const (
	// MoneyScale is the number of fractional digits kept for journal amounts.
	MoneyScale int32 = 2
	// CostScale is the number of fractional digits kept for average unit costs.
	CostScale int32 = 6
)

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// RoundMoney rounds an amount to MoneyScale.
func RoundMoney(m Money) Money {
	return m.Round(MoneyScale)
}

// RoundCost rounds a unit cost to CostScale.
func RoundCost(m Money) Money {
	return m.Round(CostScale)
}

// Quantity is a fixed-point quantity with 4 decimal places (scale = 1e4).
//
// Matches Postgres NUMERIC(15,4) semantics without floating point errors and
// is stored as BIGINT (scaled integer).
type Quantity int64

const QuantityScale int64 = 10_000

const quantityExp int32 = -4

// NewQuantity creates a whole-unit quantity.
func NewQuantity(units int64) Quantity { return Quantity(units * QuantityScale) }

// ErrQuantityRange is returned when a quantity does not fit the fixed-point range.
var ErrQuantityRange = errors.New("quantity out of range")

var (
	maxQuantityDecimal = decimal.New(math.MaxInt64, quantityExp)
	minQuantityDecimal = decimal.New(math.MinInt64, quantityExp)
)

// NewQuantityFromDecimal converts a decimal to a Quantity, truncating beyond 4 digits.
// Values outside the fixed-point range return ErrQuantityRange.
func NewQuantityFromDecimal(d decimal.Decimal) (Quantity, error) {
	if d.GreaterThan(maxQuantityDecimal) || d.LessThan(minQuantityDecimal) {
		return 0, fmt.Errorf("%w: %s", ErrQuantityRange, d.String())
	}
	return Quantity(d.Shift(-quantityExp).Truncate(0).IntPart()), nil
}

// AddQuantity returns a+b, or ErrQuantityRange when the sum overflows.
func AddQuantity(a, b Quantity) (Quantity, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, fmt.Errorf("%w: %s + %s", ErrQuantityRange, a, b)
	}
	return sum, nil
}

// SubQuantity returns a-b, or ErrQuantityRange when the difference overflows.
func SubQuantity(a, b Quantity) (Quantity, error) {
	diff := a - b
	if (b > 0 && diff > a) || (b < 0 && diff < a) {
		return 0, fmt.Errorf("%w: %s - %s", ErrQuantityRange, a, b)
	}
	return diff, nil
}

// MustQuantity parses a quantity literal, panics on error.
// Use only for constants and tests.
func MustQuantity(s string) Quantity {
	q, err := parseQuantityString(s)
	if err != nil {
		panic(err)
	}
	return q
}

func NewQuantityFromInt64Scaled(v int64) Quantity { return Quantity(v) }

func (q Quantity) Int64Scaled() int64 { return int64(q) }

// Decimal returns the quantity as an exact decimal for cost arithmetic.
func (q Quantity) Decimal() decimal.Decimal { return decimal.New(int64(q), quantityExp) }

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

func (q Quantity) Neg() Quantity { return -q }

func (q Quantity) Abs() Quantity {
	if q < 0 {
		return -q
	}
	return q
}

// String returns a decimal string with 4 fractional digits.
func (q Quantity) String() string {
	neg := q < 0
	v := q
	if neg {
		v = -v
	}
	intPart := int64(v) / QuantityScale
	frac := int64(v) % QuantityScale
	if neg {
		return fmt.Sprintf("-%d.%04d", intPart, frac)
	}
	return fmt.Sprintf("%d.%04d", intPart, frac)
}

// MarshalJSON encodes Quantity as JSON number (not string), preserving 4 digits.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts either a JSON number or string and parses to fixed-point (4 digits).
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}

	parsed, err := parseQuantityString(string(data))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

func parseQuantityString(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}

	if strings.ContainsAny(s, "eE") {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return 0, fmt.Errorf("parse quantity: %w", err)
		}
		return NewQuantityFromDecimal(d)
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	intPartStr, fracStr, _ := strings.Cut(s, ".")
	if intPartStr == "" && fracStr == "" {
		return 0, fmt.Errorf("parse quantity %q: no digits", s)
	}
	if !allDigits(intPartStr) || !allDigits(fracStr) {
		return 0, fmt.Errorf("parse quantity %q: invalid syntax", s)
	}
	if intPartStr == "" {
		intPartStr = "0"
	}

	// Normalize fractional part to 4 digits (pad right, truncate extra digits).
	if len(fracStr) > 4 {
		fracStr = fracStr[:4]
	}
	for len(fracStr) < 4 {
		fracStr += "0"
	}
	frac, _ := strconv.ParseInt(fracStr, 10, 64)

	intPart, err := strconv.ParseInt(intPartStr, 10, 64)
	if err != nil || intPart > (math.MaxInt64-frac)/QuantityScale {
		return 0, fmt.Errorf("%w: %s", ErrQuantityRange, s)
	}

	v := intPart*QuantityScale + frac
	if neg {
		v = -v
	}
	return Quantity(v), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
