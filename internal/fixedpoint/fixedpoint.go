package fixedpoint

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal digits kept after the point.
const Scale = 4

// ErrInvalidNumber is returned when a field is not a decimal number or does
// not fit in a scaled int64.
var ErrInvalidNumber = errors.New("invalid decimal number")

var (
	maxScaled = decimal.NewFromInt(math.MaxInt64)
	minScaled = decimal.NewFromInt(math.MinInt64)
)

// Value is a decimal number stored as an integer multiple of 10^-Scale.
type Value int64

// Parse converts a decimal string such as "0.01234500" to a Value.
func Parse(s string) (Value, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}

	scaled := d.Shift(Scale).Truncate(0)
	if scaled.GreaterThan(maxScaled) || scaled.LessThan(minScaled) {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidNumber, s)
	}
	return Value(scaled.IntPart()), nil
}

// MustParse is like Parse but panics on error. Intended for constants and tests.
func MustParse(s string) Value {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FromUnits builds a Value from a whole number (5 -> "5.0000").
func FromUnits(n int64) Value {
	return Value(n * pow10(Scale))
}

// Decimal returns the exact decimal representation.
func (v Value) Decimal() decimal.Decimal {
	return decimal.New(int64(v), -Scale)
}

// Float64 returns the nearest float. Only for metrics and display.
func (v Value) Float64() float64 {
	return v.Decimal().InexactFloat64()
}

// String renders the value with exactly Scale decimal places.
func (v Value) String() string {
	return v.Decimal().StringFixed(Scale)
}

func pow10(n int) int64 {
	p := int64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}
