// Package fixed implements the unsigned fixed-point representation used for
// rate feed values: a 64-bit raw magnitude with 8 fractional decimal digits.
// All arithmetic is checked; results that do not fit the 64-bit range fail
// with a typed error instead of wrapping around.
package fixed

import (
	"math/big"
	"math/bits"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

const (
	// FracDigits is the number of fractional decimal digits carried by a Value.
	FracDigits = 8
	// ExternalFracDigits is the fractional precision of the external
	// representation consumed by legacy readers (fraction over 10^24).
	ExternalFracDigits = 24

	// Scale is the raw magnitude of 1.0.
	Scale uint64 = 100_000_000
)

// conversionFactor is 10^(ExternalFracDigits-FracDigits), the power of ten
// between the internal and external representations.
var conversionFactor = uint256.NewInt(10_000_000_000_000_000)

// Value is an immutable unsigned fixed-point number equal to raw / 10^8.
type Value struct {
	raw uint64
}

// Wrap builds a Value from its raw magnitude.
func Wrap(raw uint64) Value {
	return Value{raw: raw}
}

// WrapWide narrows a 256-bit intermediate down to a Value. Magnitudes that do
// not fit in 64 bits fail with a NarrowingError.
func WrapWide(wide *uint256.Int) (Value, error) {
	if !wide.IsUint64() {
		return Value{}, &NarrowingError{Wide: wide.Clone()}
	}
	return Value{raw: wide.Uint64()}, nil
}

// FromDecimal converts a human-readable decimal into a Value, truncating
// precision beyond 8 fractional digits. Negative inputs and magnitudes beyond
// the 64-bit range are rejected.
func FromDecimal(d decimal.Decimal) (Value, error) {
	shifted := d.Shift(FracDigits).Truncate(0)
	if shifted.IsNegative() {
		return Value{}, &UnderflowError{Op: "fromdecimal"}
	}
	bi := shifted.BigInt()
	if !bi.IsUint64() {
		wide, _ := uint256.FromBig(bi)
		if wide == nil {
			wide = new(uint256.Int)
		}
		return Value{}, &NarrowingError{Wide: wide}
	}
	return Value{raw: bi.Uint64()}, nil
}

// Raw returns the raw magnitude.
func (v Value) Raw() uint64 {
	return v.raw
}

// IsZero reports whether the value is exactly zero.
func (v Value) IsZero() bool {
	return v.raw == 0
}

// Cmp compares two values, returning -1, 0, or 1.
func (v Value) Cmp(o Value) int {
	switch {
	case v.raw < o.raw:
		return -1
	case v.raw > o.raw:
		return 1
	default:
		return 0
	}
}

// Add returns v + o, failing with an OverflowError when the sum exceeds the
// 64-bit range.
func (v Value) Add(o Value) (Value, error) {
	sum, carry := bits.Add64(v.raw, o.raw, 0)
	if carry != 0 {
		return Value{}, &OverflowError{Op: "add", A: v.raw, B: o.raw}
	}
	return Value{raw: sum}, nil
}

// Sub returns v - o, failing with an UnderflowError when o exceeds v.
func (v Value) Sub(o Value) (Value, error) {
	if o.raw > v.raw {
		return Value{}, &UnderflowError{Op: "sub", A: v.raw, B: o.raw}
	}
	return Value{raw: v.raw - o.raw}, nil
}

// DivInt divides the value by a small integer divisor using integer division.
func (v Value) DivInt(divisor uint64) (Value, error) {
	if divisor == 0 {
		return Value{}, &DivisionByZeroError{Dividend: v.raw}
	}
	return Value{raw: v.raw / divisor}, nil
}

// ScaleFrac computes v * numerator / denominatorMax through a 256-bit
// intermediate, so the multiplication itself can never overflow. The result
// is narrowed back to 64 bits; for numerator <= denominatorMax the result is
// at most v and narrowing always succeeds.
func (v Value) ScaleFrac(numerator, denominatorMax uint64) (Value, error) {
	if denominatorMax == 0 {
		return Value{}, &DivisionByZeroError{Dividend: v.raw}
	}
	wide := new(uint256.Int).Mul(uint256.NewInt(v.raw), uint256.NewInt(numerator))
	wide.Div(wide, uint256.NewInt(denominatorMax))
	return WrapWide(wide)
}

// ToExternal widens the value into the 24-fractional-digit external
// representation. The conversion is lossless by construction.
func (v Value) ToExternal() *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v.raw), conversionFactor)
}

// FromExternal narrows an external 24-fractional-digit magnitude into a
// Value, truncating the extra precision. Magnitudes whose truncated form does
// not fit in 64 bits fail with a NarrowingError.
func FromExternal(ext *uint256.Int) (Value, error) {
	narrowed := new(uint256.Int).Div(ext, conversionFactor)
	if !narrowed.IsUint64() {
		return Value{}, &NarrowingError{Wide: ext.Clone()}
	}
	return Value{raw: narrowed.Uint64()}, nil
}

// Decimal renders the value as an exact decimal number.
func (v Value) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v.raw), -FracDigits)
}

// String renders the value in decimal notation.
func (v Value) String() string {
	return v.Decimal().String()
}
