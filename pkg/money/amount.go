// Package money implements exact-decimal credit amounts for the ledger and
// everything downstream of it. All arithmetic happens on integer raw units;
// no component outside this package is permitted to use float64 for money.
package money

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// RawUnitsPerCent is the scale factor between a raw unit and one US cent.
// 1 credit = 1 cent (see spec.md §1), so RawUnitsPerCent also gives the
// number of raw units per credit.
const RawUnitsPerCent = 10_000_000

// Amount is a signed, exact count of raw units. The zero value is zero
// credits. Amount is safe to copy and compare with ==.
type Amount struct {
	raw int64
}

// Zero is the distinguished zero amount.
var Zero = Amount{}

// FromCents constructs an Amount from a whole number of cents.
func FromCents(cents int64) Amount {
	return Amount{raw: cents * RawUnitsPerCent}
}

// FromRawUnits constructs an Amount directly from raw units. Used when
// reading a value back from storage, where raw units are the wire format.
func FromRawUnits(raw int64) Amount {
	return Amount{raw: raw}
}

// FromDollars parses a decimal string such as "12.50" or "-3" into an exact
// Amount. It never goes through a floating-point intermediate: the integer
// and fractional parts are parsed independently and the fraction is padded
// or truncated to two digits (cent precision) before scaling.
func FromDollars(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, fmt.Errorf("empty amount string")
	}

	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return Zero, fmt.Errorf("invalid amount %q", s)
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return Zero, fmt.Errorf("invalid amount %q", s)
	}
	if whole == "" {
		whole = "0"
	}
	if hasFrac {
		if len(frac) > 2 {
			frac = frac[:2] // truncate sub-cent precision, never round up silently
		}
		for len(frac) < 2 {
			frac += "0"
		}
	} else {
		frac = "00"
	}

	wholeVal, err := strconv.ParseInt(whole, 10, 63)
	if err != nil {
		return Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	fracVal, err := strconv.ParseInt(frac, 10, 63)
	if err != nil {
		return Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}

	cents := wholeVal*100 + fracVal
	if neg {
		cents = -cents
	}
	return FromCents(cents), nil
}

// ToCents truncates the amount toward zero to a whole number of cents.
func (a Amount) ToCents() int64 {
	return a.raw / RawUnitsPerCent
}

// RawUnits returns the underlying raw unit count, for storage.
func (a Amount) RawUnits() int64 {
	return a.raw
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{raw: a.raw + b.raw}
}

// Subtract returns a - b.
func (a Amount) Subtract(b Amount) Amount {
	return Amount{raw: a.raw - b.raw}
}

// MultiplyByScalar returns a * factor, rounding half-away-from-zero to the
// nearest raw unit. This is the only rounding point permitted anywhere in
// the system (spec.md §4.A) — used by the gateway margin calculation.
func (a Amount) MultiplyByScalar(factor float64) Amount {
	// Use big.Rat so the scaling itself is exact; only the final
	// round-to-integer step is lossy, and that rounding is well-defined.
	rat := new(big.Rat).SetFloat64(factor)
	if rat == nil {
		return a
	}
	product := new(big.Rat).Mul(rat, big.NewRat(a.raw, 1))

	num := new(big.Int).Set(product.Num())
	den := new(big.Int).Set(product.Denom())

	half := new(big.Int).Set(den)
	quotient, remainder := new(big.Int).QuoRem(num, den, new(big.Int))
	remainder.Abs(remainder)
	remainder.Mul(remainder, big.NewInt(2))

	if remainder.Cmp(half) >= 0 {
		if num.Sign() < 0 {
			quotient.Sub(quotient, big.NewInt(1))
		} else {
			quotient.Add(quotient, big.NewInt(1))
		}
	}

	return Amount{raw: quotient.Int64()}
}

// IsZero reports whether the amount is exactly zero.
func (a Amount) IsZero() bool {
	return a.raw == 0
}

// IsNegative reports whether the amount is strictly negative.
func (a Amount) IsNegative() bool {
	return a.raw < 0
}

// GreaterThan reports whether a > b.
func (a Amount) GreaterThan(b Amount) bool {
	return a.raw > b.raw
}

// LessThan reports whether a < b.
func (a Amount) LessThan(b Amount) bool {
	return a.raw < b.raw
}

// ToDisplayString renders the amount as a dollar string with two decimal
// places, e.g. "-3.14" or "0.00".
func (a Amount) ToDisplayString() string {
	cents := a.raw / RawUnitsPerCent
	neg := cents < 0
	if neg {
		cents = -cents
	}
	whole := cents / 100
	frac := cents % 100
	sign := ""
	if neg {
		sign = "-"
	}
	return fmt.Sprintf("%s%d.%02d", sign, whole, frac)
}

// String implements fmt.Stringer for logging convenience.
func (a Amount) String() string {
	return a.ToDisplayString()
}
