// Package types provides common types used across the credits engine.
package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Scale is the number of fractional digits a Credits value carries.
// One credit is 1_000_000 micro-credits.
const Scale = 6

// microsPerCredit is the smallest-unit multiplier implied by Scale.
const microsPerCredit = 1_000_000

// Credits is a balance or charge in the platform's synthetic currency,
// stored in micro-credits. All arithmetic is integer-only; no floating
// point touches a balance.
//
// Examples:
//   - Micro(1_500_000) = 1.5 credits
//   - FromUnits(10)    = 10 credits
type Credits struct {
	Micros int64 `json:"micros"`
}

// Micro creates a Credits value from micro-credits.
func Micro(micros int64) Credits { return Credits{Micros: micros} }

// FromUnits creates a Credits value from whole credits.
func FromUnits(units int64) Credits { return Credits{Micros: units * microsPerCredit} }

// FromMilli creates a Credits value from milli-credits (0.001 cr).
func FromMilli(millis int64) Credits { return Credits{Micros: millis * 1_000} }

// ZeroCredits returns the zero Credits value.
func ZeroCredits() Credits { return Credits{} }

// ParseCredits parses a decimal string ("1.5", "0.000001", "-3") into a
// Credits value. At most Scale fractional digits are accepted.
func ParseCredits(s string) (Credits, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Credits{}, fmt.Errorf("credits: parse %q: empty string", s)
	}

	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > Scale {
		return Credits{}, fmt.Errorf("credits: parse %q: more than %d fractional digits", s, Scale)
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Credits{}, fmt.Errorf("credits: parse %q: %w", s, err)
	}

	var fracMicros int64
	if frac != "" {
		// Right-pad to Scale digits: "5" → 500000.
		padded := frac + strings.Repeat("0", Scale-len(frac))
		fracMicros, err = strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return Credits{}, fmt.Errorf("credits: parse %q: %w", s, err)
		}
	}

	micros := units*microsPerCredit + fracMicros
	if neg {
		micros = -micros
	}
	return Credits{Micros: micros}, nil
}

// MustParseCredits is like ParseCredits but panics on error.
// Use for hardcoded values.
func MustParseCredits(s string) Credits {
	c, err := ParseCredits(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Arithmetic operations

// Add adds two Credits values.
func (c Credits) Add(other Credits) Credits {
	return Credits{Micros: c.Micros + other.Micros}
}

// Subtract subtracts another Credits value.
func (c Credits) Subtract(other Credits) Credits {
	return Credits{Micros: c.Micros - other.Micros}
}

// MulQuantity multiplies by an integer quantity.
func (c Credits) MulQuantity(qty int64) Credits {
	return Credits{Micros: c.Micros * qty}
}

// MulBasisPoints scales by a basis-point multiplier (10000 = 1.0).
// The result truncates toward zero, so repeated scaling never creates
// credits out of thin air.
func (c Credits) MulBasisPoints(bp int64) Credits {
	return Credits{Micros: c.Micros * bp / 10_000}
}

// Divide divides by a divisor using integer division.
func (c Credits) Divide(divisor int64) Credits {
	if divisor == 0 {
		panic("credits: division by zero")
	}
	return Credits{Micros: c.Micros / divisor}
}

// Negate returns the negative of the value.
func (c Credits) Negate() Credits { return Credits{Micros: -c.Micros} }

// Abs returns the absolute value.
func (c Credits) Abs() Credits {
	if c.Micros < 0 {
		return Credits{Micros: -c.Micros}
	}
	return c
}

// Comparison methods

// IsZero reports whether the value is zero.
func (c Credits) IsZero() bool { return c.Micros == 0 }

// IsPositive reports whether the value is greater than zero.
func (c Credits) IsPositive() bool { return c.Micros > 0 }

// IsNegative reports whether the value is less than zero.
func (c Credits) IsNegative() bool { return c.Micros < 0 }

// Equal reports whether two values are equal.
func (c Credits) Equal(other Credits) bool { return c.Micros == other.Micros }

// LessThan reports whether c < other.
func (c Credits) LessThan(other Credits) bool { return c.Micros < other.Micros }

// GreaterThan reports whether c > other.
func (c Credits) GreaterThan(other Credits) bool { return c.Micros > other.Micros }

// Min returns the smaller of two values.
func (c Credits) Min(other Credits) Credits {
	if c.Micros < other.Micros {
		return c
	}
	return other
}

// Max returns the larger of two values.
func (c Credits) Max(other Credits) Credits {
	if c.Micros > other.Micros {
		return c
	}
	return other
}

// Float64 returns the value in whole credits as a float. Only for derived
// statistics (accuracy ratios, variance percentages), never for balances.
func (c Credits) Float64() float64 {
	return float64(c.Micros) / float64(microsPerCredit)
}

// Formatting methods

// Format returns the decimal string with all six fractional digits:
// "1.500000" for Micro(1500000).
func (c Credits) Format() string {
	micros := c.Micros
	neg := micros < 0
	if neg {
		micros = -micros
	}

	units := micros / microsPerCredit
	frac := micros % microsPerCredit

	s := fmt.Sprintf("%d.%06d", units, frac)
	if neg {
		return "-" + s
	}
	return s
}

// String returns a human-readable string: "1.500000 cr".
func (c Credits) String() string {
	return c.Format() + " cr"
}

// MarshalJSON implements json.Marshaler.
func (c Credits) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Micros  int64  `json:"micros"`
		Display string `json:"display"`
	}{
		Micros:  c.Micros,
		Display: c.Format(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. It accepts both the object
// form produced by MarshalJSON and a bare integer micro-credit count.
func (c *Credits) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var obj struct {
			Micros int64 `json:"micros"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		c.Micros = obj.Micros
		return nil
	}

	var micros int64
	if err := json.Unmarshal(data, &micros); err != nil {
		return err
	}
	c.Micros = micros
	return nil
}

// SumCredits calculates the sum of multiple Credits values.
func SumCredits(values ...Credits) Credits {
	var total int64
	for _, v := range values {
		total += v.Micros
	}
	return Credits{Micros: total}
}
