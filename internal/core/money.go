// Package core holds the money-safe domain model: integer minor-unit amounts,
// calendar dates, ledger entities and their invariants. Nothing in this
// package touches storage.
package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Money is an amount in integer minor units of one currency. Negative values
// are outflows, positive values inflows. Arithmetic never goes through
// floating point.
type Money struct {
	Minor    int64
	Currency Currency
}

// NewMoney builds an amount in the given currency.
func NewMoney(minor int64, cur Currency) Money {
	return Money{Minor: minor, Currency: cur}
}

func (m Money) IsZero() bool     { return m.Minor == 0 }
func (m Money) IsNegative() bool { return m.Minor < 0 }

// Neg returns the amount with its sign flipped.
func (m Money) Neg() Money {
	return Money{Minor: -m.Minor, Currency: m.Currency}
}

// Add returns m + o. Fails on currency mismatch or int64 overflow.
func (m Money) Add(o Money) (Money, error) {
	if m.Currency.Code != o.Currency.Code {
		return Money{}, fmt.Errorf("add %s to %s: %w", o.Currency.Code, m.Currency.Code, ErrCurrencyMismatch)
	}
	sum := m.Minor + o.Minor
	if (m.Minor > 0 && o.Minor > 0 && sum < 0) || (m.Minor < 0 && o.Minor < 0 && sum > 0) {
		return Money{}, ErrAmountOverflow
	}
	return Money{Minor: sum, Currency: m.Currency}, nil
}

// Sub returns m - o with the same failure modes as Add.
func (m Money) Sub(o Money) (Money, error) {
	if o.Minor == math.MinInt64 {
		return Money{}, ErrAmountOverflow
	}
	return m.Add(o.Neg())
}

// MulFrac multiplies by num/den, rounding half away from zero to the nearest
// minor unit. This is the single rounding rule for percentage and proration
// math. den must be positive.
func (m Money) MulFrac(num, den int64) (Money, error) {
	if den <= 0 {
		return Money{}, fmt.Errorf("denominator %d: %w", den, ErrInvalidAmount)
	}
	if num != 0 && m.Minor != 0 {
		limit := math.MaxInt64 / absInt64(num)
		if absInt64(m.Minor) > limit {
			return Money{}, ErrAmountOverflow
		}
	}
	prod := m.Minor * num
	q := prod / den
	r := prod % den
	if r != 0 && absInt64(r)*2 >= den {
		if prod < 0 {
			q--
		} else {
			q++
		}
	}
	return Money{Minor: q, Currency: m.Currency}, nil
}

// Percent returns pct% of the amount using the MulFrac rounding rule.
func (m Money) Percent(pct int64) (Money, error) {
	return m.MulFrac(pct, 100)
}

// SplitEven divides the amount into n parts that sum exactly to the whole.
// The remainder is allocated one minor unit at a time to the earliest parts,
// so the allocation is deterministic.
func (m Money) SplitEven(n int) ([]Money, error) {
	if n <= 0 {
		return nil, fmt.Errorf("split into %d parts: %w", n, ErrInvalidAmount)
	}
	base := m.Minor / int64(n)
	rem := m.Minor - base*int64(n)
	step := int64(1)
	if rem < 0 {
		step = -1
		rem = -rem
	}
	parts := make([]Money, n)
	for i := range parts {
		minor := base
		if int64(i) < rem {
			minor += step
		}
		parts[i] = Money{Minor: minor, Currency: m.Currency}
	}
	return parts, nil
}

// Format renders the amount as a human decimal string, e.g. "-1234.50 PHP".
// Display only; the result must never feed back into computation.
func (m Money) Format() string {
	per := m.Currency.MinorUnitsPerMajor
	if per <= 1 {
		return fmt.Sprintf("%d %s", m.Minor, m.Currency.Code)
	}
	minor := m.Minor
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	digits := len(strconv.FormatInt(per-1, 10))
	return fmt.Sprintf("%s%d.%0*d %s", sign, minor/per, digits, minor%per, m.Currency.Code)
}

// ParseDecimal converts a signed decimal string to Money in the given
// currency. Both dot and comma decimal separators are accepted. Rounding is
// half-up on the first dropped fractional digit.
//
// Examples for a 100-minor-unit currency:
//
//	ParseDecimal("12.34")  -> 1234
//	ParseDecimal("-12.345") -> -1235 (rounds up)
func ParseDecimal(s string, cur Currency) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
		if fracPart == "" {
			return Money{}, ErrInvalidAmount
		}
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	per := cur.MinorUnitsPerMajor
	if per < 1 {
		return Money{}, ErrUnknownCurrency
	}
	if iv > math.MaxInt64/per {
		return Money{}, ErrAmountOverflow
	}
	minor := iv * per
	// Consume fractional digits up to the currency's precision, then
	// half-up on the first dropped digit.
	fracDigits := 0
	if per > 1 {
		fracDigits = len(strconv.FormatInt(per-1, 10))
	}
	var frac int64
	for i := 0; i < fracDigits; i++ {
		frac *= 10
		if i < len(fracPart) {
			frac += int64(fracPart[i] - '0')
		}
	}
	if len(fracPart) > fracDigits && fracPart[fracDigits] >= '5' {
		frac++
	}
	if minor > math.MaxInt64-frac {
		return Money{}, ErrAmountOverflow
	}
	minor += frac
	if neg {
		minor = -minor
	}
	return Money{Minor: minor, Currency: cur}, nil
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
