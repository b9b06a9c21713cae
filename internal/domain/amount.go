package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// DefaultDecimals is the number of fractional digits of the token.
const DefaultDecimals = 18

// ErrInvalidAmount is returned when an amount cannot be parsed.
var ErrInvalidAmount = errors.New("invalid amount")

// ParseUnits converts a decimal string such as "1000" or "0.5" into
// the smallest unit using the given number of decimals.
func ParseUnits(s string, decimals uint8) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrInvalidAmount, s, decimals)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}

	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidAmount, s, err)
	}
	return v, nil
}

// MustParseUnits is like ParseUnits but panics on error.
func MustParseUnits(s string, decimals uint8) *uint256.Int {
	v, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatUnits renders an amount in whole units, trimming trailing zeros.
func FormatUnits(v *uint256.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	dec := v.Dec()
	if decimals == 0 {
		return dec
	}
	if len(dec) <= int(decimals) {
		dec = strings.Repeat("0", int(decimals)-len(dec)+1) + dec
	}
	cut := len(dec) - int(decimals)
	whole, frac := dec[:cut], strings.TrimRight(dec[cut:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

// ZeroIfNil returns v, or a fresh zero when v is nil.
func ZeroIfNil(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
