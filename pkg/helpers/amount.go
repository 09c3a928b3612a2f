// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrInvalidAmount is returned for amounts that are empty, malformed,
// more precise than the coin allows, or too large to represent.
var ErrInvalidAmount = errors.New("invalid amount")

// FormatAmount formats an amount in smallest units as a decimal string.
// For example, FormatAmount(100000000, 8) returns "1" (1 DASH).
func FormatAmount(amount uint64, decimals uint8) string {
	if decimals == 0 {
		return fmt.Sprintf("%d", amount)
	}

	amountBig := new(big.Int).SetUint64(amount)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	whole, frac := new(big.Int).QuoRem(amountBig, divisor, new(big.Int))
	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := strings.TrimRight(fmt.Sprintf("%0*d", int(decimals), frac), "0")
	return whole.String() + "." + fracStr
}

// ParseAmount parses a decimal string into smallest units without ever
// going through a float. For example, ParseAmount("0.001", 8) returns 100000.
// Fractional digits beyond decimals are rejected rather than truncated.
func ParseAmount(s string, decimals uint8) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}

	wholeStr, fracStr, hasPoint := strings.Cut(s, ".")
	if hasPoint && wholeStr == "" && fracStr == "" {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if wholeStr == "" {
		wholeStr = "0"
	}

	if !isDigits(wholeStr) || !isDigits(fracStr) {
		return 0, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, s)
	}

	if len(fracStr) > int(decimals) {
		if strings.TrimRight(fracStr[decimals:], "0") != "" {
			return 0, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, decimals)
		}
		fracStr = fracStr[:decimals]
	}
	fracStr += strings.Repeat("0", int(decimals)-len(fracStr))

	amount, ok := new(big.Int).SetString(wholeStr+fracStr, 10)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !amount.IsUint64() {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidAmount, s)
	}

	return amount.Uint64(), nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// DuffsToDash converts duffs to a DASH string (8 decimals).
func DuffsToDash(duffs uint64) string {
	return FormatAmount(duffs, 8)
}

// DashToDuffs converts a DASH string to duffs.
func DashToDuffs(dash string) (uint64, error) {
	return ParseAmount(dash, 8)
}
