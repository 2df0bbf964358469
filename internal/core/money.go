// Package core provides money parsing and handling utilities.
//
// This file contains the parser used for amounts typed by a user, converting
// them to a decimal with two fractional digits.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a decimal string to an amount with two decimals.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional leading sign, and rounds half-up on the third decimal place.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,345") -> 12.35, nil
//	ParseAmount("-5")     -> -5.00, nil
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, invalid("amount", "empty")
	}
	s = strings.ReplaceAll(s, ",", ".")

	digits := strings.TrimLeft(s, "+-")
	if len(s)-len(digits) > 1 || digits == "" {
		return decimal.Zero, invalid("amount", "malformed sign")
	}
	if strings.Count(digits, ".") > 1 {
		return decimal.Zero, invalid("amount", "too many decimal separators")
	}
	for _, r := range digits {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, invalid("amount", "not a number")
		}
	}
	s = strings.TrimPrefix(s, "+")
	if strings.HasPrefix(digits, ".") {
		s = strings.Replace(s, ".", "0.", 1)
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(s, "."))
	if err != nil {
		return decimal.Zero, invalid("amount", err.Error())
	}
	return d.Round(2), nil
}

// Float returns the amount as a float64 for ratio arithmetic.
// Use decimals for sums to avoid floating-point drift.
func Float(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}
