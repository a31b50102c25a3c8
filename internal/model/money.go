package model

import (
	"math"
	"strconv"
	"strings"
)

// PriceEpsilon is the absolute tolerance used for every price comparison.
// Two amounts closer than this are the same price.
const PriceEpsilon = 1e-3

// ClearToken is the cell value that asks for a stored value to be removed.
const ClearToken = "null"

// ParseDecimal converts a decimal string amount ("12.50", " 7 ") to float64.
// Returns false for empty, non-numeric, NaN and infinite input.
func ParseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// PricesDiffer reports whether a and b differ by more than PriceEpsilon.
func PricesDiffer(a, b float64) bool {
	return math.Abs(a-b) > PriceEpsilon
}

// FormatDecimal renders an amount the way the platform accepts it in mutation input.
// Examples: 12.5 → "12.5", 10 → "10", 0.333 → "0.333"
func FormatDecimal(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// IsClearToken reports whether a raw cell value means "remove the stored value".
// Matching is case-insensitive and ignores surrounding whitespace.
func IsClearToken(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), ClearToken)
}

// NormalizeSKU is the key used to match rows against the catalog.
func NormalizeSKU(sku string) string {
	return strings.TrimSpace(sku)
}
