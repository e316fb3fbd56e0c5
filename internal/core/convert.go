package core

// convert.go handles the messy reality of spreadsheet cell values:
// Excel formula prefixes (="value"), stray quotes, currency symbols,
// thousands separators, and accounting-style negatives.

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// numericRegex validates a numeric string after cleanup. Matches
// integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, Excel formula prefixes, and stray quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// ParseNumber parses a cell value as a number, tolerating currency
// symbols, thousands separators, and accounting format ("(123.45)" for
// negative values).
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // euro
	s = strings.ReplaceAll(s, "£", "") // pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if negative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, fmt.Errorf("invalid number format %q", s)
	}

	return strconv.ParseFloat(s, 64)
}

// ParseQuantity parses an estimated quantity, which must be a
// non-negative number.
func ParseQuantity(s string) (float64, error) {
	q, err := ParseNumber(s)
	if err != nil {
		return 0, err
	}
	if q < 0 {
		return 0, fmt.Errorf("quantity must be non-negative, got %v", q)
	}
	return q, nil
}

// FormatNumber renders a number the way history entries record values:
// minimal decimal form, no exponent for typical magnitudes.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
