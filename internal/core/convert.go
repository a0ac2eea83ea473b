package core

// convert.go provides coercion of raw cell text into typed field values.
//
// These functions handle the messy reality of spreadsheet exports:
//   - Currency symbols and thousand separators in prices
//   - Accounting format for negatives: (1.50)
//   - Various boolean representations (yes/no, true/false, 1/0)
//   - Excel formula prefixes (="value") and stray quotes
//
// Every Parse* function reports ok=false for input it cannot coerce; callers
// record that as an invalid marker instead of failing the row.

import (
	"regexp"
	"strconv"
	"strings"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseNumber converts a cell to a float64.
// Handles currency symbols, thousands separators, and accounting format (parentheses for negative).
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if isNegative {
		if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
			return 0, false
		}
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ParseBool converts a cell to a bool.
// Accepts various representations: true/false, yes/no, t/f, y/n, 1/0.
func ParseBool(s string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	default:
		return false, false
	}
}

// MatchEnum returns the canonical enum value matching s case-insensitively.
func MatchEnum(s string, values []string) (string, bool) {
	s = strings.TrimSpace(s)
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return v, true
		}
	}
	return "", false
}

// NormalizeHeader turns a column header into its lookup form:
// cleaned, lower-case, with spaces and dashes folded to underscores.
func NormalizeHeader(h string) string {
	h = strings.ToLower(CleanCell(h))
	h = strings.Join(strings.Fields(h), "_")
	return strings.ReplaceAll(h, "-", "_")
}

// HeaderIndex maps normalized column names to their original header text.
type HeaderIndex map[string]string

// MakeHeaderIndex creates a HeaderIndex from a header row. When two headers
// normalize to the same name, the first one wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for _, h := range header {
		key := NormalizeHeader(h)
		if key == "" {
			continue
		}
		if _, exists := idx[key]; !exists {
			idx[key] = h
		}
	}
	return idx
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)

	return strings.TrimSpace(s)
}
