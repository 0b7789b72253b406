// Package outputfmt fits text into delivery channel limits.
package outputfmt

import "strings"

// Truncate caps s at max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return strings.TrimRight(string(runes[:max-1]), " \n") + "…"
}
