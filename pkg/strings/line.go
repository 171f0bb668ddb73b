// Package strings holds small text helpers for terminal output.
package strings

import (
	"strings"
)

// DefaultDetailMaxLen is the width of free-form detail columns such as
// error messages in CLI tables.
const DefaultDetailMaxLen = 80

// minLineLen leaves room for one character and the ellipsis.
const minLineLen = 4

// OneLine collapses all whitespace in s to single spaces and shortens the
// result to at most maxLen runes, ending in "..." when cut.
func OneLine(s string, maxLen int) string {
	if maxLen < minLineLen {
		maxLen = minLineLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
