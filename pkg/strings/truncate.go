package strings

import (
	"strings"
)

// minTruncateLen is the smallest usable maximum: one character plus "...".
const minTruncateLen = 4

// Truncate collapses a string to a single line and cuts it to at most
// maxLen characters, appending "..." when anything was dropped. Used for
// table cells holding long ARNs and sync error messages.
//
// Operates on runes so multi-byte characters are never split.
func Truncate(s string, maxLen int) string {
	if maxLen < minTruncateLen {
		maxLen = minTruncateLen
	}

	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
