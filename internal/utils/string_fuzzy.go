package utils

import (
	"strings"
	"unicode/utf8"
)

// FuzzyMatch reports whether every character of pattern appears in s in
// order, not necessarily adjacent. Comparison is case-insensitive.
func FuzzyMatch(pattern, s string) bool {
	pattern = strings.ToLower(pattern)
	s = strings.ToLower(s)

	for _, r := range pattern {
		i := strings.IndexRune(s, r)
		if i < 0 {
			return false
		}
		s = s[i+utf8.RuneLen(r):]
	}
	return true
}
