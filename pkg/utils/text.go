package utils

import (
	"strings"
	"unicode/utf8"
)

// CleanText collapses every run of whitespace (including full-width spaces) to a single space and trims the result.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// RuneLen counts characters rather than bytes, so CJK titles are measured the way a reader sees them.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// ContainsAny reports whether s contains any of the tokens. Empty tokens never match.
func ContainsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if tok != "" && strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// TruncateRunes shortens s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
