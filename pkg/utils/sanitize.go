package utils

import (
	"regexp"
	"strings"
)

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1F\s]`)
var consecutiveUnderscores = regexp.MustCompile(`_+`)

const maxFilenameRunes = 80

// SanitizeFilename turns a keyword or label into a safe file name component.
// Truncation counts runes so multi-byte keywords are never cut mid-character.
func SanitizeFilename(name string) string {
	sanitized := invalidFilenameChars.ReplaceAllString(name, "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_. ")
	sanitized = strings.Trim(TruncateRunes(sanitized, maxFilenameRunes), "_. ")

	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}
