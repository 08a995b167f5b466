package httpapi

import (
	"regexp"
	"strings"
	"unicode"
)

var whitespaceRuns = regexp.MustCompile(`\s+`)

// SanitizeUsername normalizes the display name attached to the
// SessionConnected notification: trim, collapse whitespace runs, strip
// control characters, then cap at 15 visible characters with a "..." tail.
// The result never gates admission.
func SanitizeUsername(s string) string {
	s = strings.TrimSpace(s)
	s = whitespaceRuns.ReplaceAllString(s, " ")
	s = stripControl(s)
	runes := []rune(s)
	if len(runes) > 15 {
		return string(runes[:12]) + "..."
	}
	return s
}

// SanitizeIdentifierText normalizes vsid text before VisualIdentifier
// construction. No trimming: a space is a legal identifier character.
func SanitizeIdentifierText(s string) string {
	s = whitespaceRuns.ReplaceAllString(s, " ")
	return stripControl(s)
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
