package normalize

import (
	"html"
	"net/url"
	"strings"
)

// placeholderPhrases are non-informative UI strings that leak into scraped
// option and attribute text. The list is bilingual because the sites this
// engine targets mix English themes with Hebrew storefront text.
var placeholderPhrases = []string{
	"select option",
	"select options",
	"choose an option",
	"select an option",
	"בחר אפשרות",
	"בחירת אפשרות",
	"בחרו אפשרות",
}

// bidi control characters show up in mixed Hebrew/Latin product text and must
// not survive into canonical output.
var bidiControls = []rune{
	'\u200e', '\u200f', // LRM, RLM
	'\u202a', '\u202b', '\u202c', '\u202d', '\u202e', // embedding / override
	'\u2066', '\u2067', '\u2068', '\u2069', // isolates
}

// IsPlaceholder reports whether s is a known placeholder phrase (after
// trimming and case folding).
func IsPlaceholder(s string) bool {
	folded := strings.ToLower(strings.TrimSpace(s))
	if folded == "" {
		return false
	}
	for _, p := range placeholderPhrases {
		if folded == p {
			return true
		}
	}
	return false
}

// CleanText canonicalizes scraped text: decodes percent-encoding and HTML
// entities, strips bidi controls and placeholder phrases, and collapses
// whitespace runs to single spaces.
func CleanText(s string) string {
	if s == "" {
		return ""
	}

	if decoded, err := url.PathUnescape(s); err == nil {
		s = decoded
	}
	s = html.UnescapeString(s)

	for _, r := range bidiControls {
		s = strings.ReplaceAll(s, string(r), "")
	}

	s = strings.Join(strings.Fields(s), " ")

	if IsPlaceholder(s) {
		return ""
	}
	return s
}
