// Package normalize turns raw document and query text into the comparison
// form used by the scorer: lower case, no diacritics, one space between
// letter/number runs. It also strips templating and display-math noise
// before text is scored or excerpted.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lower-cases text, removes combining marks after canonical
// decomposition ("perché" becomes "perche"), and replaces every run of
// characters that are neither letters nor numbers with a single space.
// The result has no leading or trailing space. Normalize is idempotent.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	lowered := strings.ToLower(text)
	// transform.Chain is stateful, so each call builds its own.
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	decomposed, _, err := transform.String(stripper, lowered)
	if err != nil {
		decomposed = lowered
	}

	var b strings.Builder
	b.Grow(len(decomposed))
	gap := false
	for _, r := range decomposed {
		if !unicode.IsLetter(r) && !unicode.IsNumber(r) {
			gap = true
			continue
		}
		if gap && b.Len() > 0 {
			b.WriteByte(' ')
		}
		gap = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Tight removes all whitespace from s. It is the fallback match surface for
// words glued together by upstream text extraction.
func Tight(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(s), "")
}

// RuneLen is the length used for the tight-form fallback threshold.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}
