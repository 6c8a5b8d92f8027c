// Package snippet cuts a short excerpt around the first match of a needle
// while keeping inline math delimiters paired, so a formula is never cut in
// half.
package snippet

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/normalize"
)

const (
	DefaultMaxLen = 240

	backLimit    = 600
	forwardLimit = 600
	forwardPad   = 40

	ellipsis = "…"
)

// Make returns an excerpt of at most about maxLen runes of the noise-stripped
// raw text, starting a third of maxLen before the first case-insensitive
// occurrence of needle. Window bounds move to keep $ pairs intact; the
// result always has an even number of $.
func Make(raw, needle string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	text := []rune(normalize.StripNoise(raw))
	found := find(text, []rune(needle))
	if found < 0 {
		return finalize(text, 0, min(len(text), maxLen))
	}
	w := &window{text: text}
	w.start = max(0, found-maxLen/3)
	w.end = min(len(text), w.start+maxLen)
	w.repair()
	return finalize(text, w.start, w.end)
}

// Balanced reports whether s holds an even number of $.
func Balanced(s string) bool {
	return strings.Count(s, "$")%2 == 0
}

type window struct {
	text       []rune
	start, end int
}

func (w *window) repair() {
	orphanClose, openers := w.pair()
	if orphanClose {
		if open := w.openerBefore(w.start); open >= 0 {
			w.start = open
			_, openers = w.pair()
		}
	}
	if openers > 0 {
		if next := w.dollarFrom(w.end); next >= 0 && next-w.end <= forwardLimit {
			w.end = next + 1
		} else {
			w.end = min(len(w.text), w.end+forwardPad)
		}
	}

	if w.count()%2 == 0 {
		return
	}
	first := w.dollarFrom(w.start)
	if first < 0 || first >= w.end {
		return
	}
	if first+1-w.start <= backLimit {
		w.start = first + 1
		return
	}
	if next := w.dollarFrom(w.end); next >= 0 && next-w.end <= forwardLimit {
		w.end = next + 1
	}
}

// pair matches openers with closers inside the window using a stack. It
// reports whether a closer had no opener and how many openers stayed open.
func (w *window) pair() (orphanClose bool, unmatched int) {
	for i := w.start; i < w.end; i++ {
		if w.text[i] != '$' {
			continue
		}
		if w.isOpener(i) {
			unmatched++
			continue
		}
		if unmatched > 0 {
			unmatched--
		} else {
			orphanClose = true
		}
	}
	return orphanClose, unmatched
}

// isOpener classifies a $ by what precedes it: start of text, whitespace or
// an open parenthesis. "costo,$x$" is misread; that is accepted.
func (w *window) isOpener(i int) bool {
	if i == 0 {
		return true
	}
	prev := w.text[i-1]
	return unicode.IsSpace(prev) || prev == '('
}

// openerBefore returns the nearest opener in [pos-backLimit, pos), or -1.
func (w *window) openerBefore(pos int) int {
	for i := pos - 1; i >= 0 && i >= pos-backLimit; i-- {
		if w.text[i] == '$' && w.isOpener(i) {
			return i
		}
	}
	return -1
}

func (w *window) dollarFrom(pos int) int {
	for i := pos; i < len(w.text); i++ {
		if w.text[i] == '$' {
			return i
		}
	}
	return -1
}

func (w *window) count() int {
	n := 0
	for _, r := range w.text[w.start:w.end] {
		if r == '$' {
			n++
		}
	}
	return n
}

func finalize(text []rune, start, end int) string {
	parts := make([]string, 0, 3)
	if start > 0 {
		parts = append(parts, ellipsis)
	}
	if core := strings.TrimSpace(string(text[start:end])); core != "" {
		parts = append(parts, core)
	}
	if end < len(text) {
		parts = append(parts, ellipsis)
	}
	s := strings.Join(parts, " ")
	if !Balanced(s) {
		s = strings.TrimSpace(s[:strings.LastIndex(s, "$")])
	}
	return s
}

// find locates needle case-insensitively, then ignoring diacritics as well.
// Both folds map one rune to one rune so the index is valid in text.
func find(text, needle []rune) int {
	if i := indexFold(text, needle, unicode.ToLower); i >= 0 {
		return i
	}
	return indexFold(text, needle, baseRune)
}

func indexFold(text, needle []rune, fold func(rune) rune) int {
	if len(needle) == 0 {
		return 0
	}
	if len(needle) > len(text) {
		return -1
	}
	folded := make([]rune, len(needle))
	for i, r := range needle {
		folded[i] = fold(r)
	}
outer:
	for i := 0; i+len(folded) <= len(text); i++ {
		for j, r := range folded {
			if fold(text[i+j]) != r {
				continue outer
			}
		}
		return i
	}
	return -1
}

// baseRune lowercases r and drops any combining marks its canonical
// decomposition carries: 'À' becomes 'a'.
func baseRune(r rune) rune {
	if r < utf8.RuneSelf {
		return unicode.ToLower(r)
	}
	base, _ := utf8.DecodeRuneInString(norm.NFD.String(string(r)))
	return unicode.ToLower(base)
}
