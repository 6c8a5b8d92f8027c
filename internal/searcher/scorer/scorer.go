// Package scorer decides whether a document matches a parsed query and, if
// it does, how relevant it is. Every token and every phrase must match; the
// score rewards an early first match and repeated occurrences.
package scorer

import (
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/normalize"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/parser"
)

const (
	proximityWindow = 5000
	tokenWeight     = 20
	phraseWeight    = 300
	// Terms shorter than this never fall back to the tight form.
	minTightLen = 3
)

// Haystack is a document's match surface for one search.
type Haystack struct {
	Text  string
	Tight string
}

// NewHaystack builds the normalized surface from content followed by title.
func NewHaystack(doc index.Document) Haystack {
	text := normalize.Normalize(normalize.StripNoise(doc.Content + " " + doc.Title))
	return Haystack{
		Text:  text,
		Tight: normalize.Tight(text),
	}
}

// Score returns the relevance of hay for q and whether it passed. A query
// with no tokens and no phrases never passes.
func Score(hay Haystack, q *parser.Query) (int, bool) {
	if q == nil || q.Empty() {
		return 0, false
	}
	score := 0
	if len(q.Tokens) > 0 {
		s, ok := scoreTokens(hay, q.Tokens)
		if !ok {
			return 0, false
		}
		score += s
	}
	for _, phrase := range q.Phrases {
		s, ok := scorePhrase(hay, phrase)
		if !ok {
			return 0, false
		}
		score += s
	}
	return score, true
}

// ScoreDocument is NewHaystack followed by Score.
func ScoreDocument(doc index.Document, q *parser.Query) (int, bool) {
	return Score(NewHaystack(doc), q)
}

func scoreTokens(hay Haystack, tokens []string) (int, bool) {
	earliest := -1
	for _, t := range tokens {
		idx := runeIndex(hay.Text, t)
		if idx < 0 && normalize.RuneLen(t) >= minTightLen {
			idx = runeIndex(hay.Tight, t)
		}
		if idx < 0 {
			return 0, false
		}
		if earliest < 0 || idx < earliest {
			earliest = idx
		}
	}

	score := proximity(earliest)
	for _, t := range tokens {
		n := OccurrenceCount(hay.Text, t)
		if n == 0 && normalize.RuneLen(t) >= minTightLen {
			n = OccurrenceCount(hay.Tight, t)
		}
		score += n * tokenWeight
	}
	return score, true
}

func scorePhrase(hay Haystack, phrase string) (int, bool) {
	if phrase == "" {
		return 0, false
	}
	if idx := runeIndex(hay.Text, phrase); idx >= 0 {
		return proximity(idx) + OccurrenceCount(hay.Text, phrase)*phraseWeight, true
	}
	tight := normalize.Tight(phrase)
	if normalize.RuneLen(tight) >= minTightLen {
		if idx := runeIndex(hay.Tight, tight); idx >= 0 {
			return proximity(idx) + OccurrenceCount(hay.Tight, tight)*phraseWeight, true
		}
	}
	return 0, false
}

func proximity(idx int) int {
	if idx < 0 {
		return 0
	}
	return max(0, proximityWindow-idx)
}

// OccurrenceCount counts non-overlapping occurrences of needle in hay,
// scanning left to right. An empty needle occurs zero times.
func OccurrenceCount(hay, needle string) int {
	if hay == "" || needle == "" {
		return 0
	}
	return strings.Count(hay, needle)
}

// runeIndex is strings.Index measured in runes.
func runeIndex(hay, needle string) int {
	i := strings.Index(hay, needle)
	if i < 0 {
		return -1
	}
	return utf8.RuneCountInString(hay[:i])
}
