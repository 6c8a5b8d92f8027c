package parser

import (
	"regexp"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/normalize"
)

// quoted matches a double-quoted phrase with at least one character inside.
var quoted = regexp.MustCompile(`"([^"]+)"`)

// Query is the parsed form of a raw search string. Tokens and Phrases are
// normalized; both are AND-ed together by the scorer.
type Query struct {
	Tokens   []string
	Phrases  []string
	RawQuery string
}

func Parse(query string) *Query {
	q := &Query{
		Tokens:   make([]string, 0),
		Phrases:  make([]string, 0),
		RawQuery: query,
	}
	if strings.TrimSpace(query) == "" {
		return q
	}
	for _, m := range quoted.FindAllStringSubmatch(query, -1) {
		phrase := normalize.Normalize(strings.TrimSpace(m[1]))
		if phrase == "" {
			continue
		}
		q.Phrases = append(q.Phrases, phrase)
	}
	rest := quoted.ReplaceAllString(query, " ")
	q.Tokens = append(q.Tokens, strings.Fields(normalize.Normalize(rest))...)
	return q
}

// Empty reports whether the query has nothing to match. An empty query
// matches no document.
func (q *Query) Empty() bool {
	return len(q.Tokens) == 0 && len(q.Phrases) == 0
}

// SnippetNeedle is the text the snippet extractor centres on: the first
// phrase, else the first token, else the trimmed raw query.
func (q *Query) SnippetNeedle() string {
	if len(q.Phrases) > 0 {
		return q.Phrases[0]
	}
	if len(q.Tokens) > 0 {
		return q.Tokens[0]
	}
	return strings.TrimSpace(q.RawQuery)
}

// Terms returns tokens followed by phrases, for logging and analytics.
func (q *Query) Terms() []string {
	terms := make([]string, 0, len(q.Tokens)+len(q.Phrases))
	terms = append(terms, q.Tokens...)
	for _, p := range q.Phrases {
		terms = append(terms, `"`+p+`"`)
	}
	return terms
}
