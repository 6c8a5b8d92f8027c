// Package executor runs one search over a language's loaded index: score
// every document, rank the survivors, and cut a snippet for each result.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/render"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/scorer"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/snippet"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/tracing"
)

// Format selects whether results carry rendered HTML next to the raw snippet.
type Format string

const (
	FormatText Format = "text"
	FormatHTML Format = "html"
)

// ctxCheckEvery is how many documents are scored between context checks.
const ctxCheckEvery = 256

type Hit struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	HTML    string `json:"html,omitempty"`
	Score   int    `json:"score"`
}

type SearchResult struct {
	Query       string   `json:"query"`
	Lang        string   `json:"lang"`
	TotalHits   int      `json:"total_hits"`
	Results     []Hit    `json:"results"`
	Tokens      []string `json:"tokens"`
	Phrases     []string `json:"phrases"`
	Fingerprint string   `json:"index_fingerprint,omitempty"`
}

// IndexProvider hands out loaded index snapshots. *index.Store satisfies it.
type IndexProvider interface {
	Get(ctx context.Context, lang string) (*index.Snapshot, error)
}

type Config struct {
	Ranking       ranker.Options
	SnippetLength int
	// Renderer is used for FormatHTML; nil leaves the HTML escaped only.
	Renderer render.Renderer
}

type Executor struct {
	indexes IndexProvider
	cfg     Config
	logger  *slog.Logger
}

func New(indexes IndexProvider, cfg Config) *Executor {
	if cfg.SnippetLength <= 0 {
		cfg.SnippetLength = snippet.DefaultMaxLen
	}
	return &Executor{
		indexes: indexes,
		cfg:     cfg,
		logger:  slog.Default().With("component", "query-executor"),
	}
}

// BasePath is the site prefix stripped from urls for ranking and titles.
func (e *Executor) BasePath() string {
	return e.cfg.Ranking.BasePath
}

// Execute searches lang's index for q. A query with no tokens and no
// phrases returns an empty result without loading the index.
func (e *Executor) Execute(ctx context.Context, lang string, q *parser.Query, format Format) (*SearchResult, error) {
	result := &SearchResult{
		Query:   q.RawQuery,
		Lang:    lang,
		Results: []Hit{},
		Tokens:  q.Tokens,
		Phrases: q.Phrases,
	}
	if q.Empty() {
		return result, nil
	}

	start := time.Now()
	snap, err := e.indexes.Get(ctx, lang)
	if err != nil {
		return nil, fmt.Errorf("loading %s index: %w", lang, err)
	}
	result.Fingerprint = snap.Fingerprint

	candidates, err := e.score(ctx, snap.Documents, q)
	if err != nil {
		return nil, err
	}
	result.TotalHits = len(candidates)

	_, rankSpan := tracing.StartChildSpan(ctx, "rank")
	ranked := ranker.Rank(candidates, e.cfg.Ranking)
	rankSpan.SetAttr("kept", len(ranked))
	rankSpan.End()

	_, snippetSpan := tracing.StartChildSpan(ctx, "snippet")
	needle := q.SnippetNeedle()
	for _, c := range ranked {
		hit := Hit{
			URL:     c.Document.URL,
			Title:   strings.TrimSpace(c.Document.Title),
			Snippet: snippet.Make(c.Document.Content, needle, e.cfg.SnippetLength),
			Score:   c.Score,
		}
		if hit.Title == "" {
			hit.Title = ranker.StripBase(hit.URL, e.cfg.Ranking.BasePath)
		}
		if format == FormatHTML {
			hit.HTML = render.HTML(hit.Snippet, e.cfg.Renderer)
		}
		result.Results = append(result.Results, hit)
	}
	snippetSpan.End()

	e.logger.Info("query executed",
		"query", q.RawQuery,
		"lang", lang,
		"tokens", q.Tokens,
		"phrases", q.Phrases,
		"documents", len(snap.Documents),
		"hits", result.TotalHits,
		"results", len(result.Results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func (e *Executor) score(ctx context.Context, docs []index.Document, q *parser.Query) ([]ranker.Candidate, error) {
	_, span := tracing.StartChildSpan(ctx, "score")
	defer span.End()

	var candidates []ranker.Candidate
	for i, doc := range docs {
		if i%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("scoring interrupted: %w", err)
			}
		}
		if ranker.IsSiteMap(doc.URL, e.cfg.Ranking.BasePath) {
			continue
		}
		s, ok := scorer.ScoreDocument(doc, q)
		if !ok {
			continue
		}
		candidates = append(candidates, ranker.Candidate{Document: doc, Score: s})
	}
	span.SetAttr("documents", len(docs))
	span.SetAttr("passed", len(candidates))
	return candidates, nil
}
