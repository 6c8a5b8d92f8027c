// Package session drives keystroke-style searching: submissions are
// debounced, and a result is delivered only if its query is still the
// latest one when the search finishes.
package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/parser"
)

const DefaultDebounce = 80 * time.Millisecond

// Sequencer hands out increasing query ids and remembers the latest.
type Sequencer struct {
	latest atomic.Uint64
}

func (s *Sequencer) Next() uint64 {
	return s.latest.Add(1)
}

// Current reports whether id is still the latest query.
func (s *Sequencer) Current(id uint64) bool {
	return s.latest.Load() == id
}

// Searcher is satisfied by *executor.Executor.
type Searcher interface {
	Execute(ctx context.Context, lang string, q *parser.Query, format executor.Format) (*executor.SearchResult, error)
}

// Outcome is one delivered search.
type Outcome struct {
	ID     uint64
	Query  string
	Result *executor.SearchResult
	Err    error
}

type Session struct {
	ctx       context.Context
	searcher  Searcher
	lang      string
	format    executor.Format
	debouncer *Debouncer
	seq       Sequencer
	deliver   func(Outcome)
	discarded atomic.Int64
	logger    *slog.Logger
}

type Options struct {
	Lang     string
	Format   executor.Format
	Debounce time.Duration
}

func New(ctx context.Context, searcher Searcher, opts Options, deliver func(Outcome)) *Session {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Format == "" {
		opts.Format = executor.FormatText
	}
	return &Session{
		ctx:       ctx,
		searcher:  searcher,
		lang:      opts.Lang,
		format:    opts.Format,
		debouncer: NewDebouncer(opts.Debounce),
		deliver:   deliver,
		logger:    slog.Default().With("component", "search-session"),
	}
}

// Submit records raw as the latest query and schedules it. It returns the
// query id.
func (s *Session) Submit(raw string) uint64 {
	id := s.seq.Next()
	s.debouncer.Trigger(func() { s.run(id, raw) })
	return id
}

// Flush runs a pending submission immediately.
func (s *Session) Flush() {
	s.debouncer.Flush()
}

// Close drops any pending submission.
func (s *Session) Close() {
	s.debouncer.Stop()
}

// Discarded counts finished searches whose result was superseded.
func (s *Session) Discarded() int64 {
	return s.discarded.Load()
}

func (s *Session) run(id uint64, raw string) {
	if !s.seq.Current(id) {
		return
	}
	result, err := s.searcher.Execute(s.ctx, s.lang, parser.Parse(raw), s.format)
	if !s.seq.Current(id) {
		s.discarded.Add(1)
		s.logger.Debug("stale result discarded", "id", id, "query", raw)
		return
	}
	s.deliver(Outcome{ID: id, Query: raw, Result: result, Err: err})
}
