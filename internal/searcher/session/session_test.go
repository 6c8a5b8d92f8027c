package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/ranker"
)

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	block   map[string]chan struct{}
	started chan string
}

func (f *fakeSearcher) Execute(ctx context.Context, lang string, q *parser.Query, format executor.Format) (*executor.SearchResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q.RawQuery)
	wait := f.block[q.RawQuery]
	f.mu.Unlock()
	if f.started != nil {
		f.started <- q.RawQuery
	}
	if wait != nil {
		<-wait
	}
	return &executor.SearchResult{Query: q.RawQuery, Lang: lang}, nil
}

func (f *fakeSearcher) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func TestSequencer(t *testing.T) {
	var s Sequencer
	a := s.Next()
	b := s.Next()
	if b <= a {
		t.Fatalf("ids must increase: %d then %d", a, b)
	}
	if s.Current(a) {
		t.Error("superseded id reported current")
	}
	if !s.Current(b) {
		t.Error("latest id not current")
	}
}

func TestDebouncerRunsLastOnly(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var runs atomic.Int32
	var last atomic.Int32
	for i := 1; i <= 5; i++ {
		i := i
		d.Trigger(func() {
			runs.Add(1)
			last.Store(int32(i))
		})
	}
	time.Sleep(120 * time.Millisecond)
	if runs.Load() != 1 {
		t.Errorf("expected 1 run, got %d", runs.Load())
	}
	if last.Load() != 5 {
		t.Errorf("expected last trigger to run, got %d", last.Load())
	}
}

func TestDebouncerFlushAndStop(t *testing.T) {
	d := NewDebouncer(time.Hour)
	ran := false
	d.Trigger(func() { ran = true })
	d.Flush()
	if !ran {
		t.Error("Flush should run the pending function")
	}

	var stopped atomic.Bool
	d = NewDebouncer(10 * time.Millisecond)
	d.Trigger(func() { stopped.Store(true) })
	d.Stop()
	time.Sleep(40 * time.Millisecond)
	if stopped.Load() {
		t.Error("Stop should drop the pending function")
	}
	d.Flush()
	if stopped.Load() {
		t.Error("Flush after Stop should be a no-op")
	}
}

func TestSessionDebouncesBurst(t *testing.T) {
	searcher := &fakeSearcher{}
	out := make(chan Outcome, 4)
	s := New(context.Background(), searcher, Options{Lang: "it", Debounce: 20 * time.Millisecond}, func(o Outcome) { out <- o })

	var lastID uint64
	for _, q := range []string{"m", "me", "mer", "merc", "mercato"} {
		lastID = s.Submit(q)
	}

	select {
	case o := <-out:
		if o.ID != lastID || o.Query != "mercato" || o.Result.Lang != "it" {
			t.Errorf("unexpected outcome %+v", o)
		}
	case <-time.After(time.Second):
		t.Fatal("no outcome delivered")
	}
	time.Sleep(50 * time.Millisecond)
	if got := searcher.seen(); len(got) != 1 || got[0] != "mercato" {
		t.Errorf("expected a single search for the last query, got %v", got)
	}
}

func TestSessionDiscardsStaleResult(t *testing.T) {
	release := make(chan struct{})
	searcher := &fakeSearcher{
		block:   map[string]chan struct{}{"slow": release},
		started: make(chan string, 4),
	}
	out := make(chan Outcome, 4)
	s := New(context.Background(), searcher, Options{Lang: "it", Debounce: time.Millisecond}, func(o Outcome) { out <- o })

	s.Submit("slow")
	if q := <-searcher.started; q != "slow" {
		t.Fatalf("expected slow search to start, got %q", q)
	}
	s.Submit("fast")
	<-searcher.started

	select {
	case o := <-out:
		if o.Query != "fast" {
			t.Fatalf("expected fast result first, got %q", o.Query)
		}
	case <-time.After(time.Second):
		t.Fatal("fast result not delivered")
	}

	close(release)
	deadline := time.Now().Add(time.Second)
	for s.Discarded() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.Discarded() != 1 {
		t.Errorf("expected the slow result to be discarded, got %d", s.Discarded())
	}
	select {
	case o := <-out:
		t.Errorf("stale outcome delivered: %+v", o)
	default:
	}
}

func TestSessionWithExecutor(t *testing.T) {
	store := index.NewStore(index.StaticSource{
		"it": {{URL: "/it/I/1/1", Title: "Mercato", Content: "Il mercato alloca."}},
	})
	exec := executor.New(store, executor.Config{Ranking: ranker.DefaultOptions()})
	var got Outcome
	s := New(context.Background(), exec, Options{Lang: "it", Debounce: time.Hour}, func(o Outcome) { got = o })
	s.Submit("mercato")
	s.Flush()
	if got.Err != nil {
		t.Fatalf("search failed: %v", got.Err)
	}
	if got.Result == nil || len(got.Result.Results) != 1 {
		t.Fatalf("expected one result, got %+v", got.Result)
	}
}

func TestSessionFlushWaitsForRunningSearch(t *testing.T) {
	release := make(chan struct{})
	searcher := &fakeSearcher{
		block:   map[string]chan struct{}{"mercato": release},
		started: make(chan string, 1),
	}
	var delivered atomic.Int32
	s := New(context.Background(), searcher, Options{Lang: "it", Debounce: 10 * time.Millisecond}, func(Outcome) { delivered.Add(1) })

	s.Submit("mercato")
	<-searcher.started

	flushed := make(chan struct{})
	go func() {
		s.Flush()
		close(flushed)
	}()
	select {
	case <-flushed:
		t.Fatal("Flush returned while the search was still running")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-flushed:
	case <-time.After(time.Second):
		t.Fatal("Flush did not return after the search finished")
	}
	if delivered.Load() != 1 {
		t.Errorf("expected the result delivered before Flush returned, got %d", delivered.Load())
	}
}
