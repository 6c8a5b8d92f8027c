package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/kafka"
)

type fakePublisher struct {
	mu      sync.Mutex
	batches [][]kafka.Event
	err     error
}

func (p *fakePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, append([]kafka.Event(nil), events...))
	return nil
}

func (p *fakePublisher) events() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var all []kafka.Event
	for _, b := range p.batches {
		all = append(all, b...)
	}
	return all
}

func TestDecodeEvent(t *testing.T) {
	search, _ := json.Marshal(SearchEvent{Type: EventSearch, Query: "mercato", Lang: "it", TotalHits: 3})
	ev, err := DecodeEvent(search)
	if err != nil {
		t.Fatal(err)
	}
	if se, ok := ev.(SearchEvent); !ok || se.Query != "mercato" || se.TotalHits != 3 {
		t.Errorf("unexpected search event %#v", ev)
	}

	idx, _ := json.Marshal(IndexEvent{Type: EventIndexLoad, Lang: "en", Documents: 12})
	ev, err = DecodeEvent(idx)
	if err != nil {
		t.Fatal(err)
	}
	if ie, ok := ev.(IndexEvent); !ok || ie.Documents != 12 {
		t.Errorf("unexpected index event %#v", ev)
	}

	for _, bad := range []string{`{"type":"nope"}`, `not json`, `{}`} {
		if _, err := DecodeEvent([]byte(bad)); err == nil {
			t.Errorf("expected error for %s", bad)
		}
	}
}

func TestCollectorFlushesOnBatchSize(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, CollectorConfig{BatchSize: 2, FlushInterval: time.Hour})
	c.Start(context.Background())

	c.TrackSearch(SearchEvent{Query: "a", Lang: "it"})
	c.TrackSearch(SearchEvent{Query: "b", Lang: "it"})
	deadline := time.Now().Add(2 * time.Second)
	for len(pub.events()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := len(pub.events()); got != 2 {
		t.Fatalf("expected batch of 2 published before Close, got %d", got)
	}

	c.TrackSearch(SearchEvent{Query: "c", Lang: "en"})
	c.Close()
	events := pub.events()
	if len(events) != 3 {
		t.Fatalf("expected remainder flushed on Close, got %d events", len(events))
	}
	last := events[2]
	se, ok := last.Value.(SearchEvent)
	if !ok || se.Type != EventSearch || se.Timestamp.IsZero() || last.Key != "en" {
		t.Errorf("unexpected event %#v", last)
	}

	// no-ops after Close
	c.TrackSearch(SearchEvent{Query: "d"})
	c.Close()
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(&fakePublisher{}, CollectorConfig{BufferSize: 1})
	c.Track("k", "first")
	c.Track("k", "second")
	if c.Dropped() != 1 {
		t.Errorf("expected 1 dropped event, got %d", c.Dropped())
	}
}

func TestCollectorCountsPublishFailures(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	c := NewCollector(pub, CollectorConfig{BatchSize: 10, FlushInterval: time.Hour})
	c.Start(context.Background())
	c.TrackSearch(SearchEvent{Query: "x"})
	c.Close()
	if c.Failed() != 1 {
		t.Errorf("expected 1 failed event, got %d", c.Failed())
	}
}

func TestCollectorObservesIndexLoads(t *testing.T) {
	pub := &fakePublisher{}
	c := NewCollector(pub, CollectorConfig{FlushInterval: time.Hour})
	c.Start(context.Background())

	store := index.NewStore(index.StaticSource{
		"it": {{URL: "/it/I/1/1", Content: "mercato"}},
	}, index.WithObserver(c))
	if _, err := store.Get(context.Background(), "it"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(context.Background(), "de"); err == nil {
		t.Fatal("expected missing language to fail")
	}
	c.Close()

	events := pub.events()
	if len(events) != 2 {
		t.Fatalf("expected two index events, got %d", len(events))
	}
	ok := events[0].Value.(IndexEvent)
	if ok.Documents != 1 || ok.Fingerprint == "" || ok.Error != "" {
		t.Errorf("unexpected success event %#v", ok)
	}
	failed := events[1].Value.(IndexEvent)
	if failed.Lang != "de" || failed.Error == "" {
		t.Errorf("unexpected failure event %#v", failed)
	}
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.startTime = time.Unix(0, 0)
	agg.now = func() time.Time { return time.Unix(120, 0) }

	agg.Record(SearchEvent{Query: "mercato", Lang: "it", TotalHits: 5, LatencyMs: 10})
	agg.Record(SearchEvent{Query: "mercato", Lang: "it", TotalHits: 5, LatencyMs: 30, CacheHit: true})
	agg.Record(SearchEvent{Query: "zzz", Lang: "en", TotalHits: 0, LatencyMs: 20})
	agg.Record(SearchEvent{Query: "x", Lang: "en", Error: "index unavailable"})
	agg.Record(IndexEvent{Lang: "it", Documents: 40, Fingerprint: "abc"})
	agg.Record(IndexEvent{Lang: "en", Error: "non-success status"})
	agg.Record("garbage")

	s := agg.Stats()
	if s.TotalSearches != 4 || s.SearchErrors != 1 {
		t.Errorf("totals: %+v", s)
	}
	if s.CacheHits != 1 || s.CacheMisses != 2 || s.ZeroResultCount != 1 {
		t.Errorf("cache/zero counts: %+v", s)
	}
	if s.AvgLatencyMs != 20 || s.P50LatencyMs != 20 || s.P99LatencyMs != 30 {
		t.Errorf("latencies: avg=%v p50=%d p99=%d", s.AvgLatencyMs, s.P50LatencyMs, s.P99LatencyMs)
	}
	if len(s.TopQueries) == 0 || s.TopQueries[0] != (QueryCount{Query: "mercato", Count: 2}) {
		t.Errorf("top queries: %+v", s.TopQueries)
	}
	if len(s.ZeroResultQueries) != 1 || s.ZeroResultQueries[0].Query != "zzz" {
		t.Errorf("zero-result queries: %+v", s.ZeroResultQueries)
	}
	if s.QueriesPerMinute != 2 {
		t.Errorf("expected 2 qpm, got %v", s.QueriesPerMinute)
	}
	it, en := s.Languages["it"], s.Languages["en"]
	if it.Searches != 2 || it.IndexLoads != 1 || it.Documents != 40 || it.Fingerprint != "abc" {
		t.Errorf("it stats: %+v", it)
	}
	if en.Searches != 2 || en.ZeroResults != 1 || en.IndexFailures != 1 || en.LastIndexError == "" {
		t.Errorf("en stats: %+v", en)
	}
}

func TestAggregatorLatencyWindowBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < maxLatencySamples+50; i++ {
		agg.Record(SearchEvent{Query: "q", LatencyMs: int64(i), TotalHits: 1})
	}
	if len(agg.latencies) != maxLatencySamples {
		t.Errorf("expected window of %d, got %d", maxLatencySamples, len(agg.latencies))
	}
	// the first 50 samples were overwritten
	if s := agg.Stats(); s.P50LatencyMs < 50 {
		t.Errorf("expected oldest samples evicted, p50=%d", s.P50LatencyMs)
	}
}

func TestHandleEvent(t *testing.T) {
	agg := NewAggregator()
	h := HandleEvent(agg)
	value, _ := json.Marshal(SearchEvent{Type: EventSearch, Query: "q", Lang: "it", TotalHits: 1})
	if err := h(context.Background(), []byte("it"), value); err != nil {
		t.Fatal(err)
	}
	if err := h(context.Background(), nil, []byte("{broken")); err != nil {
		t.Errorf("undecodable message should be skipped, got %v", err)
	}
	if agg.Stats().TotalSearches != 1 {
		t.Error("expected one recorded search")
	}
}

type fakeLister struct {
	snaps []AggregatedStats
	err   error
	limit int
}

func (f *fakeLister) ListSnapshots(ctx context.Context, limit int) ([]AggregatedStats, error) {
	f.limit = limit
	return f.snaps, f.err
}

func TestHandler(t *testing.T) {
	agg := NewAggregator()
	agg.Record(SearchEvent{Query: "q", Lang: "it", TotalHits: 1})
	lister := &fakeLister{snaps: []AggregatedStats{{TotalSearches: 7}}}
	h := NewHandler(agg, lister)

	rec := httptest.NewRecorder()
	h.Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	var stats AggregatedStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil || stats.TotalSearches != 1 {
		t.Errorf("stats response: %v %+v", err, stats)
	}

	rec = httptest.NewRecorder()
	h.Snapshots(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics/snapshots?limit=100000", nil))
	if rec.Code != http.StatusOK || lister.limit != maxSnapshotLimit {
		t.Errorf("code=%d limit=%d", rec.Code, lister.limit)
	}

	tests := []struct {
		name   string
		h      *Handler
		target string
		want   int
	}{
		{"bad limit", h, "/api/v1/analytics/snapshots?limit=-1", http.StatusBadRequest},
		{"no storage", NewHandler(agg, nil), "/api/v1/analytics/snapshots", http.StatusNotFound},
		{"storage error", NewHandler(agg, &fakeLister{err: fmt.Errorf("db down")}), "/api/v1/analytics/snapshots", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.h.Snapshots(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != tt.want {
				t.Errorf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
