package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

const topQueriesLimit = 10

type AggregatedStats struct {
	TotalSearches     int64                `json:"total_searches"`
	SearchErrors      int64                `json:"search_errors"`
	CacheHits         int64                `json:"cache_hits"`
	CacheMisses       int64                `json:"cache_misses"`
	ZeroResultCount   int64                `json:"zero_result_count"`
	AvgLatencyMs      float64              `json:"avg_latency_ms"`
	P50LatencyMs      int64                `json:"p50_latency_ms"`
	P95LatencyMs      int64                `json:"p95_latency_ms"`
	P99LatencyMs      int64                `json:"p99_latency_ms"`
	TopQueries        []QueryCount         `json:"top_queries"`
	ZeroResultQueries []QueryCount         `json:"zero_result_queries"`
	QueriesPerMinute  float64              `json:"queries_per_minute"`
	Languages         map[string]LangStats `json:"languages"`
	CapturedAt        time.Time            `json:"captured_at"`
}

// LangStats is the per-language slice of the totals plus the state of the
// last index load.
type LangStats struct {
	Searches        int64  `json:"searches"`
	ZeroResults     int64  `json:"zero_results"`
	IndexLoads      int64  `json:"index_loads"`
	IndexFailures   int64  `json:"index_failures"`
	Documents       int    `json:"documents"`
	Fingerprint     string `json:"fingerprint,omitempty"`
	LastIndexError  string `json:"last_index_error,omitempty"`
	LastIndexLoadMs int64  `json:"last_index_load_ms"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator keeps running totals of the events it is given. Latencies are
// kept in a ring of the most recent maxLatencySamples searches.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	searchErrors      int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	latencies         []int64
	latencyNext       int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	langs             map[string]*LangStats
	startTime         time.Time
	now               func() time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		langs:             make(map[string]*LangStats),
		startTime:         time.Now(),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
}

// HandleEvent adapts the aggregator to a Kafka consumer. Undecodable
// messages are logged and committed so they do not block the partition.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := DecodeEvent(value)
		if err != nil {
			agg.logger.Error("failed to decode analytics event", "key", string(key), "error", err)
			return nil
		}
		agg.Record(event)
		return nil
	}
}

// Record folds a SearchEvent or IndexEvent into the totals.
func (a *Aggregator) Record(event any) {
	switch e := event.(type) {
	case SearchEvent:
		a.recordSearch(e)
	case IndexEvent:
		a.recordIndexLoad(e)
	default:
		a.logger.Warn("ignoring unknown event", "type", fmt.Sprintf("%T", e))
	}
}

func (a *Aggregator) lang(name string) *LangStats {
	ls, ok := a.langs[name]
	if !ok {
		ls = &LangStats{}
		a.langs[name] = ls
	}
	return ls
}

func (a *Aggregator) recordSearch(e SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	ls := a.lang(e.Lang)
	ls.Searches++
	if e.Error != "" {
		a.searchErrors++
		return
	}
	if e.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, e.LatencyMs)
	} else {
		a.latencies[a.latencyNext] = e.LatencyMs
		a.latencyNext = (a.latencyNext + 1) % maxLatencySamples
	}

	a.queryCounts[e.Query]++
	if e.TotalHits == 0 {
		a.zeroResults++
		ls.ZeroResults++
		a.zeroResultQueries[e.Query]++
	}
}

func (a *Aggregator) recordIndexLoad(e IndexEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ls := a.lang(e.Lang)
	ls.LastIndexLoadMs = e.LatencyMs
	if e.Error != "" {
		ls.IndexFailures++
		ls.LastIndexError = e.Error
		return
	}
	ls.IndexLoads++
	ls.Documents = e.Documents
	ls.Fingerprint = e.Fingerprint
	ls.LastIndexError = ""
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := a.now()
	stats := AggregatedStats{
		TotalSearches:   a.totalSearches,
		SearchErrors:    a.searchErrors,
		CacheHits:       a.cacheHits,
		CacheMisses:     a.cacheMisses,
		ZeroResultCount: a.zeroResults,
		Languages:       make(map[string]LangStats, len(a.langs)),
		CapturedAt:      now.UTC(),
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, topQueriesLimit)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, topQueriesLimit)
	for name, ls := range a.langs {
		stats.Languages[name] = *ls
	}
	if elapsed := now.Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then query text so ties are stable across calls.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
