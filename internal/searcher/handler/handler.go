// Package handler exposes the search pipeline over HTTP: the search
// endpoint plus the operator endpoints for index reloads and the result
// cache.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/tracing"
)

type SearchExecutor interface {
	Execute(ctx context.Context, lang string, q *parser.Query, format executor.Format) (*executor.SearchResult, error)
}

// IndexManager is the part of *index.Store the handler drives.
type IndexManager interface {
	Get(ctx context.Context, lang string) (*index.Snapshot, error)
	Reload(ctx context.Context, lang string) (*index.Snapshot, error)
	Loaded() []string
}

// Tracker receives one event per search. *analytics.Collector satisfies it.
type Tracker interface {
	TrackSearch(e analytics.SearchEvent)
}

type Config struct {
	Languages     []string
	DefaultLang   string
	DefaultFormat executor.Format
}

type Handler struct {
	executor SearchExecutor
	indexes  IndexManager
	cache    *cache.QueryCache
	tracker  Tracker
	metrics  *metrics.Metrics
	cfg      Config
	logger   *slog.Logger
}

// New wires the handler. cache, tracker and m may be nil.
func New(exec SearchExecutor, indexes IndexManager, queryCache *cache.QueryCache, tracker Tracker, m *metrics.Metrics, cfg Config) *Handler {
	if cfg.DefaultFormat == "" {
		cfg.DefaultFormat = executor.FormatText
	}
	return &Handler{
		executor: exec,
		indexes:  indexes,
		cache:    queryCache,
		tracker:  tracker,
		metrics:  m,
		cfg:      cfg,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Search handles GET /api/v1/search?q=&lang=&format=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	params := r.URL.Query()
	if !params.Has("q") {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	raw := params.Get("q")

	lang, err := h.language(params.Get("lang"))
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	format, err := h.format(params.Get("format"))
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}

	ctx, root := tracing.StartSpan(r.Context(), "search", middleware.GetRequestID(r.Context()))
	root.SetAttr("lang", lang)
	log := logger.FromContext(ctx)

	_, parseSpan := tracing.StartChildSpan(ctx, "parse")
	q := parser.Parse(raw)
	parseSpan.End()

	result, cacheStatus, err := h.run(ctx, lang, q, format)
	root.End()
	latency := time.Since(start)

	event := analytics.SearchEvent{
		Query:     raw,
		Lang:      lang,
		Tokens:    q.Tokens,
		Phrases:   q.Phrases,
		LatencyMs: latency.Milliseconds(),
		CacheHit:  cacheStatus == "hit",
		RequestID: middleware.GetRequestID(ctx),
	}

	if err != nil {
		status := apperrors.HTTPStatusCode(err)
		log.Error("search failed", "lang", lang, "query", raw, "status", status, "error", err)
		h.observe(lang, "error", cacheStatus, latency, -1)
		event.Error = err.Error()
		h.track(event)
		h.writeError(w, status, errorMessage(err, status))
		return
	}

	outcome := "hit"
	switch {
	case q.Empty():
		outcome = "empty"
	case result.TotalHits == 0:
		outcome = "zero_result"
	}
	h.observe(lang, outcome, cacheStatus, latency, len(result.Results))
	event.TotalHits = result.TotalHits
	event.Returned = len(result.Results)
	h.track(event)

	log.Info("search completed",
		"lang", lang,
		"query", raw,
		"total_hits", result.TotalHits,
		"cache", cacheStatus,
		"latency_ms", latency.Milliseconds(),
	)
	root.Log(log)
	if timing := root.ServerTiming(); timing != "" {
		w.Header().Set("Server-Timing", timing)
	}
	h.writeJSON(w, http.StatusOK, result)
}

// run executes q, going through the result cache when one is configured.
// The cache key needs the index fingerprint, so the snapshot is fetched
// first; the executor then gets the already-loaded copy from the store.
func (h *Handler) run(ctx context.Context, lang string, q *parser.Query, format executor.Format) (*executor.SearchResult, string, error) {
	if h.cache == nil || q.Empty() {
		res, err := h.executor.Execute(ctx, lang, q, format)
		return res, "disabled", timeoutAware(err)
	}

	snap, err := h.indexes.Get(ctx, lang)
	if err != nil {
		return nil, "miss", fmt.Errorf("loading %s index: %w", lang, err)
	}
	key := cache.Key{
		Lang:        lang,
		Fingerprint: snap.Fingerprint,
		Format:      format,
		Tokens:      q.Tokens,
		Phrases:     q.Phrases,
	}
	res, hit, err := h.cache.GetOrCompute(ctx, key, func() (*executor.SearchResult, error) {
		return h.executor.Execute(ctx, lang, q, format)
	})
	status := "miss"
	if hit {
		status = "hit"
	}
	if err != nil {
		return nil, status, timeoutAware(err)
	}
	// Cached and shared results belong to whichever raw string produced
	// them first.
	out := *res
	out.Query = q.RawQuery
	return &out, status, nil
}

func timeoutAware(err error) error {
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
	}
	return err
}

func (h *Handler) language(lang string) (string, error) {
	if lang == "" {
		return h.cfg.DefaultLang, nil
	}
	if !slices.Contains(h.cfg.Languages, lang) {
		return "", fmt.Errorf("%w: %q (available: %v)", apperrors.ErrUnknownLanguage, lang, h.cfg.Languages)
	}
	return lang, nil
}

func (h *Handler) format(f string) (executor.Format, error) {
	switch executor.Format(f) {
	case "":
		return h.cfg.DefaultFormat, nil
	case executor.FormatText, executor.FormatHTML:
		return executor.Format(f), nil
	default:
		return "", fmt.Errorf("%w: format must be %q or %q", apperrors.ErrInvalidInput, executor.FormatText, executor.FormatHTML)
	}
}

// errorMessage keeps internal details out of 5xx bodies, except for index
// load failures whose message names the failing index.
func errorMessage(err error, status int) string {
	var loadErr *apperrors.IndexLoadError
	switch {
	case errors.As(err, &loadErr):
		return loadErr.Error()
	case status == http.StatusServiceUnavailable:
		return "search timed out"
	case status >= 500:
		return "search failed"
	default:
		return err.Error()
	}
}

func (h *Handler) observe(lang, outcome, cacheStatus string, latency time.Duration, returned int) {
	if h.metrics == nil {
		return
	}
	h.metrics.SearchQueriesTotal.WithLabelValues(lang, outcome).Inc()
	h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	if returned >= 0 {
		h.metrics.SearchResultsCount.Observe(float64(returned))
	}
	switch cacheStatus {
	case "hit":
		h.metrics.CacheHitsTotal.Inc()
	case "miss":
		h.metrics.CacheMissesTotal.Inc()
	}
}

func (h *Handler) track(e analytics.SearchEvent) {
	if h.tracker != nil {
		h.tracker.TrackSearch(e)
	}
}

// ReloadIndex handles POST /api/v1/index/reload?lang=. Without lang every
// configured language is reloaded. Cached results for a reloaded language
// are dropped.
func (h *Handler) ReloadIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	langs := h.cfg.Languages
	if lang := r.URL.Query().Get("lang"); lang != "" {
		if _, err := h.language(lang); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		langs = []string{lang}
	}

	type reloadResult struct {
		Lang        string `json:"lang"`
		Documents   int    `json:"documents,omitempty"`
		Fingerprint string `json:"fingerprint,omitempty"`
		Error       string `json:"error,omitempty"`
	}
	results := make([]reloadResult, 0, len(langs))
	failed := 0
	for _, lang := range langs {
		snap, err := h.indexes.Reload(ctx, lang)
		if err != nil {
			failed++
			results = append(results, reloadResult{Lang: lang, Error: err.Error()})
			continue
		}
		if h.cache != nil {
			if _, err := h.cache.Invalidate(ctx, lang); err != nil {
				logger.FromContext(ctx).Warn("cache invalidation after reload failed", "lang", lang, "error", err)
			}
		}
		results = append(results, reloadResult{Lang: lang, Documents: len(snap.Documents), Fingerprint: snap.Fingerprint})
	}

	status := http.StatusOK
	if failed == len(langs) {
		status = http.StatusBadGateway
	}
	h.writeJSON(w, status, map[string]any{"reloaded": results})
}

// IndexStatus handles GET /api/v1/index/status.
func (h *Handler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	loaded := h.indexes.Loaded()
	type langStatus struct {
		Lang        string    `json:"lang"`
		Loaded      bool      `json:"loaded"`
		Documents   int       `json:"documents,omitempty"`
		Fingerprint string    `json:"fingerprint,omitempty"`
		Location    string    `json:"location,omitempty"`
		LoadedAt    time.Time `json:"loaded_at,omitzero"`
	}
	out := make([]langStatus, 0, len(h.cfg.Languages))
	for _, lang := range h.cfg.Languages {
		st := langStatus{Lang: lang}
		if slices.Contains(loaded, lang) {
			// Get on a loaded language returns the cached snapshot.
			if snap, err := h.indexes.Get(r.Context(), lang); err == nil {
				st.Loaded = true
				st.Documents = len(snap.Documents)
				st.Fingerprint = snap.Fingerprint
				st.Location = snap.Location
				st.LoadedAt = snap.LoadedAt
			}
		}
		out = append(out, st)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"languages": out, "default": h.cfg.DefaultLang})
}

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	stats := h.cache.Stats()
	total := stats.Hits + stats.Misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

// CacheInvalidate handles POST /api/v1/cache/invalidate?lang=.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	lang := r.URL.Query().Get("lang")
	if lang != "" {
		if _, err := h.language(lang); err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	deleted, err := h.cache.Invalidate(r.Context(), lang)
	if err != nil {
		h.logger.Error("cache invalidation failed", "lang", lang, "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "invalidated", "keys_deleted": deleted})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
