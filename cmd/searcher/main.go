// Command searcher serves full-text search over the book's per-language
// search.json indexes.
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/searcher.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/index"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/searcher/render"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting search service",
		"port", cfg.Server.Port,
		"languages", cfg.Index.Languages,
		"default_lang", cfg.Index.DefaultLang,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdownMetrics(context.Background())
	}

	observers := index.Observers{index.MetricsObserver(m)}

	var collector *analytics.Collector
	if cfg.Kafka.Enabled {
		topic := cfg.Kafka.Topics.AnalyticsEvents
		err := resilience.Retry(ctx, "ensure analytics topic", resilience.RetryConfig{MaxAttempts: 5}, func() error {
			return kafka.EnsureTopic(ctx, cfg.Kafka.Brokers, topic, 3, 1)
		})
		if err != nil {
			slog.Warn("could not ensure analytics topic, relying on broker auto-creation", "topic", topic, "error", err)
		}
		producer := kafka.NewProducer(cfg.Kafka, topic)
		defer producer.Close()
		collector = analytics.NewCollector(producer, analytics.CollectorConfig{})
		collector.Start(ctx)
		defer collector.Close()
		observers = append(observers, collector)
	}

	source := indexSource(cfg.Index, m)
	store := index.NewStore(source, index.WithObserver(observers))

	var queryCache *cache.QueryCache
	var redisClient *pkgredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(redisClient, cfg.Redis.CacheTTL)
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	exec := executor.New(store, executor.Config{
		Ranking: ranker.Options{
			MaxTotal:      cfg.Search.MaxTotal,
			MaxPerChapter: cfg.Search.MaxPerChapter,
			BasePath:      cfg.Index.BasePath,
		},
		SnippetLength: cfg.Search.SnippetLength,
		Renderer:      render.MarkupRenderer{},
	})
	defaultFormat := executor.FormatText
	if cfg.Search.RenderHTML {
		defaultFormat = executor.FormatHTML
	}
	var tracker handler.Tracker
	if collector != nil {
		tracker = collector
	}
	h := handler.New(exec, store, queryCache, tracker, m, handler.Config{
		Languages:     cfg.Index.Languages,
		DefaultLang:   cfg.Index.DefaultLang,
		DefaultFormat: defaultFormat,
	})

	// Warm the default language so the first reader does not pay for the
	// fetch. A failure here is retried by the first search.
	go func() {
		if _, err := store.Get(ctx, cfg.Index.DefaultLang); err != nil {
			slog.Warn("index warm-up failed", "lang", cfg.Index.DefaultLang, "error", err)
		}
	}()

	checker := health.NewChecker()
	checker.Register("index", health.PingCheck(func(ctx context.Context) error {
		_, err := store.Get(ctx, cfg.Index.DefaultLang)
		return err
	}))
	if redisClient != nil {
		checker.Register("redis", health.Optional(health.PingCheck(redisClient.Ping)))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/index/reload", h.ReloadIndex)
	mux.HandleFunc("GET /api/v1/index/status", h.IndexStatus)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.CORS(middleware.DefaultCORSConfig()),
	}
	if cfg.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, m)
		mws = append(mws, rl.Handler)
	}
	mws = append(mws, middleware.Metrics(m), middleware.Timeout(cfg.Server.WriteTimeout))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + time.Second,
	}

	slog.Info("search service starting", "addr", httpServer.Addr)
	if err := server.ListenAndRun(ctx, httpServer, cfg.Server.ShutdownTimeout); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("search service stopped")
}

// indexSource fetches over HTTP when a base URL is configured and reads the
// built site directory otherwise.
func indexSource(cfg config.IndexConfig, m *metrics.Metrics) index.Source {
	if cfg.BaseURL == "" {
		slog.Info("reading indexes from disk", "dir", cfg.Dir)
		return index.FileSource{Root: cfg.Dir}
	}
	breaker := resilience.NewCircuitBreaker("index-fetch", resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.FailureThreshold,
		ResetTimeout:     cfg.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	m.CircuitBreakerState.WithLabelValues(breaker.Name()).Set(float64(resilience.StateClosed))
	slog.Info("fetching indexes over http", "base_url", cfg.BaseURL)
	return index.NewHTTPSource(cfg.BaseURL, &http.Client{}, cfg.FetchTimeout, breaker)
}
