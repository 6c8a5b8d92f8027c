// Command analytics consumes the searcher's analytics events from Kafka,
// keeps running totals in memory and, when Postgres is reachable, saves
// periodic snapshots of them.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/analytics.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/postgres"
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
	slog.Info("starting analytics service", "port", cfg.Server.Port, "topic", cfg.Kafka.Topics.AnalyticsEvents)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	consumer, err := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
	if err != nil {
		slog.Error("failed to create consumer", "error", err)
		os.Exit(1)
	}
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()

	var snapshots analytics.SnapshotLister
	var db *postgres.Client
	var snapshotsDone <-chan struct{}
	err = resilience.Retry(ctx, "connect postgres", resilience.RetryConfig{MaxAttempts: 5}, func() error {
		var err error
		db, err = postgres.New(ctx, cfg.Postgres)
		return err
	})
	if err != nil {
		slog.Warn("postgres unavailable, snapshots disabled", "error", err)
	} else {
		defer db.Close()
		store := aggregator.NewStore(db, 0)
		if err := store.EnsureSchema(ctx); err != nil {
			slog.Error("failed to prepare analytics schema", "error", err)
			os.Exit(1)
		}
		snapshotsDone = store.StartPeriodicSave(ctx, agg, cfg.Postgres.SnapshotEvery)
		snapshots = store
	}

	checker := health.NewChecker()
	checker.Register("kafka", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("consumer lag %d", consumer.Lag())}
	})
	if db != nil {
		checker.Register("postgres", health.Optional(health.PingCheck(db.Ping)))
	}

	h := analytics.NewHandler(agg, snapshots)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", h.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID, middleware.CORS(middleware.DefaultCORSConfig())),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	slog.Info("analytics service starting", "addr", httpServer.Addr)
	if err := server.ListenAndRun(ctx, httpServer, cfg.Server.ShutdownTimeout); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	if db != nil {
		<-snapshotsDone
	}
	slog.Info("analytics service stopped")
}
