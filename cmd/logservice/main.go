package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"corridor/internal/claims"
	"corridor/internal/eventbus"
	logconsumer "corridor/internal/logs/consumer"
	loghandler "corridor/internal/logs/handler"
	logservice "corridor/internal/logs/service"
	"corridor/internal/logs/store/memory"
	"corridor/internal/logs/store/postgres"
	"corridor/internal/platform/config"
	"corridor/internal/platform/httpserver"
	"corridor/internal/platform/logger"
	"corridor/internal/platform/metrics"
	httptransport "corridor/internal/transport/http"
	"corridor/pkg/platform/middleware/metadata"
	request "corridor/pkg/platform/middleware/request"
)

// main runs the log service: it consumes user events into audit records and
// serves audit ingestion and the query views.
func main() {
	cfg := config.FromEnv("log-service", ":3002")
	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: cfg.ServiceName})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("log service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	metrics.New(cfg.ServiceName, cfg.Environment)

	validator, err := claims.FromConfig(ctx, cfg.Auth, log)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	logs := logservice.New(store, logservice.WithLogger(log))

	topology := eventbus.TopologyFromConfig(cfg.Bus)
	consumer := eventbus.NewConsumer(cfg.Bus.URL, topology.Queues[0].Queue,
		logconsumer.New(logs, cfg.ServiceName, log),
		eventbus.WithConsumerLogger(log),
		eventbus.WithConsumerMetrics(eventbus.NewMetrics()),
		eventbus.WithConsumerTopology(topology),
		eventbus.WithConsumerReconnect(eventbus.ReconnectFromConfig(cfg.Bus)),
		eventbus.WithPrefetch(cfg.Bus.Prefetch),
	)

	health := httptransport.NewHealthHandler(cfg.ServiceName).
		Check("store", func(ctx context.Context) string {
			if err := logs.Health(ctx); err != nil {
				return "unreachable"
			}
			return "ok"
		}).
		Check("consumer", func(context.Context) string {
			if cfg.Bus.URL == "" {
				return "disabled"
			}
			return consumer.State().String()
		})

	r := chi.NewRouter()
	r.Use(request.Correlation(cfg.ServiceName))
	r.Use(metadata.ClientMetadata)
	r.Use(request.Time)
	r.Use(request.Recovery(log))
	r.Use(request.Logger(log))
	r.Get("/health", health.ServeHTTP)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	loghandler.New(logs, log, validator, cfg.Audit.IngestToken).Register(r)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.Run(ctx) })
	g.Go(func() error { return httpserver.Run(ctx, httpserver.New(cfg.Addr, r), log) })
	return g.Wait()
}

// openStore uses PostgreSQL when DATABASE_URL is set and memory otherwise.
// The postgres package registers the lib/pq driver.
func openStore(ctx context.Context, cfg config.Server, log *slog.Logger) (logservice.Store, func(), error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, audit records are kept in memory")
		return memory.NewInMemoryStore(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("open log store: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store := postgres.New(db)
	if err := store.EnsureSchema(initCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("prepare log store: %w", err)
	}
	return store, func() { _ = db.Close() }, nil
}
