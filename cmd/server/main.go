package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"corridor/internal/audit"
	"corridor/internal/claims"
	"corridor/internal/eventbus"
	"corridor/internal/platform/config"
	"corridor/internal/platform/httpserver"
	"corridor/internal/platform/logger"
	"corridor/internal/platform/metrics"
	"corridor/internal/platform/redis"
	"corridor/internal/query/answerer"
	queryhandler "corridor/internal/query/handler"
	rlconfig "corridor/internal/ratelimit/config"
	rlmetrics "corridor/internal/ratelimit/metrics"
	rlmiddleware "corridor/internal/ratelimit/middleware"
	"corridor/internal/ratelimit/ports"
	rlservice "corridor/internal/ratelimit/service"
	"corridor/internal/ratelimit/store/bucket"
	httptransport "corridor/internal/transport/http"
	usershandler "corridor/internal/users/handler"
	usersservice "corridor/internal/users/service"
	usersstore "corridor/internal/users/store"
	"corridor/pkg/platform/audit/emitter"
)

// main wires the edge service: claims validation, rate limiting, user
// lifecycle routes that publish events, and audit emission.
func main() {
	cfg := config.FromEnv("edge", ":8080")
	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: cfg.ServiceName})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("edge service stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	metrics.New(cfg.ServiceName, cfg.Environment)

	validator, err := claims.FromConfig(ctx, cfg.Auth, log)
	if err != nil {
		return err
	}

	counters, redisClient, err := counterStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	limiter, err := rlservice.New(counters,
		rlservice.WithLogger(log),
		rlservice.WithMetrics(rlmetrics.New()),
		rlservice.WithStoreTimeout(cfg.RateLimit.StoreTimeout),
	)
	if err != nil {
		return err
	}
	policies := rlconfig.DefaultConfig()
	if err := policies.Validate(); err != nil {
		return err
	}

	publisher := eventbus.NewPublisher(cfg.Bus.URL,
		eventbus.WithPublisherLogger(log),
		eventbus.WithPublisherMetrics(eventbus.NewMetrics()),
		eventbus.WithPublisherTopology(eventbus.TopologyFromConfig(cfg.Bus)),
		eventbus.WithPublisherReconnect(eventbus.ReconnectFromConfig(cfg.Bus)),
	)
	defer publisher.Close()

	emit := newEmitter(cfg, log)
	defer emit.Close()
	auditor := audit.New(emit)

	users := usersservice.New(usersstore.NewInMemoryStore(), publisher, usersservice.WithLogger(log))

	var answer queryhandler.Answerer = answerer.Local{}
	if cfg.Query.AnswererURL != "" {
		answer = answerer.NewHTTP(cfg.Query.AnswererURL, cfg.Query.Timeout)
	} else {
		log.Warn("QUERY_ANSWERER_URL not set, POST /query answers locally")
	}

	health := httptransport.NewHealthHandler(cfg.ServiceName).
		Check("bus", func(context.Context) string {
			switch {
			case !publisher.Configured():
				return "disabled"
			case publisher.Connected():
				return "connected"
			default:
				return "disconnected"
			}
		})
	if redisClient != nil {
		health.Check("redis", func(ctx context.Context) string {
			if err := redisClient.Health(ctx); err != nil {
				return "unreachable"
			}
			return "ok"
		})
	}

	router := httptransport.NewRouter(httptransport.Deps{
		ServiceName: cfg.ServiceName,
		Logger:      log,
		Validator:   validator,
		Limiter:     rlmiddleware.New(limiter, log, rlmiddleware.WithDisabled(cfg.RateLimit.Disabled)),
		Policies:    policies,
		Auth:        httptransport.NewAuthHandler(auditor, log),
		Health:      health,
		Metrics:     metrics.Handler(),
		Users:       usershandler.New(users, auditor, log),
		Query:       queryhandler.New(answer, auditor, log),
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return publisher.Run(ctx) })
	if mem, ok := counters.(*bucket.InMemoryBucketStore); ok {
		g.Go(func() error {
			mem.RunSweeper(ctx, time.Minute)
			return nil
		})
	}
	g.Go(func() error { return httpserver.Run(ctx, httpserver.New(cfg.Addr, router), log) })
	return g.Wait()
}

// counterStore prefers Redis so every instance shares one quota. Without
// REDIS_URL the counters are per process.
func counterStore(ctx context.Context, cfg config.Server, log *slog.Logger) (ports.CounterStore, *redis.Client, error) {
	if cfg.Redis.URL == "" {
		log.Warn("REDIS_URL not set, rate limit counters are per instance")
		return bucket.NewInMemoryBucketStore(), nil, nil
	}
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return bucket.NewRedisBucketStore(client.Client), client, nil
}

func newEmitter(cfg config.Server, log *slog.Logger) *emitter.Emitter {
	opts := []emitter.Option{
		emitter.WithLogger(log),
		emitter.WithMetrics(emitter.NewMetrics()),
		emitter.WithTimeout(cfg.Audit.Timeout),
		emitter.WithEnvironment(cfg.Environment),
		emitter.WithAsyncBuffer(cfg.Audit.BufferSize),
	}
	if cfg.Audit.LogServiceURL == "" {
		log.Warn("LOG_SERVICE_URL not set, audit records are logged locally only")
		return emitter.New(cfg.ServiceName, nil, opts...)
	}
	sink := emitter.NewHTTPSink(cfg.Audit.LogServiceURL, &http.Client{Timeout: cfg.Audit.Timeout}).
		WithToken(cfg.Audit.IngestToken)
	return emitter.New(cfg.ServiceName, sink, opts...)
}
