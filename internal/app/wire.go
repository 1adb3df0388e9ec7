package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DanielNuud/reactive-my-stock-app/internal/alert"
	"github.com/DanielNuud/reactive-my-stock-app/internal/cache/redis"
	"github.com/DanielNuud/reactive-my-stock-app/internal/config"
	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
	"github.com/DanielNuud/reactive-my-stock-app/internal/history"
	"github.com/DanielNuud/reactive-my-stock-app/internal/hub"
	"github.com/DanielNuud/reactive-my-stock-app/internal/notify"
	"github.com/DanielNuud/reactive-my-stock-app/internal/pipeline"
	"github.com/DanielNuud/reactive-my-stock-app/internal/publish"
	"github.com/DanielNuud/reactive-my-stock-app/internal/store/postgres"
	"github.com/DanielNuud/reactive-my-stock-app/internal/subs"
	"github.com/DanielNuud/reactive-my-stock-app/internal/upstream"
)

// Dependencies bundles everything the running service needs. It is constructed
// by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Registry *subs.Registry
	History  *history.Store
	Hub      *hub.Hub
	Alerts   *alert.Engine
	Pipeline *pipeline.Pipeline
	Source   domain.TickSource

	// FeedState reports the tick source's current state for the health
	// endpoint.
	FeedState func() string

	// Optional integrations; nil when not configured.
	Cache      domain.LatestPriceCache
	AlertStore domain.AlertStore
	Publisher  domain.PricePublisher
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Registry: subs.NewRegistry(),
		History:  history.NewStore(cfg.History.Capacity),
		Hub:      hub.New(cfg.Hub.SubscriberBuffer, logger),
	}

	// --- Redis latest-price cache (optional) ---
	if cfg.Redis.Addr != "" {
		client, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })
		ttl := time.Duration(cfg.Redis.CacheTTLMinutes) * time.Minute
		deps.Cache = redis.NewPriceCache(client, ttl)
	}

	// --- PostgreSQL alert audit store (optional) ---
	if cfg.Postgres.DSN != "" {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			MaxConns: cfg.Postgres.MaxConns,
			MinConns: cfg.Postgres.MinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
		deps.AlertStore = postgres.NewAlertStore(pgClient.Pool())
	}

	// --- Notification sink and realtime publisher ---
	var sink domain.NotificationSink
	if len(cfg.Kafka.Brokers) > 0 {
		kSink := notify.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.NotificationsTopic, logger)
		closers = append(closers, kSink.Close)
		sink = kSink

		pub := publish.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.RealtimeTopic, logger)
		closers = append(closers, pub.Close)
		deps.Publisher = pub
	} else {
		sink = notify.NewLogSink(logger)
	}

	// --- Alert engine and tick pipeline ---
	deps.Alerts = alert.NewEngine(cfg.Alerts.MoveThreshold, deps.Registry, sink, deps.AlertStore, logger)
	closers = append(closers, deps.Alerts.Close)

	opts := []pipeline.Option{}
	if deps.Publisher != nil {
		opts = append(opts, pipeline.WithPublisher(deps.Publisher))
	}
	if deps.Cache != nil {
		opts = append(opts, pipeline.WithCache(deps.Cache))
	}
	deps.Pipeline = pipeline.New(deps.History, deps.Hub, deps.Alerts, logger, opts...)
	closers = append(closers, deps.Pipeline.Close)

	// --- Tick source ---
	if cfg.Upstream.Mock {
		deps.Source = upstream.NewMockSource(cfg.Upstream.MockPeriod.Duration, deps.Pipeline.HandleTick, logger)
		deps.FeedState = func() string { return "mock" }
	} else {
		backoff := upstream.NewBackoff(cfg.Upstream.BackoffBase.Duration, cfg.Upstream.BackoffMax.Duration)
		link := upstream.NewLink(cfg.Upstream.WsURL, cfg.Upstream.APIKey, backoff, deps.Pipeline.HandleTick, logger)
		deps.Source = link
		deps.FeedState = func() string { return upstream.StateName(link.State()) }
	}

	return deps, cleanup, nil
}
