package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/storyline/internal/config"
	"github.com/playperu/storyline/internal/content"
	"github.com/playperu/storyline/internal/database"
	"github.com/playperu/storyline/internal/events"
	"github.com/playperu/storyline/internal/game"
	"github.com/playperu/storyline/internal/handler/health"
	"github.com/playperu/storyline/internal/handler/wsevents"
	"github.com/playperu/storyline/internal/migration"
	"github.com/playperu/storyline/internal/migrations"
	"github.com/playperu/storyline/internal/server"
	"github.com/playperu/storyline/internal/session"
	"github.com/playperu/storyline/internal/store"
	"github.com/playperu/storyline/internal/telemetry"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	shutdownTracing, err := telemetry.Setup(ctx, "storyline", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	cat, err := loadCatalog(cfg.ContentDir)
	if err != nil {
		return fmt.Errorf("loading content: %w", err)
	}
	logger.Info("content loaded", "chapters", cat.ChapterCount(), "achievements", len(cat.Achievements))

	// --- Local stores ---
	if err := os.MkdirAll(cfg.DBDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	indexDB, err := store.IndexDB(ctx, cfg.DBDir)
	if err != nil {
		return err
	}
	defer indexDB.Close()
	devices := store.NewDevices(indexDB)

	locals := store.NewRegistry(cfg.DBDir)
	defer locals.Close()
	logger.Info("local stores ready", "dir", cfg.DBDir)

	// --- Remote store ---
	var remote *store.Remote
	if cfg.RemoteDSN != "" {
		if err := migrations.RunRemote(cfg.RemoteDSN); err != nil {
			return fmt.Errorf("running remote migrations: %w", err)
		}
		pool, err := database.OpenPool(ctx, cfg.RemoteDSN, cfg.RemoteMaxConns)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()
		remote = store.NewRemote(pool, cfg.RemoteTimeout)
		logger.Info("connected to remote store")
	} else {
		logger.Warn("REMOTE_DSN not set, accounts disabled")
	}
	stores := store.NewSelector(locals, remote)

	// --- Events ---
	broker := events.NewBroker()
	publisher := events.Fanout{broker}
	if cfg.RabbitMQURL != "" {
		pub, closeAMQP, err := events.DialAMQP(cfg.RabbitMQURL, cfg.EventsExchange, logger)
		if err != nil {
			return fmt.Errorf("connecting to rabbitmq: %w", err)
		}
		defer closeAMQP()
		publisher = append(publisher, pub)
		logger.Info("publishing events to rabbitmq", "exchange", cfg.EventsExchange)
	}

	metrics := telemetry.NewMetrics(locals.Open)
	svc := game.New(cat, publisher, metrics, logger)
	reconciler := migration.New(migration.FromSelector(stores), publisher, metrics, logger)

	// --- Sessions ---
	tracker := session.NewTracker(devices, logger)
	if err := tracker.Load(ctx); err != nil {
		return err
	}
	reconciler.Attach(tracker)
	tracker.Subscribe(func(ctx context.Context, t session.Transition) {
		publisher.Publish(ctx, events.New(events.TypeSessionChanged, t.Device, t))
	})

	var verifier *session.Verifier
	if cfg.JWTSecret != "" {
		if verifier, err = session.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, logger); err != nil {
			return err
		}
	}

	checks := health.NewHandler(logger).Require("local", health.CheckerFunc(devices.Ping))
	if remote != nil {
		checks.Optional("remote", health.CheckerFunc(remote.Ping))
	}

	var source *session.RedisSource
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		source = session.NewRedisSource(rdb, cfg.SessionChannel, tracker, logger)
		checks.Optional("redis", redisChecker{rdb})
		logger.Info("connected to redis", "channel", cfg.SessionChannel)
	}

	// --- HTTP Server ---
	deps := server.Deps{
		Logger:    logger,
		Devices:   devices,
		Stores:    stores,
		Sessions:  tracker,
		Verifier:  verifier,
		Game:      svc,
		Migration: reconciler,
		Broker:    broker,
		Metrics:   metrics,
	}
	srv := server.New(cfg.HTTPAddr, logger, func(r chi.Router) {
		r.Mount("/healthz", checks.Routes())
		r.Mount("/ws", wsevents.NewHandler(logger, broker, devices).Routes())
		server.Mount(r, deps)
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(gctx)
	})

	if source != nil {
		g.Go(func() error {
			return source.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

func loadCatalog(dir string) (*content.Catalog, error) {
	if dir == "" {
		return content.Default()
	}
	return content.Load(os.DirFS(dir))
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}

// redisChecker adapts *redis.Client to health.Checker.
type redisChecker struct{ client *redis.Client }

func (r redisChecker) Check(ctx context.Context) error { return r.client.Ping(ctx).Err() }
