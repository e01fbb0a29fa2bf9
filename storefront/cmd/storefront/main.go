package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/storefront-labs/orchestrator/internal/archive"
	"github.com/storefront-labs/orchestrator/internal/cart"
	"github.com/storefront-labs/orchestrator/internal/clock"
	"github.com/storefront-labs/orchestrator/internal/jobs"
	"github.com/storefront-labs/orchestrator/internal/ledger"
	"github.com/storefront-labs/orchestrator/internal/publisher"
	"github.com/storefront-labs/orchestrator/internal/rabbitmq"
	"github.com/storefront-labs/orchestrator/internal/scheduler"
	"github.com/storefront-labs/orchestrator/internal/store"
	"github.com/storefront-labs/orchestrator/internal/store/migrations"
	"github.com/storefront-labs/orchestrator/pkg/eventbus"
	"github.com/storefront-labs/orchestrator/pkg/logger"
	"github.com/storefront-labs/orchestrator/pkg/secrets"
	"github.com/storefront-labs/orchestrator/pkg/utils"
	"github.com/storefront-labs/orchestrator/storefront/internal/api"
	"github.com/storefront-labs/orchestrator/storefront/internal/dialog"
	"github.com/storefront-labs/orchestrator/storefront/internal/reservation"
	"github.com/storefront-labs/orchestrator/storefront/pkg/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [storefront]...")

	// --- Catalog (Postgres, or in-memory when no DSN is configured) ---
	dsn, err := resolveDSN(ctx, cfg)
	if err != nil {
		logg.Fatalw("failed to resolve database DSN", "error", err)
	}
	catalog, pool, err := openCatalog(ctx, cfg, dsn)
	if err != nil {
		logg.Fatalw("failed to init catalog", "error", err)
	}
	checks := map[string]api.HealthChecker{"catalog": catalog}

	// --- Dialog state and batch tokens (Redis, or in-process) ---
	var (
		sessions store.Sessions
		tokens   store.Tokens
		rdb      *redis.Client
	)
	if cfg.RedisAddr != "" {
		rdb, err = store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass)
		if err != nil {
			logg.Fatalw("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
		}
		redisSessions := store.NewRedisSessions(rdb, cfg.DialogIdleTimeout)
		sessions = redisSessions
		tokens = store.NewRedisTokens(rdb, cfg.ReviewTokenTTL)
		checks["redis"] = redisSessions
	} else {
		logg.Warn("REDIS_ADDR not configured; dialog state and batch tokens are kept in process")
		sessions = store.NewMemorySessions(cfg.DialogIdleTimeout, nil)
		tokens = store.NewMemoryTokens()
	}

	// --- Listing channel (NATS JetStream) ---
	nc, err := nats.Connect(cfg.NATSURL, nats.Name(cfg.ServiceName))
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}
	checks["nats"] = api.NATSCheck(nc)
	js, err := nc.JetStream()
	if err != nil {
		logg.Fatalw("failed to init jetstream", "error", err)
	}
	if err := publisher.EnsureStream(js, cfg.ListingStream, cfg.ListingSubjectPrefix); err != nil {
		logg.Fatalw("failed to ensure listing stream", "stream", cfg.ListingStream, "error", err)
	}
	listings := publisher.NewWithJetStream(js, publisher.Config{
		SubjectPrefix:  cfg.ListingSubjectPrefix,
		Service:        cfg.ServiceName,
		Timeout:        cfg.PublishTimeout,
		EditsPerSecond: cfg.ListingEditsPerSec,
		Burst:          cfg.ListingEditBurst,
	}, logger.Named("publisher"))

	// --- Carriers offered in the shipping dialog ---
	carriers, err := dialog.LoadCarriers(cfg.CarriersFile)
	if err != nil {
		logg.Fatalw("failed to load carriers", "file", cfg.CarriersFile, "error", err)
	}

	// --- Orchestrator ---
	bus := eventbus.New()
	if pool != nil {
		archive.NewOrderWriter(pool, logger.Named("archive"), cfg.ServiceName).Subscribe(bus)
	}
	hl := ledger.New()
	orch := reservation.New(reservation.Deps{
		Catalog:  catalog,
		Ledger:   hl,
		Carts:    cart.NewStore(catalog),
		Listings: listings,
		Sessions: sessions,
		Tokens:   tokens,
		Events:   bus,
		Clock:    clock.NewSystem(),
		Window: scheduler.Window{
			Open:     cfg.ServiceWindowOpen,
			Close:    cfg.ServiceWindowClose,
			Location: cfg.ServiceLocation,
			Hold:     cfg.HoldTTL,
		},
		Carriers:  carriers,
		Logger:    logger.Named("reservation"),
		Retention: cfg.BatchRetention,
	})

	// --- Review hand-off and buyer notifications (RabbitMQ) ---
	var (
		rabbit   *rabbitmq.Publisher
		decision *rabbitmq.Consumer
	)
	if cfg.RabbitMQURL != "" {
		conn, ch, err := rabbitmq.Dial(cfg.RabbitMQURL)
		if err != nil {
			logg.Fatalw("failed to connect to rabbitmq", "error", err)
		}
		rabbit, err = rabbitmq.NewPublisher(conn, ch, rabbitmq.Queues{
			Review: cfg.ReviewQueue,
			Notify: cfg.NotifyQueue,
		}, bus, logger.Named("rabbitmq"))
		if err != nil {
			logg.Fatalw("failed to init rabbitmq publisher", "error", err)
		}
		if cfg.ReviewDecisionsQueue != "" {
			consumeCh, err := conn.Channel()
			if err != nil {
				logg.Fatalw("failed to open rabbitmq consumer channel", "error", err)
			}
			decision = rabbitmq.NewConsumer(consumeCh, cfg.ReviewDecisionsQueue, orch, logger.Named("rabbitmq"))
		}
	} else {
		logg.Warn("RABBITMQ_URL not configured; review hand-off relies on the HTTP review surface")
	}

	// --- Listing reconciler ---
	reconciler := jobs.NewListingReconciler(logger.Named("reconciler"), catalog, hl, listings, cfg.ReconcileInterval)

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})
	api.RegisterRoutes(app, checks,
		api.NewStorefrontHandler(logger.Named("api"), orch),
		api.NewReviewHandler(logger.Named("api"), orch),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		return app.Listen(fmt.Sprintf(":%d", cfg.Port))
	})
	g.Go(func() error {
		reconciler.Start(gctx)
		return nil
	})
	if decision != nil {
		g.Go(func() error { return decision.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		logg.Info("shutting down [storefront]...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(shutdownCtx)
	})

	logg.Infow("[storefront] running",
		"env", cfg.Env,
		"nats", cfg.NATSURL,
		"hold_ttl", cfg.HoldTTL,
		"reconcile_interval", cfg.ReconcileInterval)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Errorw("storefront.stopped_with_error", "error", err)
	}

	orch.Stop()
	bus.Wait()
	if rabbit != nil {
		if err := rabbit.Close(); err != nil {
			logg.Warnw("rabbitmq.close_failed", "error", err)
		}
	}
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			logg.Warnw("redis.close_failed", "error", err)
		}
	}
	if err := catalog.Close(); err != nil {
		logg.Warnw("catalog.close_failed", "error", err)
	}
}

// resolveDSN prefers the secret named by DATABASE_SECRET_ID over DATABASE_URL.
func resolveDSN(ctx context.Context, cfg *config.Config) (string, error) {
	if cfg.DatabaseSecretID == "" {
		return cfg.DatabaseURL, nil
	}
	provider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
	if err != nil {
		return "", err
	}
	return secrets.ResolveField(ctx, provider, cfg.DatabaseSecretID, "database_url", cfg.DatabaseURL)
}

// openCatalog returns the pool backing the catalog, or nil for the in-memory one.
func openCatalog(ctx context.Context, cfg *config.Config, dsn string) (store.Catalog, *pgxpool.Pool, error) {
	log := logger.Named("store")
	if dsn == "" {
		log.Warn("DATABASE_URL not configured; using the in-memory catalog and no order archive")
		return store.NewMemoryCatalog(), nil, nil
	}
	log.Info("connecting to catalog", zap.String("dsn", utils.MaskDSN(dsn)))

	pool, err := store.NewPool(ctx, dsn, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := migrations.Apply(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply migrations: %w", err)
	}
	return store.NewPostgresCatalog(pool, log), pool, nil
}
