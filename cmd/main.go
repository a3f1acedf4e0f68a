package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/adapter/cache"
	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/YelzhanWeb/tablehub/internal/adapter/postgres"
	"github.com/YelzhanWeb/tablehub/internal/adapter/rabbitmq"
	"github.com/YelzhanWeb/tablehub/internal/adapter/sqlite"
	"github.com/YelzhanWeb/tablehub/internal/app/order"
	"github.com/YelzhanWeb/tablehub/internal/app/outbox"
	"github.com/YelzhanWeb/tablehub/internal/app/points"
	"github.com/YelzhanWeb/tablehub/internal/app/promotion"
	"github.com/YelzhanWeb/tablehub/internal/app/reward"
	"github.com/YelzhanWeb/tablehub/internal/app/status"
	"github.com/YelzhanWeb/tablehub/internal/app/tracking"
	"github.com/YelzhanWeb/tablehub/internal/config"
	"github.com/YelzhanWeb/tablehub/internal/domain"
	"github.com/YelzhanWeb/tablehub/internal/interfaces"
	"github.com/YelzhanWeb/tablehub/internal/telemetry"
	"golang.org/x/sync/errgroup"

	amqpAdapter "github.com/YelzhanWeb/tablehub/internal/adapter/amqp"
	httpAdapter "github.com/YelzhanWeb/tablehub/internal/adapter/http"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Parse command-line flags
	mode := flag.String("mode", "", "Service mode: api, outbox-relay, broadcast-subscriber, notification-subscriber, migrate")
	configPath := flag.String("config", "config.yaml", "Path to the config file")
	port := flag.Int("port", 0, "HTTP port, overrides http.port")
	prefetch := flag.Int("prefetch", 10, "RabbitMQ prefetch count (for broadcast-subscriber)")
	queue := flag.String("queue", "broadcast_subscriber", "Durable queue name (for broadcast-subscriber)")
	flag.Parse()

	if *mode == "" {
		log.Fatal("--mode flag is required")
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	lgr := logger.New(*mode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, cfg.Telemetry, "tablehub-"+*mode)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracer(flushCtx); err != nil {
			lgr.Error("tracer_shutdown_failed", "Failed to flush traces", "shutdown", nil, err)
		}
	}()

	switch *mode {
	case "migrate":
		err = runMigrate(cfg, lgr)
	case "api":
		err = runAPI(ctx, cfg, lgr)
	case "outbox-relay":
		err = runOutboxRelay(ctx, cfg, lgr)
	case "broadcast-subscriber":
		err = runBroadcastSubscriber(ctx, cfg, lgr, *queue, *prefetch)
	case "notification-subscriber":
		err = runNotificationSubscriber(ctx, cfg, lgr)
	default:
		log.Fatalf("Invalid mode: %s", *mode)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		lgr.Error("service_failed", fmt.Sprintf("%s stopped with an error", *mode), "runtime", nil, err)
		os.Exit(1)
	}
	lgr.Info("shutdown_complete", fmt.Sprintf("%s stopped", *mode), "shutdown", nil)
}

func runMigrate(cfg *config.Config, lgr logger.Logger) error {
	version, err := postgres.Migrate(cfg.Database)
	if err != nil {
		return err
	}
	lgr.Info("migrations_applied", fmt.Sprintf("Schema is at version %d", version), "startup", map[string]interface{}{
		"version": version,
	})
	return nil
}

func connectPostgres(ctx context.Context, cfg *config.Config, lgr logger.Logger) (postgres.DB, error) {
	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	lgr.Info("db_connected", "Connected to PostgreSQL database", "startup", map[string]interface{}{
		"host": cfg.Database.Host,
		"db":   cfg.Database.Database,
	})
	return db, nil
}

func connectRabbitMQ(cfg *config.Config, lgr logger.Logger) (rabbitmq.Connection, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQ)
	if err != nil {
		return nil, err
	}
	lgr.Info("rabbitmq_connected", "Connected to RabbitMQ", "startup", map[string]interface{}{
		"host": cfg.RabbitMQ.Host,
	})
	return conn, nil
}

// newRelay wires every outbox kind to its executor.
func newRelay(cfg *config.Config, db postgres.DB, mqConn rabbitmq.Connection, ledger *points.Service, lgr logger.Logger) *outbox.Relay {
	relay := outbox.NewRelay(postgres.NewOutboxRepository(db), lgr, outbox.Config{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
		Lease:        cfg.Outbox.Lease,
		MaxBackoff:   cfg.Outbox.MaxBackoff,
	})
	publisher := rabbitmq.NewPublisher(mqConn, lgr, rabbitmq.DefaultBreaker)
	outbox.RegisterHandlers(relay, publisher, ledger, postgres.NewPromotionRepository(db))
	return relay
}

func newPointsService(cfg *config.Config, db postgres.DB, idempotency interfaces.IdempotencyStore, lgr logger.Logger) (*points.Service, error) {
	pointValue, err := cfg.Loyalty.PointValueCents()
	if err != nil {
		return nil, err
	}
	return points.NewService(postgres.NewPointsRepository(db), idempotency, lgr, domain.Money(pointValue)), nil
}

func runAPI(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	if cfg.Database.AutoMigrate {
		if err := runMigrate(cfg, lgr); err != nil {
			return err
		}
	}

	db, err := connectPostgres(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer db.Close()

	mqConn, err := connectRabbitMQ(cfg, lgr)
	if err != nil {
		return err
	}
	defer mqConn.Close()

	// Redis is optional: without it the catalog is read from Postgres on
	// every request and Idempotency-Key is ignored.
	var (
		catalogCache interfaces.CatalogCache
		idempotency  interfaces.IdempotencyStore
	)
	if rdb, err := cache.Connect(ctx, cfg.Redis); err != nil {
		lgr.Error("redis_unavailable", "Running without Redis", "startup", map[string]interface{}{
			"addr": cfg.Redis.Addr,
		}, err)
	} else {
		defer rdb.Close()
		catalogCache = cache.NewCatalogCache(rdb, cfg.Catalog.CacheTTL)
		idempotency = cache.NewIdempotencyStore(rdb, cfg.Loyalty.IdempotencyLease, cfg.Loyalty.IdempotencyTTL)
	}

	pointsRate, err := cfg.Loyalty.PointsRate()
	if err != nil {
		return err
	}
	pointsService, err := newPointsService(cfg, db, idempotency, lgr)
	if err != nil {
		return err
	}

	orderRepo := postgres.NewOrderRepository(db)
	promoRepo := postgres.NewPromotionRepository(db)
	relay := newRelay(cfg, db, mqConn, pointsService, lgr)

	handler := httpAdapter.NewRouter(httpAdapter.Handlers{
		Orders: httpAdapter.NewOrderHandler(
			order.NewService(orderRepo, promoRepo, lgr),
			status.NewService(orderRepo, relay, lgr, pointsRate),
			promotion.NewService(orderRepo, promoRepo, lgr),
			lgr,
		),
		Tracking: httpAdapter.NewTrackingHandler(tracking.NewService(orderRepo, lgr), lgr),
		Points:   httpAdapter.NewPointsHandler(pointsService, lgr),
		Rewards:  httpAdapter.NewRewardHandler(reward.NewService(postgres.NewRewardRepository(db), catalogCache, lgr), lgr),
		Health:   db,
	}, lgr, cfg.HTTP.RequestTimeout)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		relay.Run(gctx)
		return nil
	})

	g.Go(func() error {
		lgr.Info("service_started", fmt.Sprintf("API started on port %d", cfg.HTTP.Port), "startup", map[string]interface{}{
			"port": cfg.HTTP.Port,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		lgr.Info("shutdown_initiated", "Shutting down API", "shutdown", nil)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func runOutboxRelay(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	db, err := connectPostgres(ctx, cfg, lgr)
	if err != nil {
		return err
	}
	defer db.Close()

	mqConn, err := connectRabbitMQ(cfg, lgr)
	if err != nil {
		return err
	}
	defer mqConn.Close()

	// earns are deduplicated by the ledger, so no idempotency store is needed here
	pointsService, err := newPointsService(cfg, db, nil, lgr)
	if err != nil {
		return err
	}

	lgr.Info("service_started", "Outbox relay started", "startup", nil)
	newRelay(cfg, db, mqConn, pointsService, lgr).Run(ctx)
	return nil
}

func runBroadcastSubscriber(ctx context.Context, cfg *config.Config, lgr logger.Logger, queue string, prefetch int) error {
	inbox, err := sqlite.Open(cfg.Inbox.Path)
	if err != nil {
		return err
	}
	defer inbox.Close()

	mqConn, err := connectRabbitMQ(cfg, lgr)
	if err != nil {
		return err
	}
	defer mqConn.Close()

	consumer := rabbitmq.NewConsumer(mqConn, queue, prefetch, lgr)
	handler := amqpAdapter.NewBroadcastHandler(inbox, os.Stdout, lgr)

	lgr.Info("service_started", "Broadcast subscriber started", "startup", map[string]interface{}{
		"queue":       queue,
		"binding_key": cfg.Inbox.BindingKey,
		"inbox":       cfg.Inbox.Path,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.ConsumeBroadcasts(gctx, cfg.Inbox.BindingKey, handler.HandleBroadcast)
	})
	// keep a week of dedupe history
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := inbox.Prune(gctx, 7*24*time.Hour); err != nil {
					lgr.Error("inbox_prune_failed", "Failed to prune inbox", "runtime", nil, err)
				}
			}
		}
	})

	err = g.Wait()
	lgr.Info("shutdown_initiated", "Shutting down Broadcast Subscriber", "shutdown", nil)
	return err
}

func runNotificationSubscriber(ctx context.Context, cfg *config.Config, lgr logger.Logger) error {
	mqConn, err := connectRabbitMQ(cfg, lgr)
	if err != nil {
		return err
	}
	defer mqConn.Close()

	consumer := rabbitmq.NewConsumer(mqConn, "", 1, lgr)
	notificationHandler := amqpAdapter.NewNotificationHandler(os.Stdout, lgr)

	lgr.Info("service_started", "Notification Subscriber started", "startup", nil)

	err = consumer.ConsumeNotifications(ctx, notificationHandler.HandleNotification)
	lgr.Info("shutdown_initiated", "Shutting down Notification Subscriber", "shutdown", nil)
	return err
}
