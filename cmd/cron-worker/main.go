package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketsettle/internal/catalog"
	"github.com/angelmondragon/marketsettle/internal/commission"
	"github.com/angelmondragon/marketsettle/internal/courier"
	"github.com/angelmondragon/marketsettle/internal/cron"
	"github.com/angelmondragon/marketsettle/internal/inventory"
	"github.com/angelmondragon/marketsettle/internal/notifications"
	"github.com/angelmondragon/marketsettle/internal/orders"
	"github.com/angelmondragon/marketsettle/internal/settings"
	"github.com/angelmondragon/marketsettle/internal/subscriptions"
	"github.com/angelmondragon/marketsettle/pkg/config"
	"github.com/angelmondragon/marketsettle/pkg/db"
	"github.com/angelmondragon/marketsettle/pkg/logger"
	"github.com/angelmondragon/marketsettle/pkg/metrics"
	"github.com/angelmondragon/marketsettle/pkg/migrate"
	"github.com/angelmondragon/marketsettle/pkg/outbox"
	"github.com/angelmondragon/marketsettle/pkg/redis"
)

func main() {
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	service, err := buildService(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	if *once {
		if _, err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "sweep failed", err)
			os.Exit(1)
		}
		return
	}

	if cfg.Service.MetricsAddr != "" {
		stopMetrics := serveMetrics(ctx, logg, cfg.Service.MetricsAddr)
		defer stopMetrics()
	}

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
	conn := dbClient.DB()
	settlementMetrics := metrics.NewSettlementMetrics(prometheus.DefaultRegisterer)

	provider, err := settings.NewDBProvider(conn, cfg.Commission, cfg.Courier)
	if err != nil {
		return nil, err
	}
	resolver, err := commission.NewResolver(provider)
	if err != nil {
		return nil, err
	}
	orderRepo := orders.NewRepository(conn)
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)

	consigner := courier.NewConsigner(courier.ConsignerParams{
		Settings:          provider,
		RequestsPerSecond: cfg.Courier.RequestsPerSecond,
		Metrics:           settlementMetrics,
		Logger:            logg,
	})
	ordersSvc, err := orders.NewService(orderRepo, dbClient, inventory.NewLedger(logg, settlementMetrics), consigner, emitter, logg)
	if err != nil {
		return nil, err
	}
	courierSvc, err := courier.NewService(consigner, ordersSvc, orderRepo, logg)
	if err != nil {
		return nil, err
	}
	renewer, err := subscriptions.NewRenewer(subscriptions.RenewerParams{
		Repo:              subscriptions.NewRepository(conn),
		Orders:            orderRepo,
		Catalog:           catalog.NewRepository(conn),
		Commission:        resolver,
		Outbox:            emitter,
		TransactionRunner: dbClient,
		Metrics:           settlementMetrics,
		Logger:            logg,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	renewalJob, err := cron.NewRenewalJob(cron.RenewalJobParams{
		Logger:    logg,
		Renewer:   renewer,
		BatchSize: cfg.Scheduler.RenewalBatchSize,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(renewalJob); err != nil {
		return nil, err
	}
	if cfg.Scheduler.CourierSyncActive {
		syncJob, err := cron.NewCourierSyncJob(cron.CourierSyncJobParams{
			Logger:    logg,
			Syncer:    courierSvc,
			BatchSize: cfg.Scheduler.CourierBatchSize,
		})
		if err != nil {
			return nil, err
		}
		if err := registry.Register(syncJob); err != nil {
			return nil, err
		}
	}

	if err := registerOutboxJobs(registry, cfg.Notify, logg, dbClient, outboxRepo, settlementMetrics); err != nil {
		return nil, err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), cfg.Scheduler.LockTTL)
	if err != nil {
		return nil, err
	}
	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewSchedulerMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Scheduler.Interval,
	})
}

func registerOutboxJobs(registry *cron.Registry, cfg config.NotifyConfig, logg *logger.Logger, dbClient *db.Client, repo *outbox.Repository, m *metrics.SettlementMetrics) error {
	if cfg.WebhookURL != "" {
		notifier, err := notifications.NewWebhookNotifier(cfg, nil)
		if err != nil {
			return err
		}
		dispatcher, err := notifications.NewDispatcher(notifications.DispatcherParams{
			Logger:            logg,
			TransactionRunner: dbClient,
			Store:             repo,
			Decoders:          outbox.DefaultDecoders(),
			Notifier:          notifier,
			Metrics:           m,
			MaxAttempts:       cfg.MaxAttempts,
		})
		if err != nil {
			return err
		}
		dispatchJob, err := cron.NewOutboxDispatchJob(cron.OutboxDispatchJobParams{
			Logger:     logg,
			Dispatcher: dispatcher,
			BatchSize:  cfg.BatchSize,
		})
		if err != nil {
			return err
		}
		if err := registry.Register(dispatchJob); err != nil {
			return err
		}
	} else {
		logg.Warn(context.Background(), "notification webhook not configured, outbox events stay queued")
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    repo,
		RetentionDays: cfg.RetentionDays,
		MinAttempts:   cfg.MaxAttempts,
	})
	if err != nil {
		return err
	}
	return registry.Register(retentionJob)
}

// serveMetrics exposes /metrics until the returned func is called.
func serveMetrics(ctx context.Context, logg *logger.Logger, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()
	logg.Info(logg.WithField(ctx, "addr", addr), "serving metrics")
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
}
