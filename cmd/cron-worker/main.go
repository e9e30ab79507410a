package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/cron"
	"github.com/angelmondragon/marketplace-backend/internal/finance"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/sellers"
	"github.com/angelmondragon/marketplace-backend/pkg/bigquery"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/migrate"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.ForService("cron-worker", cfg.App)

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

	orderMetrics := metrics.NewOrderMetrics(prometheus.DefaultRegisterer)
	orderService, err := buildOrderService(dbClient, logg, orderMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	jobs, cleanup, err := buildJobs(cfg, logg, dbClient, orderService)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron jobs", err)
		os.Exit(1)
	}
	defer cleanup()

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        len(jobs),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildOrderService(dbClient *db.Client, logg *logger.Logger, m *metrics.OrderMetrics) (orders.Service, error) {
	gormDB := dbClient.DB()
	emitter := outbox.NewWriter(outbox.NewRepository(gormDB), logg)
	ordersRepo := orders.NewRepository(gormDB)
	transitioner, err := orders.NewTransitioner(ordersRepo, emitter, m, nil)
	if err != nil {
		return nil, err
	}
	return orders.NewService(orders.ServiceParams{
		Repo:         ordersRepo,
		CartRepo:     cart.NewRepository(gormDB),
		SellerRepo:   sellers.NewRepository(gormDB),
		Tx:           dbClient,
		Outbox:       emitter,
		Transitioner: transitioner,
		Metrics:      m,
		Logger:       logg,
	})
}

// buildJobs assembles order expiry and outbox retention, plus the BigQuery
// finance snapshot when enabled. The returned cleanup closes BigQuery.
func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, orderService orders.Service) ([]cron.Job, func(), error) {
	cleanup := func() {}

	expiry, err := cron.NewOrderExpiryJob(cron.OrderExpiryJobParams{
		Logger: logg,
		Orders: orderService,
		TTL:    cfg.Checkout.PendingOrderTTL,
	})
	if err != nil {
		return nil, cleanup, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Outbox:      outbox.NewRepository(dbClient.DB()),
		Retention:   cfg.Cron.OutboxRetention,
		MaxAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, cleanup, err
	}
	jobs := []cron.Job{expiry, retention}

	if !cfg.Cron.FinanceSnapshot {
		return jobs, cleanup, nil
	}
	tables := finance.SnapshotTables(cfg.BigQuery.FinanceSnapshotTable, cfg.BigQuery.PayoutSnapshotTable)
	bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg, tables...)
	if err != nil {
		return nil, cleanup, fmt.Errorf("bigquery: %w", err)
	}
	cleanup = func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing bigquery", err)
		}
	}
	financeService, err := finance.NewService(finance.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, cleanup, err
	}
	exporter, err := finance.NewExporter(financeService, bqClient, finance.ExporterConfig{
		FinanceTable: tables[0].Name,
		PayoutTable:  tables[1].Name,
	})
	if err != nil {
		return nil, cleanup, err
	}
	snapshot, err := cron.NewFinanceSnapshotJob(logg, exporter)
	if err != nil {
		return nil, cleanup, err
	}
	return append(jobs, snapshot), cleanup, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
