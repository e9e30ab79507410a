package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	"github.com/angelmondragon/marketplace-backend/api/routes"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/finance"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	products "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/sellerorders"
	"github.com/angelmondragon/marketplace-backend/internal/sellers"
	"github.com/angelmondragon/marketplace-backend/pkg/checkout"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/migrate"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
	"github.com/angelmondragon/marketplace-backend/pkg/redis"
	"github.com/angelmondragon/marketplace-backend/pkg/square"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.ForService("api", cfg.App)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	var squareClient *square.Client
	if cfg.Payments.ProviderName() == config.PaymentProviderSquare {
		squareClient, err = square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return err
		}
	}
	gateway, err := payments.NewGateway(cfg.Payments, squareClient)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)

	gormDB := dbClient.DB()
	emitter := outbox.NewWriter(outbox.NewRepository(gormDB), logg)
	ordersRepo := orders.NewRepository(gormDB)
	cartRepo := cart.NewRepository(gormDB)
	sellerRepo := sellers.NewRepository(gormDB)
	productRepo := products.NewRepository(gormDB)

	transitioner, err := orders.NewTransitioner(ordersRepo, emitter, orderMetrics, nil)
	if err != nil {
		return err
	}

	sellerService, err := sellers.NewService(sellers.ServiceParams{Repo: sellerRepo, Tx: dbClient, Outbox: emitter})
	if err != nil {
		return err
	}
	productService, err := products.NewService(productRepo, sellerRepo)
	if err != nil {
		return err
	}
	cartService, err := cart.NewService(cartRepo, dbClient, productRepo)
	if err != nil {
		return err
	}
	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:         ordersRepo,
		CartRepo:     cartRepo,
		SellerRepo:   sellerRepo,
		Tx:           dbClient,
		Outbox:       emitter,
		Transitioner: transitioner,
		Shipping:     checkout.FlatShipping{Amount: cfg.Checkout.ShippingAmount()},
		Tax:          checkout.PercentTax{RatePercent: cfg.Checkout.TaxRate()},
		Metrics:      orderMetrics,
		Logger:       logg,
	})
	if err != nil {
		return err
	}
	webhookGuard, err := payments.NewEventGuard(redisClient, cfg.Redis.WebhookEventTTL, "payments-webhook")
	if err != nil {
		return err
	}
	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:         ordersRepo,
		Tx:           dbClient,
		Gateway:      gateway,
		Transitioner: transitioner,
		Outbox:       emitter,
		Guard:        webhookGuard,
		Config:       cfg.Payments,
		Metrics:      orderMetrics,
		Logger:       logg,
	})
	if err != nil {
		return err
	}
	sellerOrderService, err := sellerorders.NewService(sellerorders.ServiceParams{
		Repo:         sellerorders.NewRepository(gormDB),
		Orders:       ordersRepo,
		Tx:           dbClient,
		Transitioner: transitioner,
	})
	if err != nil {
		return err
	}
	financeService, err := finance.NewService(finance.NewRepository(gormDB))
	if err != nil {
		return err
	}

	handler := routes.NewRouter(routes.RouterParams{
		Config: cfg,
		Logger: logg,
		Readiness: map[string]controllers.Pinger{
			"database": dbClient,
			"redis":    redisClient,
		},
		Idempotency:  redisClient,
		RateLimiter:  redisClient,
		Gatherer:     registry,
		HTTPMetrics:  metrics.NewHTTPMetrics(registry),
		Products:     productService,
		Sellers:      sellerService,
		Cart:         cartService,
		Orders:       orderService,
		Payments:     paymentService,
		SellerOrders: sellerOrderService,
		Finance:      financeService,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"provider": cfg.Payments.ProviderName(),
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logg.Info(logCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}
