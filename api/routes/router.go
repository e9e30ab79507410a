package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/cart"
	financecontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/finance"
	ordercontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/payments"
	sellerordercontrollers "github.com/angelmondragon/marketplace-backend/api/controllers/sellerorders"
	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/internal/cart"
	"github.com/angelmondragon/marketplace-backend/internal/finance"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/internal/payments"
	products "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/internal/sellerorders"
	"github.com/angelmondragon/marketplace-backend/internal/sellers"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/marketplace-backend/pkg/redis"
)

// RateLimiter counts requests in fixed windows.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type RouterParams struct {
	Config *config.Config
	Logger *logger.Logger

	// Readiness maps dependency names to their health checks.
	Readiness   map[string]controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	RateLimiter RateLimiter
	Gatherer    prometheus.Gatherer
	HTTPMetrics *metrics.HTTPMetrics

	Products     products.Service
	Sellers      sellers.Service
	Cart         cart.Service
	Orders       orders.Service
	Payments     payments.Service
	SellerOrders sellerorders.Service
	Finance      finance.Service
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	idempotent := middleware.Idempotency(p.Idempotency, logg)
	guestPolicy := middleware.GuestRateLimitPolicy{
		Name:       "guest-orders",
		Window:     cfg.RateLimit.GuestWindow,
		IPLimit:    cfg.RateLimit.GuestIPLimit,
		EmailLimit: cfg.RateLimit.GuestEmailLimit,
	}
	var guestLimit func(http.Handler) http.Handler
	if p.RateLimiter != nil {
		guestLimit = middleware.GuestRateLimit(guestPolicy, p.RateLimiter, logg)
	} else {
		guestLimit = func(next http.Handler) http.Handler { return next }
	}
	requireAuth := middleware.Auth(cfg.JWT, logg)
	requireSeller := middleware.RequireApprovedSeller(p.Sellers, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ProductList(p.Products, logg))
			r.Get("/{productId}", controllers.ProductDetail(p.Products, logg))
		})

		r.Route("/sellers", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/apply", controllers.SellerApply(p.Sellers, logg))
			r.Get("/me", controllers.SellerMe(p.Sellers, logg))
		})

		r.Route("/seller/products", func(r chi.Router) {
			r.Use(requireAuth, requireSeller)
			r.Get("/", controllers.SellerProductList(p.Products, logg))
			r.Post("/", controllers.SellerProductCreate(p.Products, logg))
			r.Put("/{productId}", controllers.SellerProductUpdate(p.Products, logg))
			r.Delete("/{productId}", controllers.SellerProductArchive(p.Products, logg))
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(requireAuth)
			r.Get("/", cartcontrollers.CartFetch(p.Cart, logg))
			r.Delete("/", cartcontrollers.CartClear(p.Cart, logg))
			r.Post("/items", cartcontrollers.CartAddItem(p.Cart, logg))
			r.Put("/items/{productId}", cartcontrollers.CartUpdateItem(p.Cart, logg))
			r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(p.Cart, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(guestLimit, idempotent).Post("/guest", ordercontrollers.OrderGuestCreate(p.Orders, logg))
			r.With(guestLimit).Get("/track", ordercontrollers.OrderTrack(p.Orders, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.OptionalAuth(cfg.JWT, logg))
				r.Get("/{orderId}", ordercontrollers.OrderDetail(p.Orders, logg))
				r.With(idempotent).Put("/{orderId}/cancel", ordercontrollers.OrderCancel(p.Orders, logg))
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/", ordercontrollers.OrderList(p.Orders, logg))
				r.With(idempotent).Post("/", ordercontrollers.OrderCreate(p.Orders, logg))
			})
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/webhook", paymentcontrollers.PaymentWebhook(p.Payments, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.OptionalAuth(cfg.JWT, logg))
				r.With(idempotent).Post("/create-order", paymentcontrollers.PaymentCreateOrder(p.Payments, logg))
				r.Post("/verify", paymentcontrollers.PaymentVerify(p.Payments, logg))
				r.With(idempotent).Post("/retry", paymentcontrollers.PaymentRetry(p.Payments, logg))
			})
		})

		r.Route("/seller-orders", func(r chi.Router) {
			r.Use(requireAuth, requireSeller)
			r.Get("/", sellerordercontrollers.SellerOrderList(p.SellerOrders, logg))
			r.Get("/{orderId}", sellerordercontrollers.SellerOrderDetail(p.SellerOrders, logg))
			r.With(idempotent).Put("/{orderId}/status", sellerordercontrollers.SellerOrderUpdateStatus(p.SellerOrders, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth, middleware.RequireRole(enums.RoleAdmin, logg))
			r.Get("/orders", ordercontrollers.AdminOrderList(p.Orders, logg))
			r.Put("/orders/{orderId}/status", ordercontrollers.AdminOrderUpdateStatus(p.Orders, logg))
			r.Get("/finance/stats", financecontrollers.FinanceStats(p.Finance, logg))
			r.Get("/finance/payouts", financecontrollers.FinancePayouts(p.Finance, logg))
			r.Get("/sellers", controllers.AdminSellerList(p.Sellers, logg))
			r.Put("/sellers/{sellerId}/{action}", controllers.AdminSellerModerate(p.Sellers, logg))
			r.Put("/products/{productId}/review", controllers.AdminProductReview(p.Products, logg))
		})
	})

	return r
}
