package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/ordercore/internal/service"
	"github.com/utafrali/ordercore/pkg/health"
	"github.com/utafrali/ordercore/pkg/middleware"
)

const serviceName = "ordercore"

// Services are the application services the router exposes.
type Services struct {
	Orders     *service.OrderService
	Carts      *service.CartService
	Inventory  *service.InventoryService
	Reconciler *service.Reconciler
}

// RouterConfig holds the HTTP-level knobs.
type RouterConfig struct {
	WebhookRPS     float64
	WebhookBurst   int
	AllowedOrigins []string
}

// NewRouter creates a chi router with all order core routes registered. ctx
// bounds the background cleanup of the webhook rate limiter.
func NewRouter(
	ctx context.Context,
	svc Services,
	validate middleware.TokenValidator,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(corsConfig(cfg.AllowedOrigins)))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	cartHandler := NewCartHandler(svc.Carts, logger)
	orderHandler := NewOrderHandler(svc.Orders, logger)
	adminHandler := NewAdminHandler(svc.Orders, svc.Inventory, logger)
	webhookHandler := NewWebhookHandler(svc.Reconciler, logger)

	// Gateways authenticate with their signature, not a bearer token.
	r.With(middleware.RateLimit(ctx, cfg.WebhookRPS, cfg.WebhookBurst, logger)).
		Post("/api/v1/payments/webhook/{gateway}", webhookHandler.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(validate))
		r.Use(middleware.RequestLogger(logger))
		r.Use(ContentTypeJSON)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartHandler.GetCart)
			r.Delete("/", cartHandler.ClearCart)
			r.Post("/items", cartHandler.AddItem)
			r.Delete("/items/{productId}", cartHandler.RemoveItem)
			r.Put("/coupon", cartHandler.ApplyCoupon)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", orderHandler.PlaceOrder)
			r.Post("/place", orderHandler.Checkout)
			r.Get("/", orderHandler.ListOrders)
			r.Get("/{id}", orderHandler.GetOrder)
			r.Post("/{id}/cancel", orderHandler.CancelOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleAdmin))

			r.Get("/orders", adminHandler.ListOrders)
			r.Get("/orders/{id}", adminHandler.GetOrder)
			r.Post("/orders/{id}/confirm", adminHandler.ConfirmOrder)
			r.Post("/orders/{id}/cancel", adminHandler.CancelOrder)
			r.Post("/orders/{id}/ship", adminHandler.ShipOrder)
			r.Post("/orders/{id}/deliver", adminHandler.DeliverOrder)
			r.Post("/orders/{id}/refund", adminHandler.RefundOrder)
			r.Post("/orders/{id}/invoice", adminHandler.GenerateInvoice)

			r.Get("/products/{id}", adminHandler.GetProduct)
			r.Post("/products/{id}/restock", adminHandler.Restock)
			r.Get("/products/{id}/inventory-logs", adminHandler.ListInventoryLogs)
		})
	})

	return r
}

func corsConfig(origins []string) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	if len(origins) > 0 {
		c.AllowedOrigins = origins
	}
	return c
}
