package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxRequestBodySize = 1 << 20

// NewRouter wires every storefront route. Routes under /api/v1 act on the
// store selected by the X-Profile-ID header.
func NewRouter(registry *store.Registry, timeout time.Duration, logger *slog.Logger) http.Handler {
	products := NewProductHandler(timeout)
	sessions := NewSessionHandler(timeout)
	carts := NewCartHandler(timeout)
	checkout := NewCheckoutHandler(timeout)
	orders := NewOrdersHandler(timeout)

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(RequestLogger(logger))
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.RequestSize(maxRequestBodySize))
	r.Use(middleware.Compress(5))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"profiles": registry.Profiles(),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ProfileMiddleware(registry))

		r.Get("/categories", products.Categories)
		r.Route("/products", func(r chi.Router) {
			r.Get("/", products.List)
			r.Get("/{id}", products.Get)
			r.Post("/{id}/ask", products.Ask)
			r.Get("/{id}/review-summary", products.ReviewSummary)
		})

		r.Route("/session", func(r chi.Router) {
			r.Get("/", sessions.Current)
			r.Post("/login", sessions.Login)
			r.Post("/logout", sessions.Logout)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", carts.GetCart)
			r.Delete("/", carts.ClearCart)
			r.Post("/items", carts.AddItem)
			r.Put("/items/{product_id}", carts.UpdateQuantity)
			r.Delete("/items/{product_id}", carts.RemoveItem)
		})

		r.Get("/checkout/quote", checkout.Quote)
		r.Post("/checkout", checkout.PlaceOrder)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orders.ListOrders)
			r.Get("/{order_id}", orders.GetOrder)
			r.Patch("/{order_id}", orders.UpdateStatus)
		})

		r.Get("/admin/stats", orders.Stats)
	})

	return r
}
