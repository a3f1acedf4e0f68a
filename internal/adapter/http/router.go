package http

import (
	"context"
	"net/http"
	"time"

	"github.com/YelzhanWeb/tablehub/internal/adapter/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	Orders   *OrderHandler
	Tracking *TrackingHandler
	Points   *PointsHandler
	Rewards  *RewardHandler
	// Health is checked by /healthz; nil means always healthy.
	Health Pinger
}

func NewRouter(h Handlers, logger logger.Logger, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(RecoveryMiddleware(logger))
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	r.Get("/healthz", healthz(h.Health))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.Orders.CreateOrder)
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", h.Tracking.GetOrder)
				r.Get("/history", h.Tracking.GetOrderHistory)
				r.Patch("/status", h.Orders.UpdateStatus)
				r.Post("/promotions", h.Orders.ApplyPromotion)
			})
		})

		r.Route("/customers/{customerID}/points", func(r chi.Router) {
			r.Get("/", h.Points.GetBalance)
			r.Get("/transactions", h.Points.GetTransactions)
			r.Post("/redeem", h.Points.Redeem)
		})

		r.Route("/rewards", func(r chi.Router) {
			r.Get("/", h.Rewards.Catalog)
			r.Get("/{rewardType}/{rewardID}", h.Rewards.Resolve)
		})
	})

	return otelhttp.NewHandler(r, "tablehub-api")
}

func healthz(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				w.Header().Set("Retry-After", retryAfterSeconds)
				respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
