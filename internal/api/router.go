package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/prioq/internal/auth"
)

const defaultMaxBody = 1 << 20

// RouterConfig holds the router's collaborators.
type RouterConfig struct {
	Queue Queue
	// Delivery is optional; without it the delivery routes are not registered.
	Delivery Delivery
	// Verifier is optional; without it /api/v1 is unauthenticated.
	Verifier     auth.Verifier
	MaxBodyBytes int64
	Log          zerolog.Logger
}

// NewRouter creates a chi.Mux with all routes and middleware configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	r := chi.NewRouter()

	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))
	r.Use(RecoverMiddleware(cfg.Log))

	r.Get("/healthz", HealthzHandler())
	r.Get("/readyz", ReadyzHandler(cfg.Queue))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Verifier != nil {
			r.Use(auth.BearerAuth(cfg.Verifier))
		}

		r.Post("/messages", EnqueueHandler(cfg.Queue, maxBody))
		r.Get("/messages/count", CountHandler(cfg.Queue))
		r.Delete("/messages", ClearHandler(cfg.Queue))

		if cfg.Delivery != nil {
			r.Get("/delivery", DeliveryStatusHandler(cfg.Delivery))
			r.Post("/delivery/pause", PauseDeliveryHandler(cfg.Delivery))
			r.Post("/delivery/resume", ResumeDeliveryHandler(cfg.Delivery))
		}
	})

	return r
}
