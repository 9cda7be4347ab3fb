package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/radicai/ad-agent-api/internal/api/handlers"
	"github.com/radicai/ad-agent-api/internal/api/middleware"
	"github.com/radicai/ad-agent-api/internal/config"
)

const serviceName = "ad-agent-api"

// Options carries the optional pieces of the router.
type Options struct {
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// Auth enforces API keys when set and enabled.
	Auth *middleware.APIKeyAuth
}

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers, opts Options) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{cfg.CORSAllowOrigin},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         86400,
	}))
	if opts.Auth != nil {
		r.Use(opts.Auth.Middleware)
	}

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// Chat-style completion route kept for existing clients
	r.Post("/api/chat/completions", h.GeneratePlan)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/plans", func(r chi.Router) {
			r.Post("/", h.GeneratePlan)
			r.Post("/validate", h.ValidatePlan)
			r.Post("/draft", h.DraftPlan)
		})

		r.Post("/retrieval/context", h.RetrievalContext)

		r.Route("/metrics/requests", func(r chi.Router) {
			r.Get("/", h.ListRequestMetrics)
			r.Get("/stream", h.StreamRequestMetrics)
			r.Get("/{requestId}", h.GetRequestMetrics)
		})

		// Model Router
		r.Route("/models", func(r chi.Router) {
			r.Get("/providers", h.ListProviders)
			r.Get("/usage", h.ModelUsage)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": serviceName,
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": serviceName,
		})
	}
}
