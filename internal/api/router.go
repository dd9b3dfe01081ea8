package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"catalog-lineage/internal/middleware"
)

// RouterConfig configures the HTTP middleware stack.
type RouterConfig struct {
	CORSOrigins []string
	RateLimit   middleware.RateLimitConfig
}

// NewRouter returns the API router with its middleware stack.
func NewRouter(h *Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", h.Healthz)

	r.Route("/v1/workspaces/{workspaceID}", func(r chi.Router) {
		r.Use(middleware.RateLimiter(cfg.RateLimit))
		r.Get("/lineage", h.GetLineage)
		r.Route("/resources/{resourceID}", func(r chi.Router) {
			r.Post("/reconcile", h.Reconcile)
			r.Get("/reconciliations", h.ListReconciliations)
		})
	})
	return r
}
