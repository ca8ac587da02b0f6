/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request-scoped zerolog logger in the context + access log
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    Latency histogram per route (when a collector is given)
  5. CORS:       Cross-origin requests for browser clients

ROUTE GROUPS:
  /api/payments   Payment creation
  /api/sales      Sales statements
  /api/rates      Rate table (read-only)
  /healthz        Liveness + storage ping
  /metrics        Prometheus

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/anyx/sales-engine/metrics"
)

// NewRouter creates a new router with all routes configured. collector may
// be nil, in which case /metrics is not mounted.
func NewRouter(h *Handler, logger zerolog.Logger, collector *metrics.Collector) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	if collector != nil {
		r.Use(collector.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
		AllowCredentials: false,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/payments", h.MakePayment)
		r.Get("/sales", h.GetSalesStatement)
		r.Get("/rates", h.ListRates)
	})

	r.Get("/healthz", h.Healthz)
	if collector != nil {
		r.Method(http.MethodGet, "/metrics", collector.Handler())
	}

	return r
}

// RequestLogger stores a logger carrying the request id in the request
// context and writes one access log line per request.
func RequestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := base.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			ctx := logger.WithContext(r.Context())

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			logger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}
