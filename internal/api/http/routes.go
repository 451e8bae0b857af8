package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/veranemoloko/audio-downloader/internal/config"
)

// NewRouter creates a new HTTP router with configured routes, middleware, and handlers.
// It sets up the download and progress routes, job inspection, health check,
// and the Prometheus metrics endpoint.
func NewRouter(downloads DownloadServiceI, progressHub ProgressHub, cfg *config.Config, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         300,
	}))

	handler := NewDownloadHandler(downloads, progressHub, cfg.SSEHeartbeat, logger)

	r.Get("/", handler.Root)
	r.Get("/progress", handler.Progress)

	r.Group(func(r chi.Router) {
		if cfg.DownloadRateLimit > 0 {
			r.Use(rateLimit(rate.NewLimiter(rate.Limit(cfg.DownloadRateLimit), cfg.DownloadRateBurst), logger))
		}
		r.Post("/download", handler.Download)
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", handler.ListJobs)
		r.Get("/{jobID}", handler.GetJob)
	})

	r.Get("/health", handler.Health)

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// rateLimit rejects requests with 429 once limiter is exhausted.
func rateLimit(limiter *rate.Limiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				logger.Warn("download rate limited", "remote_addr", r.RemoteAddr)
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
