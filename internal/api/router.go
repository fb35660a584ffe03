package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/webflasher/firmware-server/internal/firmware"
	"github.com/webflasher/firmware-server/internal/gitstore"
	"github.com/webflasher/firmware-server/internal/middleware"
	"github.com/webflasher/firmware-server/internal/sync"
)

// Config holds API router configuration
type Config struct {
	Catalog            *firmware.Catalog
	CORSAllowedOrigins []string
	Logger             *slog.Logger

	// Firmware mirror, both nil when disabled
	Mirror        *gitstore.Store
	SyncManager   *sync.Manager
	WebhookSecret string
}

// NewRouter creates a new HTTP router with all API routes
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	// Request ids, tracing and access logs come from middleware.Chain
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(chimiddleware.GetHead)

	handlers := NewHandlers(cfg.Catalog, cfg.Mirror, cfg.SyncManager, cfg.Logger)

	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	r.Get("/", handlers.Root)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	if cfg.Mirror != nil && cfg.SyncManager != nil {
		webhookHandler := sync.NewWebhookHandler(
			cfg.WebhookSecret,
			cfg.SyncManager,
			cfg.Mirror.Branch(),
			cfg.Logger,
		)
		r.Post("/webhooks/github", webhookHandler.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)
		r.Get("/ping", handlers.Ping)
		r.Get("/version", handlers.Version)
		r.Get("/chips", handlers.ListChips)
		r.Get("/firmware/{chipType}", handlers.GetManifest)
	})

	// File paths may contain slashes, so the remainder is a wildcard
	r.Get("/firmware/{chipType}/*", handlers.DownloadFile)

	return r
}
