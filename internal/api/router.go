package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rianhasansiam/digicam/internal/api/middleware"
	"github.com/rianhasansiam/digicam/internal/config"
	"github.com/rianhasansiam/digicam/internal/handlers"
	"github.com/rianhasansiam/digicam/internal/relay"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, hub *relay.Hub, redisClient *redis.Client, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8*1024, "/api/chat/upload")) // 8KB max body; uploads cap themselves
	r.Use(middleware.ValidateRequest)

	// Standard middleware. Identity resolution runs before the logger so
	// access lines carry the resolved role.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	auth := middleware.NewAuth(middleware.NewStaticVerifier(cfg.AdminTokenHash))
	r.Use(auth.Resolve)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(redisClient, logger, cfg.RateLimitWhitelist)
	r.Use(limiter.Middleware)

	// CORS - the storefront UI is the only intended caller
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Id", "X-Api-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	// Realtime relay
	r.Get("/ws", hub.ServeWS)

	// Chat API (role checks per handler: guests are legitimate callers)
	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/guest", h.CreateGuest)
		r.Post("/conversations", h.CreateOrGetConversation)
		r.Get("/messages", h.GetMessages)
		r.Post("/messages", h.SendMessage)
		r.Put("/messages", h.MarkRead)

		// Attachments: upload requires an identity, download is by ULID
		r.Post("/upload", h.Upload)
		r.Get("/upload", h.Download)

		// Cleanup is gated by the shared secret, not a role
		r.Get("/cleanup", h.Cleanup)
		r.Post("/cleanup", h.Cleanup)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Get("/conversations", h.ListConversations)
			r.Get("/stats", h.Stats)
			r.Get("/presence", h.Presence)
		})
	})

	return r
}
