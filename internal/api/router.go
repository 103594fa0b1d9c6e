package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/provsalt/eldercare/internal/api/middleware"
	"github.com/provsalt/eldercare/internal/handlers"
	"github.com/provsalt/eldercare/internal/realtime"
	"github.com/provsalt/eldercare/internal/store"
	"github.com/provsalt/eldercare/internal/token"
)

// NewRouter creates and configures the HTTP router. redisStore is
// optional: without it rate limiting and presence are disabled.
func NewRouter(
	logger zerolog.Logger,
	db store.DataStore,
	redisStore *store.RedisStore,
	issuer *token.Issuer,
	hub *realtime.Hub,
) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024)) // 16KB max body
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (no-op without Redis)
	var redisClient *redis.Client
	if redisStore != nil {
		redisClient = redisStore.Client()
	}
	limiter := middleware.NewRateLimiter(redisClient, logger)
	r.Use(limiter.Middleware)

	// CORS - the SPA frontend is served from another origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(db, redisStore, issuer, hub)
	auth := middleware.NewAuth(issuer, db)
	ws := realtime.NewServer(hub, issuer, db, redisStore, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/health", h.Health)
	r.Post("/api/users", h.Signup)
	r.Post("/api/users/login", h.Login)

	// Realtime endpoint: authenticates on upgrade, not via middleware,
	// because browser WebSocket clients cannot set headers.
	r.Get("/api/ws", ws.HandleWebSocket)

	// Authenticated routes (require bearer token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Get("/api/chats", h.ListChats)
		r.Post("/api/chats", h.StartChat)
		r.Get("/api/chats/{chatId}", h.GetChatMessages)
		r.Post("/api/chats/{chatId}", h.SendMessage)
		r.Put("/api/chats/{chatId}/{messageId}", h.UpdateMessage)
		r.Delete("/api/chats/{chatId}/{messageId}", h.DeleteMessage)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)
			r.Get("/api/admin/stats", h.Stats)
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	})

	return r
}
