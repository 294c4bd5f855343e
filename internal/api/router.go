package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snaplist-app/snaplist/internal/database"
	mw "github.com/snaplist-app/snaplist/internal/middleware"
	inats "github.com/snaplist-app/snaplist/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Auth handlers
	Register http.HandlerFunc
	Login    http.HandlerFunc
	Refresh  http.HandlerFunc
	Logout   http.HandlerFunc

	// Listing handlers
	CreateListing       http.HandlerFunc
	ListListings        http.HandlerFunc
	GetListing          http.HandlerFunc
	UpdateListing       http.HandlerFunc
	DeleteListing       http.HandlerFunc
	OwnershipMiddleware func(http.Handler) http.Handler

	// Feedback handlers (public)
	AddFeedback  http.HandlerFunc
	ListFeedback http.HandlerFunc

	// Metered generation
	Generate http.HandlerFunc

	// Quota and usage
	GetUserQuota http.HandlerFunc
	ListUsage    http.HandlerFunc

	// Billing
	PaymentWebhook http.HandlerFunc
	Reconcile      http.HandlerFunc
	ReconcileAll   http.HandlerFunc
	SetPlan        http.HandlerFunc

	// Middleware
	AuthMiddleware         func(http.Handler) http.Handler
	OptionalAuthMiddleware func(http.Handler) http.Handler
	OperatorMiddleware     func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	AuthBurstLimiter   func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	r.Use(mw.Metrics)
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe — always 200, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe — checks DB and NATS
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"nats":     "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// Payment provider webhook. Secret-authenticated in the handler, not
	// behind user auth.
	r.Post("/webhooks/payment", h.PaymentWebhook)

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Auth routes (public) — burst-limited per IP
		r.Route("/auth", func(r chi.Router) {
			if cfg.AuthBurstLimiter != nil {
				r.Use(cfg.AuthBurstLimiter)
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)

			// Protected auth routes
			r.Group(func(r chi.Router) {
				r.Use(h.AuthMiddleware)
				r.Post("/logout", h.Logout)
			})
		})

		// Public surfaces: metered generation and listing feedback.
		// Identity is resolved when a bearer token is present, anonymous
		// callers fall through to the per-IP daily cap.
		r.Group(func(r chi.Router) {
			r.Use(h.OptionalAuthMiddleware)
			r.Post("/generate", h.Generate)
			r.Get("/listings/{listingID}/feedback", h.ListFeedback)
			r.Post("/listings/{listingID}/feedback", h.AddFeedback)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Post("/listings", h.CreateListing)
			r.Get("/listings", h.ListListings)

			r.Group(func(r chi.Router) {
				r.Use(h.OwnershipMiddleware)
				r.Get("/listings/{listingID}", h.GetListing)
				r.Put("/listings/{listingID}", h.UpdateListing)
				r.Delete("/listings/{listingID}", h.DeleteListing)
			})

			r.Get("/me/quota", h.GetUserQuota)
			r.Get("/me/usage", h.ListUsage)
		})

		// Operator routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.OperatorMiddleware)
			r.Post("/reconcile", h.ReconcileAll)
			r.Post("/reconcile/{sessionID}", h.Reconcile)
			r.Post("/users/{userID}/plan", h.SetPlan)
		})
	})

	return r
}
