package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insanelabs/witchcraft/internal/database"
	mw "github.com/insanelabs/witchcraft/internal/middleware"
	inats "github.com/insanelabs/witchcraft/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Quota gate
	ConsumeQuota http.HandlerFunc
	GetQuota     http.HandlerFunc

	// Usage metering
	RecordUsage  http.HandlerFunc
	UsageSummary http.HandlerFunc
	UsageDaily   http.HandlerFunc

	// Alerts
	ListAlerts    http.HandlerFunc
	UnreadAlerts  http.HandlerFunc
	MarkAlertRead http.HandlerFunc
	DismissAlert  http.HandlerFunc

	// Sessions
	CreateSession http.HandlerFunc
	ListSessions  http.HandlerFunc
	GetSession    http.HandlerFunc
	EndSession    http.HandlerFunc
	AppendMessage http.HandlerFunc
	ListMessages  http.HandlerFunc

	// Account profile and keys
	GetAccount  http.HandlerFunc
	IssueAPIKey http.HandlerFunc

	// Admin
	EnsureAccount http.HandlerFunc
	RunRollover   http.HandlerFunc

	AuthMiddleware  func(http.Handler) http.Handler
	AdminMiddleware func(http.Handler) http.Handler
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	APIRateLimiter     func(http.Handler) http.Handler
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

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Account surface
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			if cfg.APIRateLimiter != nil {
				r.Use(cfg.APIRateLimiter)
			}

			r.Route("/quota", func(r chi.Router) {
				r.Post("/consume", h.ConsumeQuota)
				r.Get("/", h.GetQuota)
			})

			r.Route("/usage", func(r chi.Router) {
				r.Post("/", h.RecordUsage)
				r.Get("/summary", h.UsageSummary)
				r.Get("/daily", h.UsageDaily)
			})

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", h.ListAlerts)
				r.Get("/unread", h.UnreadAlerts)
				r.Post("/{id}/read", h.MarkAlertRead)
				r.Post("/{id}/dismiss", h.DismissAlert)
			})

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", h.CreateSession)
				r.Get("/", h.ListSessions)
				r.Get("/{id}", h.GetSession)
				r.Post("/{id}/end", h.EndSession)
				r.Post("/{id}/messages", h.AppendMessage)
				r.Get("/{id}/messages", h.ListMessages)
			})

			r.Route("/account", func(r chi.Router) {
				r.Get("/", h.GetAccount)
				r.Post("/apikeys", h.IssueAPIKey)
			})
		})

		// Admin surface — guarded by the admin key, not account auth
		r.Route("/admin", func(r chi.Router) {
			r.Use(h.AdminMiddleware)
			r.Post("/accounts", h.EnsureAccount)
			r.Post("/rollover", h.RunRollover)
		})
	})

	return r
}
