package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mnamhq/channelsync/internal/middleware"
)

// RouterConfig gathers everything the router mounts.
type RouterConfig struct {
	Auth        *AuthHandler
	Bookings    *BookingHandler
	Connections *ConnectionHandler
	Unmatched   *UnmatchedHandler
	Settings    *SettingsHandler
	Admin       *AdminHandler
	Health      *HealthHandler
	Webhook     *WebhookHandler

	Verifier       middleware.TokenVerifier
	Logger         zerolog.Logger
	Metrics        prometheus.Gatherer
	AllowedOrigins []string
}

// NewRouter wires every endpoint. The webhook, health report, metrics,
// and token endpoints stay open; everything else sits behind bearer
// auth.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(cfg.Logger))
	r.Use(chimw.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/webhooks/channex", cfg.Webhook.Receive)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/token", cfg.Auth.Token)
		r.Post("/auth/refresh", cfg.Auth.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.Verifier))

			r.Post("/auth/revoke", cfg.Auth.Revoke)

			r.Route("/bookings", func(r chi.Router) {
				r.Get("/", cfg.Bookings.List)
				r.Post("/", cfg.Bookings.Create)
				r.Get("/{id}", cfg.Bookings.Get)
				r.Post("/{id}/check-in", cfg.Bookings.CheckIn)
				r.Post("/{id}/check-out", cfg.Bookings.CheckOut)
				r.Post("/{id}/cancel", cfg.Bookings.Cancel)
			})

			r.Route("/units/{id}", func(r chi.Router) {
				r.Get("/quote", cfg.Bookings.Quote)
				r.Get("/calendar", cfg.Bookings.Calendar)
			})
		})

		r.Route("/integration", func(r chi.Router) {
			r.Get("/health", cfg.Health.Report)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Auth(cfg.Verifier))

				r.Route("/connections", func(r chi.Router) {
					r.Get("/", cfg.Connections.List)
					r.Post("/", cfg.Connections.Create)
					r.Get("/{id}", cfg.Connections.Get)
					r.Patch("/{id}", cfg.Connections.Update)
					r.Delete("/{id}", cfg.Connections.Delete)
					r.Post("/{id}/test", cfg.Connections.Test)
					r.Post("/{id}/full-sync", cfg.Connections.FullSync)
					r.Get("/{id}/mappings", cfg.Connections.ListMappings)
					r.Post("/{id}/mappings", cfg.Connections.CreateMapping)
					r.Get("/{id}/room-types", cfg.Connections.RoomTypes)
					r.Get("/{id}/rate-plans", cfg.Connections.RatePlans)
				})
				r.Patch("/mappings/{id}", cfg.Connections.UpdateMapping)
				r.Delete("/mappings/{id}", cfg.Connections.DeleteMapping)

				r.Route("/unmatched", func(r chi.Router) {
					r.Get("/", cfg.Unmatched.List)
					r.Get("/{id}", cfg.Unmatched.Get)
					r.Post("/{id}/resolve", cfg.Unmatched.Resolve)
					r.Post("/{id}/ignore", cfg.Unmatched.Ignore)
				})

				r.Route("/outbox", func(r chi.Router) {
					r.Get("/", cfg.Admin.ListOutbox)
					r.Get("/stats", cfg.Admin.OutboxStats)
					r.Post("/{id}/retry", cfg.Admin.RetryOutbox)
				})

				r.Get("/webhook-events", cfg.Admin.ListWebhookEvents)
				r.Get("/logs", cfg.Admin.ListRequestLogs)
				r.Get("/audits", cfg.Admin.ListAudits)

				r.Get("/settings", cfg.Settings.Get)
				r.Put("/settings", cfg.Settings.Update)
			})
		})
	})

	return r
}
