package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/labwatch/labwatch/internal/auth"
	"github.com/labwatch/labwatch/internal/middleware"
	"github.com/labwatch/labwatch/internal/stream"
)

// NewRouter creates and configures the API router. The websocket topics are
// public like the dashboard they feed; mutations require a JWT.
func NewRouter(
	handler *Handler,
	authService *auth.Service,
	endpoints map[string]*stream.Endpoint,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	r.Get("/health", handler.Health)

	// Streaming topics
	for topic, endpoint := range endpoints {
		r.Get("/ws/"+topic, endpoint.ServeHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", handler.Login)
		r.Get("/status", handler.StatusSnapshot)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(authService))

			r.Route("/integrations", func(r chi.Router) {
				r.Get("/", handler.ListIntegrations)
				r.Get("/{id}", handler.GetIntegration)
				r.Get("/{id}/monitors", handler.ListMonitors)
				r.Get("/{id}/guests", handler.ListGuests)
			})

			r.Get("/poller", handler.PollerState)
			r.Put("/maintenance", handler.SetMaintenance)
		})
	})

	return r
}
