package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/scry-assess/internal/api"
	apiMiddleware "github.com/phrazzld/scry-assess/internal/api/middleware"
	"github.com/phrazzld/scry-assess/internal/service/auth"
)

// newRouter builds the HTTP handler: shared middleware, the public health
// check and the authenticated /api/v1 surface.
func newRouter(
	logger *slog.Logger,
	jwtService auth.JWTService,
	sessions *api.SessionHandler,
	cards *api.CardHandler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.Trace(logger))

	r.Get("/health", api.Health)

	authMiddleware := apiMiddleware.NewAuthMiddleware(jwtService)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		api.RegisterRoutes(r, sessions, cards)
	})

	return r
}
