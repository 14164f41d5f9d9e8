package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/upb/authgate/app"
	"github.com/upb/authgate/auth"
	"github.com/upb/authgate/handlers"
	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/utils"
)

// OAuthLoginPath starts the provider login flow. It sits under the default
// public /login prefix.
const OAuthLoginPath = "/login/oauth"

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()
	cfg := deps.Config

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	if cfg.Server.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.Server.RequestTimeout))
	}

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           cfg.CORS.MaxAge,
	}))

	// Health check endpoints, never guarded
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))
	r.Get("/statusz", handlers.StatusHandler(deps))

	// Everything else runs behind the route guard
	r.Group(func(r chi.Router) {
		r.Use(deps.RouteGuard.Handler)

		// OAuth endpoints (Supabase PKCE)
		r.Get(OAuthLoginPath, handlers.AuthLoginHandler(deps))
		r.Get(auth.CallbackPath, handlers.AuthCallbackHandler(deps))
		r.Get("/auth/logout", handlers.AuthLogoutHandler(deps))
		r.Post("/auth/logout", handlers.AuthLogoutHandler(deps))

		r.Get("/api/v1/session", handlers.SessionHandler())

		if deps.Static != nil {
			r.Handle(deps.Rules.InternalAssetPrefix()+"/static/*", deps.Static)
			r.Handle("/public/*", deps.Static)
		}

		// Unmatched paths go to the protected application
		r.NotFound(fallback(deps))
	})

	return r
}

func fallback(deps *app.Dependencies) http.HandlerFunc {
	if deps.Upstream != nil {
		return deps.Upstream.ServeHTTP
	}
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	}
}
