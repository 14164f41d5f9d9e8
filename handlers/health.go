package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/upb/authgate/app"
	"go.uber.org/zap"
)

// HealthCheck returns a simple health check handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

// ReadinessCheck reports whether the auth provider is reachable
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		response := map[string]interface{}{
			"status": "ready",
			"checks": checks,
		}

		// Check auth provider
		if deps.AuthClient == nil {
			response["status"] = "not_ready"
			checks["auth_provider"] = "not_configured"
		} else if err := deps.AuthClient.Health(ctx); err != nil {
			response["status"] = "not_ready"
			checks["auth_provider"] = "unhealthy"
			deps.Logger.Error("auth provider health check failed", zap.Error(err))
		} else {
			checks["auth_provider"] = "healthy"
		}

		// Upstream is informational; the proxy reports its own failures
		if deps.Upstream == nil {
			checks["upstream"] = "none_configured"
		} else {
			checks["upstream"] = "configured"
		}

		w.Header().Set("Content-Type", "application/json")
		if response["status"] == "ready" {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(response)
	}
}

// StatusHandler returns application status information
func StatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"version":         app.Version,
			"environment":     deps.Config.Environment,
			"auth_configured": deps.AuthClient != nil,
			"login_path":      deps.Rules.LoginPath(),
			"public_routes":   deps.Rules.PublicRoutes(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}
