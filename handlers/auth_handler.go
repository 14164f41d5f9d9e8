package handlers

import (
	"net/http"

	"github.com/upb/authgate/auth"
	"github.com/upb/authgate/utils"
)

// AuthDeps provides auth handler for route wiring
type AuthDeps interface {
	AuthHandler() *auth.Handler
}

// AuthLoginHandler returns an http.HandlerFunc for the OAuth login endpoint
func AuthLoginHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleLogin)
}

// AuthCallbackHandler returns an http.HandlerFunc for the OAuth callback endpoint
func AuthCallbackHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleCallback)
}

// AuthLogoutHandler returns an http.HandlerFunc for the logout endpoint
func AuthLogoutHandler(deps AuthDeps) http.HandlerFunc {
	return withAuthHandler(deps, (*auth.Handler).HandleLogout)
}

func withAuthHandler(deps AuthDeps, fn func(*auth.Handler, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h := deps.AuthHandler(); h != nil {
			fn(h, w, r)
			return
		}
		_ = utils.WriteServiceUnavailable(w, "Authentication not configured", nil)
	}
}
