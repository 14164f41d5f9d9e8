package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"

	"github.com/upb/authgate/config"
	"github.com/upb/authgate/gate"
	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/session"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

const (
	// VerifierCookieName is the cookie name for the PKCE code verifier
	VerifierCookieName = "authgate-code-verifier"
	// CallbackPath is where the provider sends the browser after sign-in
	CallbackPath = "/auth/callback"

	verifierCookieMaxAge = 600
)

// CodeExchanger talks to the auth provider's OAuth endpoints
type CodeExchanger interface {
	AuthorizeURL(provider, redirectTo, codeChallenge string) string
	ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*session.TokenResponse, error)
	SignOut(ctx context.Context, accessToken string) error
}

// SessionStore persists sessions in cookies
type SessionStore interface {
	SetSession(ctx context.Context, w http.ResponseWriter, tokens *session.TokenResponse) (*session.Session, error)
	ClearSession(w http.ResponseWriter)
	AccessToken(r *http.Request) string
}

// Handler handles the OAuth PKCE flow (login, callback, logout).
type Handler struct {
	cfg       *config.Config
	exchanger CodeExchanger
	store     SessionStore
	logger    *zap.Logger
}

// NewHandler creates a new auth handler with the given config, code exchanger, and session store.
func NewHandler(cfg *config.Config, exchanger CodeExchanger, store SessionStore, logger *zap.Logger) *Handler {
	return &Handler{
		cfg:       cfg,
		exchanger: exchanger,
		store:     store,
		logger:    logger,
	}
}

// HandleLogin starts a PKCE flow and redirects to the provider's authorize URL
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if h.exchanger == nil || !h.cfg.Supabase.AuthConfigured() {
		h.logger.Error("auth provider not configured")
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
		return
	}

	provider := r.URL.Query().Get("provider")
	if provider == "" {
		provider = h.cfg.Supabase.OAuthProvider
	}

	verifier, err := generateCodeVerifier()
	if err != nil {
		h.logger.Error("failed to generate code verifier", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "Failed to initiate login")
		return
	}

	http.SetCookie(w, h.verifierCookie(r, verifier, verifierCookieMaxAge))

	authURL := h.exchanger.AuthorizeURL(provider, h.callbackURL(r), codeChallenge(verifier))
	h.logger.Debug("starting oauth flow",
		zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
		zap.String("provider", provider))
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback exchanges the authorization code for a session and sets the session cookies
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestIDFromContext(ctx)
	query := r.URL.Query()

	if providerErr := query.Get("error"); providerErr != "" {
		h.logger.Warn("provider returned an error",
			zap.String("request_id", requestID),
			zap.String("error", providerErr),
			zap.String("error_description", query.Get("error_description")))
		h.redirectToLogin(w, r, providerErr)
		return
	}

	code := query.Get("code")
	if code == "" {
		_ = utils.WriteBadRequest(w, "Missing authorization code", nil)
		return
	}

	verifierCookie, err := r.Cookie(VerifierCookieName)
	if err != nil || verifierCookie.Value == "" {
		_ = utils.WriteBadRequest(w, "Invalid or expired login attempt", nil)
		return
	}
	http.SetCookie(w, h.verifierCookie(r, "", -1))

	if h.exchanger == nil || h.store == nil {
		h.logger.Error("auth provider not configured", zap.String("request_id", requestID))
		_ = utils.WriteInternalServerError(w, "Authentication not configured")
		return
	}

	tokens, err := h.exchanger.ExchangeCodeForSession(ctx, code, verifierCookie.Value)
	if err != nil {
		h.logger.Warn("code exchange failed",
			zap.String("request_id", requestID),
			zap.Error(err))
		h.redirectToLogin(w, r, "exchange_failed")
		return
	}

	s, err := h.store.SetSession(ctx, w, tokens)
	if err != nil {
		h.logger.Warn("issued session failed validation",
			zap.String("request_id", requestID),
			zap.Error(err))
		h.redirectToLogin(w, r, "invalid_session")
		return
	}

	h.logger.Info("user signed in",
		zap.String("request_id", requestID),
		zap.String("user_id", s.User.ID.String()))

	redirectURL := h.cfg.Supabase.PostLoginRedirect
	if redirectURL == "" {
		redirectURL = "/"
	}
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

// HandleLogout revokes the session with the provider, clears the cookies and
// redirects to the login page
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.store != nil {
		if token := h.store.AccessToken(r); token != "" && h.exchanger != nil {
			// best effort; the cookies are cleared either way
			if err := h.exchanger.SignOut(ctx, token); err != nil {
				h.logger.Warn("provider sign-out failed",
					zap.String("request_id", middleware.GetRequestIDFromContext(ctx)),
					zap.Error(err))
			}
		}
		h.store.ClearSession(w)
	}

	status := http.StatusFound
	if r.Method == http.MethodPost {
		status = http.StatusSeeOther
	}
	http.Redirect(w, r, h.loginPath(), status)
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request, reason string) {
	target := h.loginPath() + "?" + url.Values{"error": {reason}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) loginPath() string {
	if h.cfg.Gate.LoginPath != "" {
		return h.cfg.Gate.LoginPath
	}
	return gate.DefaultLoginPath
}

// callbackURL is the configured redirect URL, or the callback on the request's own origin
func (h *Handler) callbackURL(r *http.Request) string {
	if h.cfg.Supabase.OAuthRedirectURL != "" {
		return h.cfg.Supabase.OAuthRedirectURL
	}
	return middleware.RequestOrigin(r, h.cfg.Server.TrustProxy) + CallbackPath
}

func (h *Handler) verifierCookie(r *http.Request, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     VerifierCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cfg.Session.CookieSecure || r.TLS != nil || strings.HasPrefix(h.cfg.Supabase.OAuthRedirectURL, "https"),
		SameSite: http.SameSiteLaxMode,
	}
}

func generateCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
