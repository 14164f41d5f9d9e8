package session

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// DefaultRefreshMargin refreshes tokens this close to expiry
const DefaultRefreshMargin = 10 * time.Second

// TokenValidator validates access tokens
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*Claims, error)
}

// Refresher exchanges a refresh token for a new token pair
type Refresher interface {
	RefreshSession(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// ProviderConfig holds configuration for Provider
type ProviderConfig struct {
	Cookies       CookieConfig
	RefreshMargin time.Duration
}

// Provider resolves sessions from request cookies and refreshes them when
// the access token has expired
type Provider struct {
	validator     TokenValidator
	refresher     Refresher
	cookies       CookieConfig
	refreshMargin time.Duration
	now           func() time.Time
	logger        *zap.Logger
}

// NewProvider creates a new cookie session provider
func NewProvider(validator TokenValidator, refresher Refresher, cfg ProviderConfig, logger *zap.Logger) *Provider {
	if cfg.RefreshMargin == 0 {
		cfg.RefreshMargin = DefaultRefreshMargin
	}
	return &Provider{
		validator:     validator,
		refresher:     refresher,
		cookies:       cfg.Cookies.withDefaults(),
		refreshMargin: cfg.RefreshMargin,
		now:           time.Now,
		logger:        logger,
	}
}

// GetSession returns the session for r, or nil when there is none. Refreshed
// tokens are written to w. A non-nil error means the lookup itself failed.
func (p *Provider) GetSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, error) {
	accessToken := cookieValue(r, p.cookies.AccessName)
	refreshToken := cookieValue(r, p.cookies.RefreshName)

	if accessToken == "" && refreshToken == "" {
		return nil, nil
	}

	if accessToken != "" {
		claims, err := p.validator.Validate(ctx, accessToken)
		switch {
		case err == nil:
			current, err := newSession(accessToken, refreshToken, claims)
			if err != nil {
				return nil, err
			}
			if refreshToken == "" || current.ExpiresAt.Sub(p.now()) > p.refreshMargin {
				return current, nil
			}
			refreshed, err := p.refresh(ctx, w, refreshToken)
			if err != nil {
				// provider trouble; the current token is still valid
				p.logger.Debug("early refresh failed, keeping current session",
					zap.String("user_id", current.User.ID.String()),
					zap.Error(err))
				return current, nil
			}
			// nil here means the refresh token was revoked and the cookies are gone
			return refreshed, nil
		case errors.Is(err, ErrTokenExpired):
			// fall through to refresh
		default:
			return nil, err
		}
	}

	if refreshToken == "" {
		return nil, nil
	}
	return p.refresh(ctx, w, refreshToken)
}

// refresh renews the session. A rejected refresh token clears the cookies and
// yields no session.
func (p *Provider) refresh(ctx context.Context, w http.ResponseWriter, refreshToken string) (*Session, error) {
	tokens, err := p.refresher.RefreshSession(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrRejected) {
			p.logger.Debug("refresh token rejected, clearing session cookies", zap.Error(err))
			p.cookies.clearSessionCookies(w)
			return nil, nil
		}
		return nil, err
	}

	claims, err := p.validator.Validate(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	s, err := newSession(tokens.AccessToken, tokens.RefreshToken, claims)
	if err != nil {
		return nil, err
	}
	s.Refreshed = true

	p.cookies.writeSessionCookies(w, tokens.AccessToken, tokens.RefreshToken)
	p.logger.Debug("session refreshed", zap.String("user_id", s.User.ID.String()))
	return s, nil
}

// SetSession validates a freshly issued token pair and stores it in cookies
func (p *Provider) SetSession(ctx context.Context, w http.ResponseWriter, tokens *TokenResponse) (*Session, error) {
	claims, err := p.validator.Validate(ctx, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	s, err := newSession(tokens.AccessToken, tokens.RefreshToken, claims)
	if err != nil {
		return nil, err
	}
	p.cookies.writeSessionCookies(w, tokens.AccessToken, tokens.RefreshToken)
	return s, nil
}

// ClearSession expires the session cookies
func (p *Provider) ClearSession(w http.ResponseWriter) {
	p.cookies.clearSessionCookies(w)
}

// AccessToken returns the raw access token cookie, if any
func (p *Provider) AccessToken(r *http.Request) string {
	return cookieValue(r, p.cookies.AccessName)
}
