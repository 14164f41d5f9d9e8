// Package session resolves the authenticated session behind a request's
// cookies against a GoTrue-compatible auth provider.
//
// The package implements:
//   - access token validation (HS256 project secret or RS256 via JWKS)
//   - a REST client for token refresh, PKCE code exchange and sign-out
//   - a cookie-backed Provider that refreshes expired sessions in place
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidToken is returned when the token is malformed or its signature is wrong
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer is invalid
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience is returned when the token audience is invalid
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrJWKSFetchFailed is returned when JWKS fetching fails
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")

	// ErrRejected is returned when the auth provider refuses a request (4xx other than 408 and 429)
	ErrRejected = errors.New("rejected by auth provider")

	// ErrProviderUnavailable is returned when the auth provider cannot be reached, throttles or fails (5xx)
	ErrProviderUnavailable = errors.New("auth provider unavailable")
)

// User is the identity carried by a session
type User struct {
	ID          uuid.UUID
	Email       string
	Phone       string
	Role        string
	AAL         string
	SessionID   string
	IsAnonymous bool
}

// Session is a validated token bundle
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         User

	// Refreshed is true when the access token was renewed during this lookup
	Refreshed bool
}

// Expired reports whether the access token is past its expiry at now. A token
// without an exp claim never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !s.ExpiresAt.After(now)
}

// newSession builds a Session from validated claims
func newSession(accessToken, refreshToken string, claims *Claims) (*Session, error) {
	user, err := claims.User()
	if err != nil {
		return nil, err
	}

	s := &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         *user,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// parseUserID parses the subject claim into a user ID
func parseUserID(sub string) (uuid.UUID, error) {
	if sub == "" {
		return uuid.Nil, fmt.Errorf("%w: missing sub", ErrInvalidToken)
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid sub UUID: %v", ErrInvalidToken, err)
	}
	return id, nil
}
