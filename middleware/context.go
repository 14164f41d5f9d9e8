package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/authgate/gate"
	"github.com/upb/authgate/session"
)

// Context key type to avoid collisions
type contextKey string

const (
	// SessionKey is the context key for the resolved session
	SessionKey contextKey = "session"

	// OutcomeKey is the context key for the gate outcome
	OutcomeKey contextKey = "gate_outcome"
)

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// GetSessionFromContext retrieves the session from context
func GetSessionFromContext(ctx context.Context) *session.Session {
	if val := ctx.Value(SessionKey); val != nil {
		if s, ok := val.(*session.Session); ok {
			return s
		}
	}
	return nil
}

// WithSession adds a session to the context
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, SessionKey, s)
}

// GetOutcomeFromContext retrieves the gate outcome from context
func GetOutcomeFromContext(ctx context.Context) (gate.Outcome, bool) {
	outcome, ok := ctx.Value(OutcomeKey).(gate.Outcome)
	return outcome, ok
}

// WithOutcome adds the gate outcome to the context
func WithOutcome(ctx context.Context, outcome gate.Outcome) context.Context {
	return context.WithValue(ctx, OutcomeKey, outcome)
}
