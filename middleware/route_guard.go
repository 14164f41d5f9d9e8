package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/upb/authgate/gate"
	"github.com/upb/authgate/internal/observability"
	"github.com/upb/authgate/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// SessionLookup resolves the session behind a request. It may write refreshed
// cookies to w. A nil session with a nil error means the visitor is anonymous.
type SessionLookup interface {
	GetSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (*session.Session, error)
}

// RouteGuardConfig holds configuration for RouteGuard
type RouteGuardConfig struct {
	Rules   *gate.Rules
	Matcher *gate.Matcher

	// TrustProxy takes the redirect origin from X-Forwarded-Proto and
	// X-Forwarded-Host
	TrustProxy bool
}

// RouteGuard redirects anonymous visitors of protected paths to the login page
type RouteGuard struct {
	lookup     SessionLookup
	rules      *gate.Rules
	matcher    *gate.Matcher
	trustProxy bool
	metrics    *observability.Metrics
	tracer     trace.Tracer
	logger     *zap.Logger
}

// NewRouteGuard creates a new RouteGuard. Nil rules, matcher or tracer fall
// back to the defaults; nil metrics records nothing.
func NewRouteGuard(lookup SessionLookup, cfg RouteGuardConfig, metrics *observability.Metrics, tracer trace.Tracer, logger *zap.Logger) *RouteGuard {
	if cfg.Rules == nil {
		cfg.Rules = gate.DefaultRules()
	}
	if cfg.Matcher == nil {
		cfg.Matcher = gate.DefaultMatcher()
	}
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(observability.TracerName)
	}
	return &RouteGuard{
		lookup:     lookup,
		rules:      cfg.Rules,
		matcher:    cfg.Matcher,
		trustProxy: cfg.TrustProxy,
		metrics:    metrics,
		tracer:     tracer,
		logger:     logger,
	}
}

// Handler runs the guard in front of next
func (g *RouteGuard) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := gate.CleanPath(r.URL.Path)
		if path != r.URL.Path {
			// everything downstream sees the path that was classified
			r = withPath(r, path)
		}
		if !g.matcher.Matches(path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		s := g.resolveSession(ctx, w, r, requestID)
		outcome := g.rules.Evaluate(path, s != nil)
		g.metrics.RecordDecision(outcome.Class.String(), outcome.Decision.String())

		if outcome.Decision == gate.Redirect {
			target := RequestOrigin(r, g.trustProxy) + g.rules.LoginPath()
			g.logger.Debug("redirecting to login",
				zap.String("request_id", requestID),
				zap.String("path", path),
				zap.String("class", outcome.Class.String()),
				zap.String("location", target))
			http.Redirect(w, r, target, http.StatusTemporaryRedirect)
			return
		}

		g.logger.Debug("request allowed",
			zap.String("request_id", requestID),
			zap.String("path", path),
			zap.String("class", outcome.Class.String()),
			zap.Bool("has_session", s != nil))

		ctx = WithOutcome(ctx, outcome)
		if s != nil {
			ctx = WithSession(ctx, s)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveSession looks up the session. Lookup failures count as no session.
func (g *RouteGuard) resolveSession(ctx context.Context, w http.ResponseWriter, r *http.Request, requestID string) *session.Session {
	ctx, span := g.tracer.Start(ctx, "authgate.session_lookup",
		trace.WithAttributes(attribute.String("http.path", r.URL.Path)))
	defer span.End()

	start := time.Now()
	s, err := g.lookup.GetSession(ctx, w, r)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.metrics.RecordLookup(observability.LookupError, elapsed)
		g.logger.Warn("session lookup failed, treating request as anonymous",
			zap.String("request_id", requestID),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return nil
	case s == nil:
		span.SetAttributes(attribute.Bool("authgate.has_session", false))
		g.metrics.RecordLookup(observability.LookupNone, elapsed)
		return nil
	case s.Refreshed:
		span.SetAttributes(
			attribute.Bool("authgate.has_session", true),
			attribute.Bool("authgate.refreshed", true))
		g.metrics.RecordLookup(observability.LookupRefreshed, elapsed)
	default:
		span.SetAttributes(attribute.Bool("authgate.has_session", true))
		g.metrics.RecordLookup(observability.LookupSession, elapsed)
	}
	return s
}

// withPath returns a shallow copy of r whose URL path is p
func withPath(r *http.Request, p string) *http.Request {
	r2 := new(http.Request)
	*r2 = *r
	u := *r.URL
	u.Path = p
	u.RawPath = ""
	r2.URL = &u
	return r2
}

// RequestOrigin returns scheme://host for the request as the client saw it
func RequestOrigin(r *http.Request, trustProxy bool) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host

	if trustProxy {
		if proto := firstHeaderValue(r, "X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
		if fwdHost := firstHeaderValue(r, "X-Forwarded-Host"); fwdHost != "" {
			host = fwdHost
		}
	}
	return scheme + "://" + host
}

// firstHeaderValue returns the first entry of a comma separated header
func firstHeaderValue(r *http.Request, key string) string {
	v := r.Header.Get(key)
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.ToLower(strings.TrimSpace(v))
}
