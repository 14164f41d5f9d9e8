package app

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/upb/authgate/auth"
	"github.com/upb/authgate/config"
	"github.com/upb/authgate/gate"
	"github.com/upb/authgate/internal/observability"
	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/proxy"
	"github.com/upb/authgate/session"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Version is the build version, set with -ldflags "-X github.com/upb/authgate/app.Version=..."
var Version = "0.1.0"

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Observability
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Tracer   trace.Tracer

	// Gate
	Rules      *gate.Rules
	Matcher    *gate.Matcher
	RouteGuard *middleware.RouteGuard

	// Auth provider. AuthClient and SessionProvider are nil when the provider
	// is not configured.
	AuthClient      *session.Client
	SessionProvider *session.Provider
	Sessions        middleware.SessionLookup

	// Serving. Upstream and Static are nil when not configured.
	Upstream *proxy.Upstream
	Static   *proxy.Static

	authHandler *auth.Handler
}

// AuthHandler returns the auth handler for route wiring (implements handlers.AuthDeps)
func (d *Dependencies) AuthHandler() *auth.Handler {
	return d.authHandler
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.initObservability(cfg)

	if err := deps.initGate(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize gate: %w", err)
	}

	// Initialize auth (Supabase session cookies)
	deps.initAuth(cfg)

	deps.RouteGuard = middleware.NewRouteGuard(deps.Sessions, middleware.RouteGuardConfig{
		Rules:      deps.Rules,
		Matcher:    deps.Matcher,
		TrustProxy: cfg.Server.TrustProxy,
	}, deps.Metrics, deps.Tracer, logger)

	if err := deps.initServing(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize upstream: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initObservability creates the metrics registry and tracer
func (d *Dependencies) initObservability(cfg *config.Config) {
	d.Registry = prometheus.NewRegistry()
	d.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d.Metrics = observability.NewMetrics(d.Registry)
	d.Tracer = observability.NewTracer(cfg.Observability.TracingEnabled)
}

// initGate builds the immutable route rules and path matcher
func (d *Dependencies) initGate(cfg *config.Config) error {
	rules, err := cfg.Gate.Rules()
	if err != nil {
		return err
	}
	d.Rules = rules
	d.Matcher = cfg.Gate.Matcher()

	d.Logger.Info("gate rules loaded",
		zap.Strings("public_routes", rules.PublicRoutes()),
		zap.Strings("static_extensions", rules.StaticExtensions()),
		zap.String("login_path", rules.LoginPath()))
	return nil
}

func (d *Dependencies) initAuth(cfg *config.Config) {
	if !cfg.Supabase.AuthConfigured() {
		d.Logger.Warn("auth provider not configured, every protected path redirects to login")
		// No sessions exist, so protected paths always redirect
		d.Sessions = anonymousLookup{}
		return
	}

	d.AuthClient = session.NewClient(session.ClientConfig{
		URL:         cfg.Supabase.URL,
		AnonKey:     cfg.Supabase.AnonKey,
		HTTPTimeout: cfg.Supabase.HTTPTimeout,
	})
	validator := session.NewValidator(session.ValidatorConfig{
		JWTSecret:   cfg.Supabase.JWTSecret,
		JWKSURL:     cfg.Supabase.JWKSURL(),
		Issuer:      cfg.Supabase.Issuer,
		HTTPTimeout: cfg.Supabase.HTTPTimeout,
	})
	d.SessionProvider = session.NewProvider(validator, d.AuthClient, session.ProviderConfig{
		Cookies:       cfg.Session.CookieConfig(),
		RefreshMargin: cfg.Session.RefreshMargin,
	}, d.Logger)
	d.Sessions = d.SessionProvider

	d.authHandler = auth.NewHandler(cfg, d.AuthClient, d.SessionProvider, d.Logger)
	d.Logger.Info("auth handler initialized",
		zap.Bool("jwks", cfg.Supabase.JWKSEnabled),
		zap.String("oauth_provider", cfg.Supabase.OAuthProvider))
}

// initServing sets up the upstream proxy and the static asset server
func (d *Dependencies) initServing(cfg *config.Config) error {
	if cfg.Upstream.URL != "" {
		target, err := url.Parse(cfg.Upstream.URL)
		if err != nil {
			return fmt.Errorf("invalid upstream URL: %w", err)
		}
		upstream, err := proxy.NewUpstream(proxy.UpstreamConfig{
			Target:  target,
			Timeout: cfg.Upstream.Timeout,
		}, d.Metrics, d.Logger)
		if err != nil {
			return err
		}
		d.Upstream = upstream
		d.Logger.Info("upstream proxy configured", zap.String("upstream", target.Redacted()))
	} else {
		d.Logger.Warn("no upstream configured, unmatched routes return 404")
	}

	if cfg.Upstream.StaticDir != "" {
		d.Static = proxy.NewStatic(cfg.Upstream.StaticDir, d.Rules.InternalAssetPrefix()+"/static/")
		d.Logger.Info("serving static assets", zap.String("dir", cfg.Upstream.StaticDir))
	}
	return nil
}

// anonymousLookup reports no session for every request (used when the auth
// provider is not configured)
type anonymousLookup struct{}

func (anonymousLookup) GetSession(context.Context, http.ResponseWriter, *http.Request) (*session.Session, error) {
	return nil, nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.Upstream != nil {
		d.Upstream.Close()
	}

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return nil
}
