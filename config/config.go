package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/upb/authgate/gate"
	"github.com/upb/authgate/session"
	"github.com/upb/authgate/utils"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Supabase      SupabaseConfig
	Session       SessionConfig
	Gate          GateConfig
	Upstream      UpstreamConfig
	CORS          CORSConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int `validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	TrustProxy      bool // Take the redirect origin from X-Forwarded-* headers
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// SupabaseConfig holds auth provider configuration
type SupabaseConfig struct {
	URL               string `validate:"omitempty,url"`
	AnonKey           string
	JWTSecret         string
	JWKSEnabled       bool // Verify RS256 tokens against <URL>/auth/v1/.well-known/jwks.json
	Issuer            string
	HTTPTimeout       time.Duration
	OAuthProvider     string // Default external provider for /login/oauth
	OAuthRedirectURL  string `validate:"omitempty,url"` // Callback URL registered with the provider
	PostLoginRedirect string // Where the callback sends the browser after sign-in
}

// SessionConfig holds session cookie configuration
type SessionConfig struct {
	AccessCookie  string `validate:"required"`
	RefreshCookie string `validate:"required"`
	CookieDomain  string
	CookieSecure  bool
	CookieMaxAge  time.Duration
	RefreshMargin time.Duration `validate:"gte=0"`
}

// GateConfig holds route classification configuration
type GateConfig struct {
	PublicRoutes             []string
	InternalAssetPrefix      string
	StaticExtensions         []string
	LoginPath                string `validate:"omitempty,startswith=/"`
	MatcherExcludePrefixes   []string
	MatcherExcludeExtensions []string
}

// UpstreamConfig holds the protected application configuration
type UpstreamConfig struct {
	URL       string `validate:"omitempty,url"`
	StaticDir string
	Timeout   time.Duration
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	AllowedOrigins []string
	MaxAge         int
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string `validate:"required"`
	LogFormat      string `validate:"oneof=json console"`
	MetricsEnabled bool
	MetricsPort    int `validate:"gte=0,lte=65535"`
	TracingEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 60*time.Second),
			TrustProxy:      getEnvAsBool("TRUST_PROXY", false),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Supabase: SupabaseConfig{
			URL:               strings.TrimSuffix(getEnv("SUPABASE_URL", ""), "/"),
			AnonKey:           getEnv("SUPABASE_ANON_KEY", ""),
			JWTSecret:         getEnv("SUPABASE_JWT_SECRET", ""),
			JWKSEnabled:       getEnvAsBool("SUPABASE_JWKS_ENABLED", false),
			Issuer:            getEnv("SUPABASE_JWT_ISSUER", ""),
			HTTPTimeout:       getEnvAsDuration("SUPABASE_HTTP_TIMEOUT", 10*time.Second),
			OAuthProvider:     getEnv("OAUTH_PROVIDER", "github"),
			OAuthRedirectURL:  getEnv("OAUTH_REDIRECT_URL", ""),
			PostLoginRedirect: getEnv("POST_LOGIN_REDIRECT", "/"),
		},
		Session: SessionConfig{
			AccessCookie:  getEnv("SESSION_ACCESS_COOKIE", session.DefaultAccessCookieName),
			RefreshCookie: getEnv("SESSION_REFRESH_COOKIE", session.DefaultRefreshCookieName),
			CookieDomain:  getEnv("SESSION_COOKIE_DOMAIN", ""),
			CookieSecure:  getEnvAsBool("SESSION_COOKIE_SECURE", false),
			CookieMaxAge:  getEnvAsDuration("SESSION_COOKIE_MAX_AGE", session.DefaultCookieMaxAge),
			RefreshMargin: getEnvAsDuration("SUPABASE_REFRESH_MARGIN", session.DefaultRefreshMargin),
		},
		Gate: GateConfig{
			PublicRoutes:             getEnvAsList("GATE_PUBLIC_ROUTES", nil),
			InternalAssetPrefix:      getEnv("GATE_INTERNAL_ASSET_PREFIX", ""),
			StaticExtensions:         getEnvAsList("GATE_STATIC_EXTENSIONS", nil),
			LoginPath:                getEnv("GATE_LOGIN_PATH", ""),
			MatcherExcludePrefixes:   getEnvAsList("GATE_MATCHER_EXCLUDE_PREFIXES", nil),
			MatcherExcludeExtensions: getEnvAsList("GATE_MATCHER_EXCLUDE_EXTENSIONS", nil),
		},
		Upstream: UpstreamConfig{
			URL:       getEnv("UPSTREAM_URL", ""),
			StaticDir: getEnv("STATIC_DIR", ""),
			Timeout:   getEnvAsDuration("UPSTREAM_TIMEOUT", 30*time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			MaxAge:         getEnvAsInt("CORS_MAX_AGE", 300),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
			TracingEnabled: getEnvAsBool("TRACING_ENABLED", false),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	sections := []struct {
		name  string
		value interface{}
	}{
		{"server", &c.Server},
		{"supabase", &c.Supabase},
		{"session", &c.Session},
		{"gate", &c.Gate},
		{"upstream", &c.Upstream},
		{"observability", &c.Observability},
	}
	for _, section := range sections {
		if err := utils.ValidateStruct(section.value); err != nil {
			return fmt.Errorf("invalid %s configuration: %w", section.name, err)
		}
	}

	// Auth provider validation (required in production)
	if c.IsProduction() {
		if c.Supabase.URL == "" {
			return fmt.Errorf("supabase URL is required in production")
		}
		if c.Supabase.AnonKey == "" {
			return fmt.Errorf("supabase anon key is required in production")
		}
		if c.Supabase.JWTSecret == "" && !c.Supabase.JWKSEnabled {
			return fmt.Errorf("supabase JWT secret or JWKS verification is required in production")
		}
	}

	if c.Supabase.JWKSEnabled && c.Supabase.URL == "" {
		return fmt.Errorf("supabase URL is required when JWKS verification is enabled")
	}

	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		return fmt.Errorf("TLS cert and key files are required when TLS is enabled")
	}

	// Gate rules must build; this also checks the login path is public
	if _, err := c.Gate.Rules(); err != nil {
		return err
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// AuthConfigured reports whether an auth provider is configured
func (c *SupabaseConfig) AuthConfigured() bool {
	return c.URL != "" && c.AnonKey != ""
}

// JWKSURL returns the provider's JWKS endpoint, or "" when JWKS is disabled
func (c *SupabaseConfig) JWKSURL() string {
	if !c.JWKSEnabled || c.URL == "" {
		return ""
	}
	return c.URL + "/auth/v1/.well-known/jwks.json"
}

// CookieConfig returns the session cookie settings
func (c *SessionConfig) CookieConfig() session.CookieConfig {
	return session.CookieConfig{
		AccessName:  c.AccessCookie,
		RefreshName: c.RefreshCookie,
		Domain:      c.CookieDomain,
		Secure:      c.CookieSecure,
		MaxAge:      c.CookieMaxAge,
	}
}

// Rules builds the immutable gate rules
func (c *GateConfig) Rules() (*gate.Rules, error) {
	return gate.NewRules(gate.RulesConfig{
		PublicRoutes:        c.PublicRoutes,
		StaticExtensions:    c.StaticExtensions,
		InternalAssetPrefix: c.InternalAssetPrefix,
		LoginPath:           c.LoginPath,
	})
}

// Matcher builds the guard path filter
func (c *GateConfig) Matcher() *gate.Matcher {
	return gate.NewMatcher(gate.MatcherConfig{
		ExcludePrefixes:   c.MatcherExcludePrefixes,
		ExcludeExtensions: c.MatcherExcludeExtensions,
	})
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MetricsAddress returns the metrics server address
func (c *Config) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Observability.MetricsPort)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty entries. A value
// of "," yields an empty, non-nil list.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	out := make([]string, 0)
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
