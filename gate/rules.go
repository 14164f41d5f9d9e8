package gate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidRules is returned when a rule set cannot be built
	ErrInvalidRules = errors.New("invalid gate rules")
)

// Default rule values used when configuration does not override them
var (
	DefaultPublicRoutes        = []string{"/login", "/signup", "/auth/callback", "/forgot-password"}
	DefaultStaticExtensions    = []string{"png", "jpg", "jpeg", "gif", "svg", "ico"}
	DefaultInternalAssetPrefix = "/_next"
	DefaultLoginPath           = "/login"
)

// Class is the category a request path falls into
type Class int

const (
	// ClassProtected is any path not matched by an earlier rule
	ClassProtected Class = iota
	// ClassStaticAsset is a path ending in a static file extension
	ClassStaticAsset
	// ClassInternalAsset is a path under the framework-internal asset prefix
	ClassInternalAsset
	// ClassPublicRoute is a path under one of the public route prefixes
	ClassPublicRoute
)

// String returns the label used in logs and metrics
func (c Class) String() string {
	switch c {
	case ClassStaticAsset:
		return "static_asset"
	case ClassInternalAsset:
		return "internal_asset"
	case ClassPublicRoute:
		return "public_route"
	default:
		return "protected"
	}
}

// Decision is the routing outcome for a single request
type Decision int

const (
	// Allow passes the request through unchanged
	Allow Decision = iota
	// Redirect sends the client to the login path
	Redirect
)

// String returns the label used in logs and metrics
func (d Decision) String() string {
	if d == Redirect {
		return "redirect"
	}
	return "allow"
}

// Outcome pairs the classification of a path with the resulting decision
type Outcome struct {
	Class    Class
	Decision Decision
}

// RulesConfig holds the raw inputs for NewRules
type RulesConfig struct {
	PublicRoutes        []string
	StaticExtensions    []string
	InternalAssetPrefix string
	LoginPath           string
}

// Rules is an immutable rule set. Build it once at startup with NewRules and
// share it between requests.
type Rules struct {
	publicRoutes        []string
	staticSuffixes      []string
	internalAssetPrefix string
	loginPath           string
}

// DefaultRules returns the stock rule set
func DefaultRules() *Rules {
	rules, err := NewRules(RulesConfig{})
	if err != nil {
		// defaults are always valid
		panic(err)
	}
	return rules
}

// NewRules builds a rule set from cfg. Empty fields fall back to defaults.
// The login path must itself be public, otherwise unauthenticated users would
// be redirected forever.
func NewRules(cfg RulesConfig) (*Rules, error) {
	publicRoutes := cfg.PublicRoutes
	if len(publicRoutes) == 0 {
		publicRoutes = DefaultPublicRoutes
	}
	extensions := cfg.StaticExtensions
	if len(extensions) == 0 {
		extensions = DefaultStaticExtensions
	}
	internalPrefix := cfg.InternalAssetPrefix
	if internalPrefix == "" {
		internalPrefix = DefaultInternalAssetPrefix
	}
	loginPath := cfg.LoginPath
	if loginPath == "" {
		loginPath = DefaultLoginPath
	}

	if !strings.HasPrefix(loginPath, "/") {
		return nil, fmt.Errorf("%w: login path %q must start with /", ErrInvalidRules, loginPath)
	}
	if !strings.HasPrefix(internalPrefix, "/") {
		return nil, fmt.Errorf("%w: internal asset prefix %q must start with /", ErrInvalidRules, internalPrefix)
	}

	r := &Rules{
		publicRoutes:        make([]string, 0, len(publicRoutes)),
		staticSuffixes:      make([]string, 0, len(extensions)),
		internalAssetPrefix: internalPrefix,
		loginPath:           loginPath,
	}
	for _, route := range publicRoutes {
		if !strings.HasPrefix(route, "/") {
			return nil, fmt.Errorf("%w: public route %q must start with /", ErrInvalidRules, route)
		}
		r.publicRoutes = append(r.publicRoutes, route)
	}
	for _, ext := range extensions {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext == "" {
			return nil, fmt.Errorf("%w: empty static extension", ErrInvalidRules)
		}
		r.staticSuffixes = append(r.staticSuffixes, "."+ext)
	}

	if !r.isPublicRoute(loginPath) {
		return nil, fmt.Errorf("%w: login path %q is not covered by a public route", ErrInvalidRules, loginPath)
	}

	return r, nil
}

// Classify returns the class of path. Rules are checked in precedence order:
// static asset, internal asset, public route. Dot segments are resolved first.
func (r *Rules) Classify(path string) Class {
	path = CleanPath(path)
	switch {
	case r.isStaticAsset(path):
		return ClassStaticAsset
	case strings.HasPrefix(path, r.internalAssetPrefix):
		return ClassInternalAsset
	case r.isPublicRoute(path):
		return ClassPublicRoute
	default:
		return ClassProtected
	}
}

// Decide maps a path and session presence to a decision
func (r *Rules) Decide(path string, hasSession bool) Decision {
	return r.Evaluate(path, hasSession).Decision
}

// Evaluate is Decide with the classification attached
func (r *Rules) Evaluate(path string, hasSession bool) Outcome {
	class := r.Classify(path)
	if class == ClassProtected && !hasSession {
		return Outcome{Class: class, Decision: Redirect}
	}
	return Outcome{Class: class, Decision: Allow}
}

// LoginPath returns the redirect target path
func (r *Rules) LoginPath() string {
	return r.loginPath
}

// InternalAssetPrefix returns the framework-internal asset prefix
func (r *Rules) InternalAssetPrefix() string {
	return r.internalAssetPrefix
}

// PublicRoutes returns a copy of the public route prefixes
func (r *Rules) PublicRoutes() []string {
	out := make([]string, len(r.publicRoutes))
	copy(out, r.publicRoutes)
	return out
}

// StaticExtensions returns a copy of the static extensions without the dot
func (r *Rules) StaticExtensions() []string {
	out := make([]string, len(r.staticSuffixes))
	for i, s := range r.staticSuffixes {
		out[i] = strings.TrimPrefix(s, ".")
	}
	return out
}

func (r *Rules) isStaticAsset(path string) bool {
	for _, suffix := range r.staticSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

func (r *Rules) isPublicRoute(path string) bool {
	for _, route := range r.publicRoutes {
		if strings.HasPrefix(path, route) {
			return true
		}
	}
	return false
}
