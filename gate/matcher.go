package gate

import "strings"

// Default matcher exclusions. Prefixes are compared against the path without
// its leading slash.
var (
	DefaultExcludePrefixes   = []string{"_next/static", "_next/image", "favicon.ico", "public", "auth/callback"}
	DefaultExcludeExtensions = []string{"svg", "png", "jpg", "jpeg", "gif", "webp"}
)

// MatcherConfig holds the raw inputs for NewMatcher
type MatcherConfig struct {
	ExcludePrefixes   []string
	ExcludeExtensions []string
}

// Matcher decides whether the guard runs for a path at all. It mirrors a
// "every path except these" filter configured once at startup.
type Matcher struct {
	excludePrefixes []string
	excludeSuffixes []string
}

// NewMatcher builds a matcher. Nil slices fall back to defaults; an empty
// non-nil slice disables that kind of exclusion.
func NewMatcher(cfg MatcherConfig) *Matcher {
	prefixes := cfg.ExcludePrefixes
	if prefixes == nil {
		prefixes = DefaultExcludePrefixes
	}
	extensions := cfg.ExcludeExtensions
	if extensions == nil {
		extensions = DefaultExcludeExtensions
	}

	m := &Matcher{
		excludePrefixes: make([]string, 0, len(prefixes)),
		excludeSuffixes: make([]string, 0, len(extensions)),
	}
	for _, p := range prefixes {
		p = strings.TrimPrefix(strings.TrimSpace(p), "/")
		if p != "" {
			m.excludePrefixes = append(m.excludePrefixes, p)
		}
	}
	for _, ext := range extensions {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext != "" {
			m.excludeSuffixes = append(m.excludeSuffixes, "."+ext)
		}
	}
	return m
}

// DefaultMatcher returns the stock matcher
func DefaultMatcher() *Matcher {
	return NewMatcher(MatcherConfig{})
}

// Matches reports whether the guard should run for path
func (m *Matcher) Matches(path string) bool {
	rest := strings.TrimPrefix(CleanPath(path), "/")
	for _, p := range m.excludePrefixes {
		if strings.HasPrefix(rest, p) {
			return false
		}
	}
	for _, s := range m.excludeSuffixes {
		if strings.HasSuffix(rest, s) {
			return false
		}
	}
	return true
}
