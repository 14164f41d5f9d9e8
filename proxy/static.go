package proxy

import (
	"net/http"
	"strings"
)

// Static serves prebuilt assets from a directory laid out like the request
// paths, e.g. <dir>/_next/static/... and <dir>/public/...
type Static struct {
	files         http.Handler
	immutablePath string
}

// NewStatic creates a static file handler rooted at dir. Responses under
// immutablePrefix get a long-lived cache header.
func NewStatic(dir, immutablePrefix string) *Static {
	return &Static{
		files:         http.FileServer(http.Dir(dir)),
		immutablePath: immutablePrefix,
	}
}

// ServeHTTP implements http.Handler
func (s *Static) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// no directory listings
	if strings.HasSuffix(r.URL.Path, "/") {
		http.NotFound(w, r)
		return
	}
	if s.immutablePath != "" && strings.HasPrefix(r.URL.Path, s.immutablePath) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}
	s.files.ServeHTTP(w, r)
}
