// Package proxy forwards allowed requests to the protected application and
// serves its prebuilt static assets.
package proxy

import (
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/upb/authgate/internal/observability"
	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/utils"
	"go.uber.org/zap"
)

// Identity headers set on proxied requests. Client supplied values are
// always stripped.
const (
	HeaderUserID    = "X-Authgate-User-Id"
	HeaderUserEmail = "X-Authgate-User-Email"
	HeaderUserRole  = "X-Authgate-User-Role"
)

var identityHeaders = []string{HeaderUserID, HeaderUserEmail, HeaderUserRole}

// UpstreamConfig holds configuration for the upstream proxy
type UpstreamConfig struct {
	Target  *url.URL
	Timeout time.Duration
}

// Upstream forwards requests to the protected application
type Upstream struct {
	proxy     *httputil.ReverseProxy
	transport *http.Transport
}

// NewUpstream returns a reverse proxy to cfg.Target
func NewUpstream(cfg UpstreamConfig, metrics *observability.Metrics, logger *zap.Logger) (*Upstream, error) {
	if cfg.Target == nil || cfg.Target.Scheme == "" || cfg.Target.Host == "" {
		return nil, errors.New("upstream target must be an absolute URL")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
	}

	rp := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(cfg.Target)
			pr.SetXForwarded()
			pr.Out.Host = pr.In.Host

			for _, h := range identityHeaders {
				pr.Out.Header.Del(h)
			}
			if s := middleware.GetSessionFromContext(pr.In.Context()); s != nil {
				pr.Out.Header.Set(HeaderUserID, s.User.ID.String())
				pr.Out.Header.Set(HeaderUserEmail, s.User.Email)
				pr.Out.Header.Set(HeaderUserRole, s.User.Role)
			}
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			metrics.RecordUpstreamError()
			logger.Error("upstream request failed",
				zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
				zap.String("path", r.URL.Path),
				zap.Error(err))
			_ = utils.WriteBadGateway(w, "")
		},
	}

	return &Upstream{proxy: rp, transport: transport}, nil
}

// ServeHTTP implements http.Handler
func (u *Upstream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.proxy.ServeHTTP(w, r)
}

// Close drops idle upstream connections
func (u *Upstream) Close() {
	u.transport.CloseIdleConnections()
}
