package middleware

import (
	"context"
	"crypto/tls"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/authgate/gate"
	"github.com/upb/authgate/internal/observability"
	"github.com/upb/authgate/session"
	"go.uber.org/zap"
)

// MockSessionLookup is a mock implementation of SessionLookup
type MockSessionLookup struct {
	mock.Mock
}

func (m *MockSessionLookup) GetSession(ctx context.Context, w http.ResponseWriter, r *http.Request) (*session.Session, error) {
	args := m.Called(ctx, w, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func testSession() *session.Session {
	return &session.Session{
		AccessToken: "access",
		User:        session.User{ID: uuid.New(), Email: "user@example.com"},
	}
}

// okHandler records that it was reached
func okHandler(reached *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*reached = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestRouteGuard_Scenarios(t *testing.T) {
	testCases := []struct {
		name         string
		path         string
		session      *session.Session
		wantRedirect bool
	}{
		{"dashboard without session", "/dashboard", nil, true},
		{"root without session", "/", nil, true},
		{"login without session", "/login", nil, false},
		{"signup without session", "/signup/confirm", nil, false},
		{"forgot password without session", "/forgot-password", nil, false},
		{"static icon", "/brand/logo.ico", nil, false},
		{"script is not a static asset", "/assets/app.js", nil, true},
		{"internal asset", "/_next/data/build/page.json", nil, false},
		{"settings with session", "/settings", testSession(), false},
		{"dashboard with session", "/dashboard", testSession(), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lookup := new(MockSessionLookup)
			if tc.session != nil {
				lookup.On("GetSession", mock.Anything, mock.Anything, mock.Anything).Return(tc.session, nil)
			} else {
				lookup.On("GetSession", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
			}

			var reached bool
			guard := NewRouteGuard(lookup, RouteGuardConfig{}, nil, nil, zap.NewNop())
			handler := guard.Handler(okHandler(&reached))

			req := httptest.NewRequest(http.MethodGet, "http://app.example.com"+tc.path, nil)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if tc.wantRedirect {
				assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
				assert.Equal(t, "http://app.example.com/login", w.Header().Get("Location"))
				assert.False(t, reached)
			} else {
				assert.Equal(t, http.StatusOK, w.Code)
				assert.Empty(t, w.Header().Get("Location"))
				assert.True(t, reached)
			}
			lookup.AssertExpectations(t)
		})
	}
}

func TestRouteGuard_SessionInContext(t *testing.T) {
	s := testSession()
	lookup := new(MockSessionLookup)
	lookup.On("GetSession", mock.Anything, mock.Anything, mock.Anything).Return(s, nil)

	guard := NewRouteGuard(lookup, RouteGuardConfig{}, nil, nil, zap.NewNop())
	handler := guard.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := GetSessionFromContext(r.Context())
		require.NotNil(t, got)
		assert.Equal(t, s.User.ID, got.User.ID)

		outcome, ok := GetOutcomeFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, gate.ClassProtected, outcome.Class)
		assert.Equal(t, gate.Allow, outcome.Decision)
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/settings", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouteGuard_LookupFailureFailsClosed(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	lookup := new(MockSessionLookup)
	lookup.On("GetSession", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.Join(session.ErrProviderUnavailable, errors.New("connection refused")))

	guard := NewRouteGuard(lookup, RouteGuardConfig{}, metrics, nil, zap.NewNop())

	t.Run("protected path redirects", func(t *testing.T) {
		var reached bool
		w := httptest.NewRecorder()
		guard.Handler(okHandler(&reached)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

		assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
		assert.False(t, reached)
	})

	t.Run("public path still allowed", func(t *testing.T) {
		var reached bool
		w := httptest.NewRecorder()
		guard.Handler(okHandler(&reached)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/login", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, reached)
	})

	count, err := testutil.GatherAndCount(reg, "authgate_session_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRouteGuard_MatcherExclusionsSkipLookup(t *testing.T) {
	lookup := new(MockSessionLookup)
	guard := NewRouteGuard(lookup, RouteGuardConfig{}, nil, nil, zap.NewNop())

	for _, path := range []string{"/_next/static/chunk.js", "/_next/image", "/favicon.ico", "/public/robots.txt", "/auth/callback", "/images/hero.webp", "/logo.png"} {
		t.Run(path, func(t *testing.T) {
			var reached bool
			w := httptest.NewRecorder()
			guard.Handler(okHandler(&reached)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.True(t, reached)
		})
	}
	lookup.AssertNotCalled(t, "GetSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestRouteGuard_LookupCookiesReachResponse(t *testing.T) {
	lookup := new(MockSessionLookup)
	lookup.On("GetSession", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			w := args.Get(1).(http.ResponseWriter)
			http.SetCookie(w, &http.Cookie{Name: session.DefaultAccessCookieName, MaxAge: -1})
		}).
		Return(nil, nil)

	guard := NewRouteGuard(lookup, RouteGuardConfig{}, nil, nil, zap.NewNop())
	var reached bool
	w := httptest.NewRecorder()
	guard.Handler(okHandler(&reached)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	require.Len(t, w.Result().Cookies(), 1)
	assert.Equal(t, session.DefaultAccessCookieName, w.Result().Cookies()[0].Name)
}

func TestRouteGuard_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	lookup := new(MockSessionLookup)
	lookup.On("GetSession", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	guard := NewRouteGuard(lookup, RouteGuardConfig{}, metrics, observability.NewTracer(false), zap.NewNop())
	handler := guard.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, path := range []string{"/dashboard", "/dashboard", "/login", "/brand/logo.ico"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	count, err := testutil.GatherAndCount(reg, "authgate_gate_decisions_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRouteGuard_CustomRules(t *testing.T) {
	rules, err := gate.NewRules(gate.RulesConfig{
		PublicRoutes: []string{"/signin", "/about"},
		LoginPath:    "/signin",
	})
	require.NoError(t, err)

	lookup := new(MockSessionLookup)
	lookup.On("GetSession", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	guard := NewRouteGuard(lookup, RouteGuardConfig{Rules: rules}, nil, nil, zap.NewNop())
	var reached bool
	w := httptest.NewRecorder()
	guard.Handler(okHandler(&reached)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://localhost:3000/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
	assert.Equal(t, "http://localhost:3000/signin", w.Header().Get("Location"))
}

func TestRequestOrigin(t *testing.T) {
	t.Run("plain http", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://app.example.com/x", nil)
		assert.Equal(t, "http://app.example.com", RequestOrigin(req, false))
	})

	t.Run("tls", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "https://app.example.com/x", nil)
		req.TLS = &tls.ConnectionState{}
		assert.Equal(t, "https://app.example.com", RequestOrigin(req, false))
	})

	t.Run("forwarded headers ignored by default", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://10.0.0.5:8080/x", nil)
		req.Header.Set("X-Forwarded-Proto", "https")
		req.Header.Set("X-Forwarded-Host", "app.example.com")
		assert.Equal(t, "http://10.0.0.5:8080", RequestOrigin(req, false))
	})

	t.Run("forwarded headers trusted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://10.0.0.5:8080/x", nil)
		req.Header.Set("X-Forwarded-Proto", "https, http")
		req.Header.Set("X-Forwarded-Host", "app.example.com")
		assert.Equal(t, "https://app.example.com", RequestOrigin(req, true))
	})

	t.Run("bogus forwarded proto ignored", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "http://app.example.com/x", nil)
		req.Header.Set("X-Forwarded-Proto", "javascript")
		assert.Equal(t, "http://app.example.com", RequestOrigin(req, true))
	})
}

func TestRouteGuard_DotSegments(t *testing.T) {
	testCases := []struct {
		name     string
		target   string
		session  *session.Session
		wantPath string
	}{
		{"public prefix escape", "/login/../dashboard", nil, ""},
		{"internal prefix escape", "/_next/../dashboard", nil, ""},
		{"encoded dot segments", "/login/%2e%2e/dashboard", nil, ""},
		{"excluded prefix escape", "/public/../settings", nil, ""},
		{"cleaned path reaches next", "/login/../dashboard", testSession(), "/dashboard"},
		{"repeated slashes reach next cleaned", "//settings//", testSession(), "/settings/"},
		{"dot segment inside public route", "/signup/./confirm", nil, "/signup/confirm"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lookup := new(MockSessionLookup)
			if tc.session != nil {
				lookup.On("GetSession", mock.Anything, mock.Anything, mock.Anything).Return(tc.session, nil)
			} else {
				lookup.On("GetSession", mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)
			}

			var gotPath, gotRawPath string
			guard := NewRouteGuard(lookup, RouteGuardConfig{}, nil, nil, zap.NewNop())
			handler := guard.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotRawPath = r.URL.RawPath
				w.WriteHeader(http.StatusOK)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://app.example.com"+tc.target, nil))

			if tc.wantPath == "" {
				assert.Equal(t, http.StatusTemporaryRedirect, w.Code)
				assert.Equal(t, "http://app.example.com/login", w.Header().Get("Location"))
				assert.Empty(t, gotPath)
				return
			}
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tc.wantPath, gotPath)
			assert.Empty(t, gotRawPath)
		})
	}
}
