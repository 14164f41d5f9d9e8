package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/authgate/config"
	"github.com/upb/authgate/session"
	"go.uber.org/zap"
)

// MockCodeExchanger is a mock implementation of CodeExchanger
type MockCodeExchanger struct {
	mock.Mock
}

func (m *MockCodeExchanger) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	args := m.Called(provider, redirectTo, codeChallenge)
	return args.String(0)
}

func (m *MockCodeExchanger) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*session.TokenResponse, error) {
	args := m.Called(ctx, code, codeVerifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.TokenResponse), args.Error(1)
}

func (m *MockCodeExchanger) SignOut(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

// MockSessionStore is a mock implementation of SessionStore
type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) SetSession(ctx context.Context, w http.ResponseWriter, tokens *session.TokenResponse) (*session.Session, error) {
	args := m.Called(ctx, w, tokens)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockSessionStore) ClearSession(w http.ResponseWriter) {
	m.Called(w)
}

func (m *MockSessionStore) AccessToken(r *http.Request) string {
	args := m.Called(r)
	return args.String(0)
}

func testConfig() *config.Config {
	return &config.Config{
		Supabase: config.SupabaseConfig{
			URL:               "https://project.supabase.co",
			AnonKey:           "anon-key",
			OAuthProvider:     "github",
			PostLoginRedirect: "/dashboard",
		},
	}
}

func TestHandleLogin(t *testing.T) {
	logger := zap.NewNop()

	t.Run("redirects to authorize URL with PKCE challenge", func(t *testing.T) {
		exchanger := new(MockCodeExchanger)
		h := NewHandler(testConfig(), exchanger, new(MockSessionStore), logger)

		var challenge string
		exchanger.On("AuthorizeURL", "google", "http://app.example.com/auth/callback", mock.AnythingOfType("string")).
			Run(func(args mock.Arguments) { challenge = args.String(2) }).
			Return("https://project.supabase.co/auth/v1/authorize?provider=google")

		req := httptest.NewRequest(http.MethodGet, "http://app.example.com/login/oauth?provider=google", nil)
		w := httptest.NewRecorder()
		h.HandleLogin(w, req)

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://project.supabase.co/auth/v1/authorize?provider=google", w.Header().Get("Location"))

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, VerifierCookieName, cookies[0].Name)
		assert.True(t, cookies[0].HttpOnly)
		assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
		assert.Equal(t, codeChallenge(cookies[0].Value), challenge)
		exchanger.AssertExpectations(t)
	})

	t.Run("uses configured provider and redirect URL", func(t *testing.T) {
		cfg := testConfig()
		cfg.Supabase.OAuthRedirectURL = "https://app.example.com/auth/callback"
		exchanger := new(MockCodeExchanger)
		h := NewHandler(cfg, exchanger, new(MockSessionStore), logger)

		exchanger.On("AuthorizeURL", "github", "https://app.example.com/auth/callback", mock.Anything).
			Return("https://project.supabase.co/auth/v1/authorize")

		w := httptest.NewRecorder()
		h.HandleLogin(w, httptest.NewRequest(http.MethodGet, "/login/oauth", nil))

		assert.Equal(t, http.StatusFound, w.Code)
		require.Len(t, w.Result().Cookies(), 1)
		assert.True(t, w.Result().Cookies()[0].Secure)
		exchanger.AssertExpectations(t)
	})

	t.Run("not configured", func(t *testing.T) {
		h := NewHandler(&config.Config{}, new(MockCodeExchanger), new(MockSessionStore), logger)

		w := httptest.NewRecorder()
		h.HandleLogin(w, httptest.NewRequest(http.MethodGet, "/login/oauth", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestHandleCallback(t *testing.T) {
	logger := zap.NewNop()
	tokens := &session.TokenResponse{AccessToken: "access", RefreshToken: "refresh"}

	callbackRequest := func(query string, verifier string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/auth/callback?"+query, nil)
		if verifier != "" {
			req.AddCookie(&http.Cookie{Name: VerifierCookieName, Value: verifier})
		}
		return req
	}

	t.Run("successful sign-in", func(t *testing.T) {
		exchanger := new(MockCodeExchanger)
		store := new(MockSessionStore)
		h := NewHandler(testConfig(), exchanger, store, logger)

		exchanger.On("ExchangeCodeForSession", mock.Anything, "code-1", "verifier-1").Return(tokens, nil)
		store.On("SetSession", mock.Anything, mock.Anything, tokens).
			Return(&session.Session{User: session.User{ID: uuid.New()}}, nil)

		w := httptest.NewRecorder()
		h.HandleCallback(w, callbackRequest("code=code-1", "verifier-1"))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/dashboard", w.Header().Get("Location"))

		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, VerifierCookieName, cookies[0].Name)
		assert.True(t, cookies[0].MaxAge < 0)

		exchanger.AssertExpectations(t)
		store.AssertExpectations(t)
	})

	t.Run("provider error redirects to login", func(t *testing.T) {
		h := NewHandler(testConfig(), new(MockCodeExchanger), new(MockSessionStore), logger)

		w := httptest.NewRecorder()
		h.HandleCallback(w, callbackRequest("error=access_denied&error_description=denied", ""))

		assert.Equal(t, http.StatusFound, w.Code)
		loc, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "/login", loc.Path)
		assert.Equal(t, "access_denied", loc.Query().Get("error"))
	})

	t.Run("missing code", func(t *testing.T) {
		h := NewHandler(testConfig(), new(MockCodeExchanger), new(MockSessionStore), logger)

		w := httptest.NewRecorder()
		h.HandleCallback(w, callbackRequest("", "verifier-1"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing verifier cookie", func(t *testing.T) {
		exchanger := new(MockCodeExchanger)
		h := NewHandler(testConfig(), exchanger, new(MockSessionStore), logger)

		w := httptest.NewRecorder()
		h.HandleCallback(w, callbackRequest("code=code-1", ""))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		exchanger.AssertNotCalled(t, "ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("exchange failure redirects to login", func(t *testing.T) {
		exchanger := new(MockCodeExchanger)
		h := NewHandler(testConfig(), exchanger, new(MockSessionStore), logger)

		exchanger.On("ExchangeCodeForSession", mock.Anything, "code-1", "verifier-1").
			Return(nil, &session.APIError{StatusCode: http.StatusBadRequest, Code: "flow_state_not_found"})

		w := httptest.NewRecorder()
		h.HandleCallback(w, callbackRequest("code=code-1", "verifier-1"))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login?error=exchange_failed", w.Header().Get("Location"))
	})

	t.Run("invalid issued session redirects to login", func(t *testing.T) {
		exchanger := new(MockCodeExchanger)
		store := new(MockSessionStore)
		h := NewHandler(testConfig(), exchanger, store, logger)

		exchanger.On("ExchangeCodeForSession", mock.Anything, "code-1", "verifier-1").Return(tokens, nil)
		store.On("SetSession", mock.Anything, mock.Anything, tokens).Return(nil, session.ErrInvalidToken)

		w := httptest.NewRecorder()
		h.HandleCallback(w, callbackRequest("code=code-1", "verifier-1"))

		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login?error=invalid_session", w.Header().Get("Location"))
	})

	t.Run("custom login path", func(t *testing.T) {
		cfg := testConfig()
		cfg.Gate.LoginPath = "/signin"
		h := NewHandler(cfg, new(MockCodeExchanger), new(MockSessionStore), logger)

		w := httptest.NewRecorder()
		h.HandleCallback(w, callbackRequest("error=server_error", ""))

		assert.Equal(t, "/signin?error=server_error", w.Header().Get("Location"))
	})
}

func TestHandleLogout(t *testing.T) {
	logger := zap.NewNop()

	t.Run("signs out and clears cookies", func(t *testing.T) {
		exchanger := new(MockCodeExchanger)
		store := new(MockSessionStore)
		h := NewHandler(testConfig(), exchanger, store, logger)

		store.On("AccessToken", mock.Anything).Return("access-1")
		store.On("ClearSession", mock.Anything).Return()
		exchanger.On("SignOut", mock.Anything, "access-1").Return(nil)

		w := httptest.NewRecorder()
		h.HandleLogout(w, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))
		exchanger.AssertExpectations(t)
		store.AssertExpectations(t)
	})

	t.Run("provider failure still clears cookies", func(t *testing.T) {
		exchanger := new(MockCodeExchanger)
		store := new(MockSessionStore)
		h := NewHandler(testConfig(), exchanger, store, logger)

		store.On("AccessToken", mock.Anything).Return("access-1")
		store.On("ClearSession", mock.Anything).Return()
		exchanger.On("SignOut", mock.Anything, "access-1").Return(errors.New("connection refused"))

		w := httptest.NewRecorder()
		h.HandleLogout(w, httptest.NewRequest(http.MethodGet, "/auth/logout", nil))

		assert.Equal(t, http.StatusFound, w.Code)
		store.AssertCalled(t, "ClearSession", mock.Anything)
	})

	t.Run("no session skips provider", func(t *testing.T) {
		exchanger := new(MockCodeExchanger)
		store := new(MockSessionStore)
		h := NewHandler(testConfig(), exchanger, store, logger)

		store.On("AccessToken", mock.Anything).Return("")
		store.On("ClearSession", mock.Anything).Return()

		w := httptest.NewRecorder()
		h.HandleLogout(w, httptest.NewRequest(http.MethodGet, "/auth/logout", nil))

		assert.Equal(t, http.StatusFound, w.Code)
		exchanger.AssertNotCalled(t, "SignOut", mock.Anything, mock.Anything)
	})
}

func TestCodeChallenge(t *testing.T) {
	// RFC 7636 appendix B
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM",
		codeChallenge("dBjftJeZ4CVP-mB92K27uhbUJU1p1r5wKsYMCiq2jXk"))

	v1, err := generateCodeVerifier()
	require.NoError(t, err)
	v2, err := generateCodeVerifier()
	require.NoError(t, err)
	assert.Len(t, v1, 43)
	assert.NotEqual(t, v1, v2)
}
