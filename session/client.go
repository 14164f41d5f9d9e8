package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TokenResponse represents the token endpoint response from the provider
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
}

// APIError is a non-2xx response from the provider
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth provider returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("auth provider returned %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps 4xx responses to ErrRejected and everything else to
// ErrProviderUnavailable. Timeouts and rate limiting say nothing about the
// token, so 408 and 429 count as unavailable.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return ErrProviderUnavailable
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return ErrRejected
	default:
		return ErrProviderUnavailable
	}
}

// apiErrorBody covers both the current and the legacy GoTrue error shapes
type apiErrorBody struct {
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// ClientConfig holds configuration for Client
type ClientConfig struct {
	URL         string
	AnonKey     string
	HTTPTimeout time.Duration
}

// Client talks to the provider's GoTrue REST API
type Client struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
}

// NewClient creates a new provider client
func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.URL, "/") + "/auth/v1",
		anonKey: cfg.AnonKey,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
	}
}

// RefreshSession exchanges a refresh token for a new token pair
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	body := map[string]string{"refresh_token": refreshToken}
	var tokens TokenResponse
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &tokens); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("refresh session: %w: no access_token in response", ErrProviderUnavailable)
	}
	return &tokens, nil
}

// ExchangeCodeForSession completes a PKCE authorization code flow
func (c *Client) ExchangeCodeForSession(ctx context.Context, code, codeVerifier string) (*TokenResponse, error) {
	body := map[string]string{
		"auth_code":     code,
		"code_verifier": codeVerifier,
	}
	var tokens TokenResponse
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=pkce", "", body, &tokens); err != nil {
		return nil, fmt.Errorf("exchange code: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("exchange code: %w: no access_token in response", ErrProviderUnavailable)
	}
	return &tokens, nil
}

// SignOut revokes the session behind accessToken
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// Health checks that the provider is reachable
func (c *Client) Health(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/health", "", nil, nil); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	return nil
}

// AuthorizeURL builds the URL that starts an OAuth PKCE flow with an external identity provider
func (c *Client) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	params := url.Values{
		"provider":              {provider},
		"redirect_to":           {redirectTo},
		"code_challenge":        {codeChallenge},
		"code_challenge_method": {"s256"},
	}
	return c.baseURL + "/authorize?" + params.Encode()
}

func (c *Client) do(ctx context.Context, method, path, bearer string, in, out interface{}) error {
	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrProviderUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseAPIError(resp.StatusCode, body)
	}

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: parse response: %v", ErrProviderUnavailable, err)
	}
	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}

	apiErr.Code = parsed.ErrorCode
	if apiErr.Code == "" {
		apiErr.Code = parsed.Error
	}
	apiErr.Message = parsed.Msg
	if apiErr.Message == "" {
		apiErr.Message = parsed.ErrorDescription
	}
	return apiErr
}
