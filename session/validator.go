package session

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAudience is the audience the provider stamps on user access tokens
const DefaultAudience = "authenticated"

// JWKS represents the JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key
type JWK struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// ValidatorConfig holds configuration for Validator
type ValidatorConfig struct {
	// JWTSecret verifies HS256 tokens. Leave empty to reject them.
	JWTSecret string
	// JWKSURL verifies RS256 tokens. Leave empty to reject them.
	JWKSURL string
	// Issuer is checked when set
	Issuer      string
	Audience    string
	CacheTTL    time.Duration
	HTTPTimeout time.Duration
}

// Validator validates provider access tokens
type Validator struct {
	secret     []byte
	jwksURL    string
	issuer     string
	audience   string
	httpClient *http.Client

	// Cache for JWKS
	jwksCache    *JWKS
	jwksCacheExp time.Time
	jwksCacheTTL time.Duration
	cacheMu      sync.RWMutex

	// Cache for parsed public keys
	keyCache   map[string]*rsa.PublicKey
	keyCacheMu sync.RWMutex
}

// NewValidator creates a new access token validator
func NewValidator(cfg ValidatorConfig) *Validator {
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 1 * time.Hour
	}
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}

	v := &Validator{
		jwksURL:      cfg.JWKSURL,
		issuer:       cfg.Issuer,
		audience:     cfg.Audience,
		jwksCacheTTL: cfg.CacheTTL,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		keyCache: make(map[string]*rsa.PublicKey),
	}
	if cfg.JWTSecret != "" {
		v.secret = []byte(cfg.JWTSecret)
	}
	return v
}

// Validate verifies the token signature and registered claims and returns the claims
func (v *Validator) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			if v.secret == nil {
				return nil, errors.New("HMAC tokens not accepted: no secret configured")
			}
			return v.secret, nil
		case *jwt.SigningMethodRSA:
			if v.jwksURL == "" {
				return nil, errors.New("RSA tokens not accepted: no JWKS configured")
			}
			kid, ok := token.Header["kid"].(string)
			if !ok {
				return nil, errors.New("kid header not found")
			}
			publicKey, err := v.getPublicKey(ctx, kid)
			if err != nil {
				return nil, fmt.Errorf("failed to get public key: %w", err)
			}
			return publicKey, nil
		default:
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
	}, opts...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, ErrInvalidAudience
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, ErrInvalidIssuer
		case errors.Is(err, ErrJWKSFetchFailed):
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// FetchJWKS fetches the JWKS from the provider
func (v *Validator) FetchJWKS(ctx context.Context) (*JWKS, error) {
	// Check cache first
	v.cacheMu.RLock()
	if v.jwksCache != nil && time.Now().Before(v.jwksCacheExp) {
		defer v.cacheMu.RUnlock()
		return v.jwksCache, nil
	}
	v.cacheMu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var jwks JWKS
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrJWKSFetchFailed, err)
	}

	v.cacheMu.Lock()
	v.jwksCache = &jwks
	v.jwksCacheExp = time.Now().Add(v.jwksCacheTTL)
	v.cacheMu.Unlock()

	return &jwks, nil
}

// getPublicKey retrieves the public key for a given kid
func (v *Validator) getPublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.keyCacheMu.RLock()
	if key, exists := v.keyCache[kid]; exists {
		v.keyCacheMu.RUnlock()
		return key, nil
	}
	v.keyCacheMu.RUnlock()

	jwks, err := v.FetchJWKS(ctx)
	if err != nil {
		return nil, err
	}

	var jwk *JWK
	for i := range jwks.Keys {
		if jwks.Keys[i].Kid == kid {
			jwk = &jwks.Keys[i]
			break
		}
	}

	if jwk == nil {
		return nil, fmt.Errorf("key with kid %s not found in JWKS", kid)
	}
	if jwk.Kty != "RSA" {
		return nil, fmt.Errorf("key %s has unsupported type %s", kid, jwk.Kty)
	}

	publicKey, err := jwkToRSAPublicKey(jwk)
	if err != nil {
		return nil, fmt.Errorf("failed to convert JWK to RSA public key: %w", err)
	}

	v.keyCacheMu.Lock()
	v.keyCache[kid] = publicKey
	v.keyCacheMu.Unlock()

	return publicKey, nil
}

// jwkToRSAPublicKey converts a JWK to an RSA public key
func jwkToRSAPublicKey(jwk *JWK) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(jwk.N)
	if err != nil {
		return nil, fmt.Errorf("failed to decode modulus: %w", err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(jwk.E)
	if err != nil {
		return nil, fmt.Errorf("failed to decode exponent: %w", err)
	}

	var e int
	for _, b := range eBytes {
		e = e*256 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// InvalidateCache drops cached keys so the next RSA token refetches the JWKS
func (v *Validator) InvalidateCache() {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()
	v.jwksCache = nil
	v.jwksCacheExp = time.Time{}

	v.keyCacheMu.Lock()
	defer v.keyCacheMu.Unlock()
	v.keyCache = make(map[string]*rsa.PublicKey)
}
