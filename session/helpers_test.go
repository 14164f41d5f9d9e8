package session

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

// Test helper to build claims for a user
func testClaims(userID uuid.UUID, expiresIn time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://project.supabase.co/auth/v1",
			Subject:   userID.String(),
			Audience:  jwt.ClaimStrings{DefaultAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		},
		Email:     "user@example.com",
		Role:      "authenticated",
		AAL:       "aal1",
		SessionID: uuid.New().String(),
	}
}

// Test helper to sign claims with the shared HS256 secret
func signHS256(t *testing.T, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

// Test helper to generate RSA key pair
func generateTestKeyPair(t *testing.T) (*rsa.PrivateKey, *rsa.PublicKey) {
	t.Helper()
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return privateKey, &privateKey.PublicKey
}

// Test helper to sign claims with an RSA key under kid
func signRS256(t *testing.T, privateKey *rsa.PrivateKey, kid string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	s, err := token.SignedString(privateKey)
	require.NoError(t, err)
	return s
}

// Test helper to create a mock JWKS server that counts its hits
func createMockJWKSServer(t *testing.T, publicKey *rsa.PublicKey, kid string) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		jwks := JWKS{
			Keys: []JWK{
				{
					Kid: kid,
					Kty: "RSA",
					Alg: "RS256",
					Use: "sig",
					N:   base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes()),
					E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes()),
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)
	return server, &hits
}

// newHS256Validator returns a validator that accepts tokens signed with testSecret
func newHS256Validator() *Validator {
	return NewValidator(ValidatorConfig{JWTSecret: testSecret})
}
