package session

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the claims in a provider access token
type Claims struct {
	jwt.RegisteredClaims
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Role        string `json:"role"`
	AAL         string `json:"aal"`
	SessionID   string `json:"session_id"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// User converts the claims into a User
func (c *Claims) User() (*User, error) {
	id, err := parseUserID(c.Subject)
	if err != nil {
		return nil, err
	}
	return &User{
		ID:          id,
		Email:       c.Email,
		Phone:       c.Phone,
		Role:        c.Role,
		AAL:         c.AAL,
		SessionID:   c.SessionID,
		IsAnonymous: c.IsAnonymous,
	}, nil
}
