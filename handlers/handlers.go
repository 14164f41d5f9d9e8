package handlers

import (
	"net/http"
	"time"

	"github.com/upb/authgate/middleware"
	"github.com/upb/authgate/utils"
)

// SessionUser is the user part of GET /api/v1/session
type SessionUser struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Role        string `json:"role,omitempty"`
	AAL         string `json:"aal,omitempty"`
	IsAnonymous bool   `json:"is_anonymous"`
}

// SessionResponse is the response body for GET /api/v1/session
type SessionResponse struct {
	User      SessionUser `json:"user"`
	ExpiresAt string      `json:"expires_at,omitempty"`
	Refreshed bool        `json:"refreshed"`
}

// SessionHandler returns the session the route guard resolved for the request
func SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := middleware.GetSessionFromContext(r.Context())
		if s == nil || s.Expired(time.Now()) {
			_ = utils.WriteUnauthorized(w, "Authentication required")
			return
		}

		resp := SessionResponse{
			User: SessionUser{
				ID:          s.User.ID.String(),
				Email:       s.User.Email,
				Phone:       s.User.Phone,
				Role:        s.User.Role,
				AAL:         s.User.AAL,
				IsAnonymous: s.User.IsAnonymous,
			},
			Refreshed: s.Refreshed,
		}
		if !s.ExpiresAt.IsZero() {
			resp.ExpiresAt = s.ExpiresAt.UTC().Format(time.RFC3339)
		}
		_ = utils.WriteOK(w, resp)
	}
}
