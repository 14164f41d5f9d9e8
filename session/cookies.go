package session

import (
	"net/http"
	"time"
)

// Default cookie names, matching the provider's server-side helpers
const (
	DefaultAccessCookieName  = "sb-access-token"
	DefaultRefreshCookieName = "sb-refresh-token"
	DefaultCookieMaxAge      = 7 * 24 * time.Hour
)

// CookieConfig controls how session cookies are read and written
type CookieConfig struct {
	AccessName  string
	RefreshName string
	Domain      string
	Secure      bool
	MaxAge      time.Duration
}

func (c CookieConfig) withDefaults() CookieConfig {
	if c.AccessName == "" {
		c.AccessName = DefaultAccessCookieName
	}
	if c.RefreshName == "" {
		c.RefreshName = DefaultRefreshCookieName
	}
	if c.MaxAge == 0 {
		c.MaxAge = DefaultCookieMaxAge
	}
	return c
}

// cookieValue returns the named cookie's value or ""
func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// writeSessionCookies stores a token pair on the response
func (c CookieConfig) writeSessionCookies(w http.ResponseWriter, accessToken, refreshToken string) {
	http.SetCookie(w, c.cookie(c.AccessName, accessToken, int(c.MaxAge.Seconds())))
	http.SetCookie(w, c.cookie(c.RefreshName, refreshToken, int(c.MaxAge.Seconds())))
}

// clearSessionCookies expires both session cookies
func (c CookieConfig) clearSessionCookies(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(c.AccessName, "", -1))
	http.SetCookie(w, c.cookie(c.RefreshName, "", -1))
}

func (c CookieConfig) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
