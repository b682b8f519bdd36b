package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/meridianbank/signin-gateway/internal/config"
)

// Cookie plumbing for the server-side session. The cookie carries only an
// opaque session id; all flow material stays in the store.

func sameSite(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func sessionCookie(cfg *config.Config, sid string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     cfg.Session.CookieName,
		Value:    sid,
		Path:     "/",
		Domain:   cfg.Session.Domain,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Session.Secure,
		SameSite: sameSite(cfg.Session.SameSite),
	}
}

func expiredCookie(cfg *config.Config) *http.Cookie {
	c := sessionCookie(cfg, "", 0)
	c.MaxAge = -1
	return c
}

func readSessionID(r *http.Request, cfg *config.Config) (string, bool) {
	c, err := r.Cookie(cfg.Session.CookieName)
	if err != nil || c.Value == "" {
		return "", false
	}
	return c.Value, true
}
