package authapi

import (
	"net/http"
	"strings"
	"time"
)

// setRefreshCookie stores the refresh token. Session-only logins get a
// browser-session cookie (no Expires); persistent ones expire with the row.
func (h *Handler) setRefreshCookie(w http.ResponseWriter, refreshToken string, refreshExp time.Time, persistent bool) {
	var exp time.Time
	if persistent {
		exp = refreshExp
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.RefreshCookieName,
		Value:    refreshToken,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.RefreshCookieName,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) refreshTokenFromCookie(r *http.Request) (string, bool) {
	c, err := r.Cookie(h.cfg.RefreshCookieName)
	if err != nil {
		return "", false
	}
	v := strings.TrimSpace(c.Value)
	if v == "" {
		return "", false
	}
	return v, true
}

// presentedRefreshToken prefers an explicit body token over the cookie.
func (h *Handler) presentedRefreshToken(r *http.Request, fromBody string) string {
	if v := strings.TrimSpace(fromBody); v != "" {
		return v
	}
	v, _ := h.refreshTokenFromCookie(r)
	return v
}
