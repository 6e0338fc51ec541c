package authapi

import (
	"net/http"
	"strings"
	"time"
)

// Config controls HTTP transport details of the session endpoints.
type Config struct {
	// TrustProxy enables X-Forwarded-For / X-Real-IP for client IP capture.
	TrustProxy bool
	// CountryHeader names the edge header carrying an ISO country code.
	CountryHeader string
	MaxBodyBytes  int64

	RefreshCookieName string
	CookiePath        string
	CookieDomain      string
	CookieSecure      bool
	CookieSameSite    http.SameSite

	// LoginIPMax failed logins per LoginIPWindow from one IP before 429.
	LoginIPMax    int
	LoginIPWindow time.Duration
}

// DefaultConfig returns production-leaning defaults.
func DefaultConfig() Config {
	return Config{
		CountryHeader:     "CF-IPCountry",
		MaxBodyBytes:      1 << 20, // 1 MiB
		RefreshCookieName: "sessiond_refresh",
		CookiePath:        "/",
		CookieSecure:      true,
		CookieSameSite:    http.SameSiteLaxMode,
		LoginIPMax:        20,
		LoginIPWindow:     5 * time.Minute,
	}
}

// Normalize fills zero values from DefaultConfig and applies cookie guardrails.
func (c Config) Normalize() Config {
	def := DefaultConfig()

	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	c.RefreshCookieName = strings.TrimSpace(c.RefreshCookieName)
	if c.RefreshCookieName == "" {
		c.RefreshCookieName = def.RefreshCookieName
	}
	if strings.TrimSpace(c.CookiePath) == "" {
		c.CookiePath = def.CookiePath
	}
	if c.CookieSameSite == 0 {
		c.CookieSameSite = def.CookieSameSite
	}
	// Browsers drop SameSite=None cookies that are not Secure.
	if c.CookieSameSite == http.SameSiteNoneMode {
		c.CookieSecure = true
	}
	if c.LoginIPWindow <= 0 {
		c.LoginIPWindow = def.LoginIPWindow
	}
	return c
}

// ParseSameSite maps a config string to http.SameSite. Unknown values mean Lax.
func ParseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}
