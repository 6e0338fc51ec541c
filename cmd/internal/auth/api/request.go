package authapi

import (
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"sessiond/cmd/internal/auth/session"
)

const maxUserAgentLen = 512

// requestContext is captured once per request and reused for session metadata and audit.
type requestContext struct {
	now  time.Time
	meta session.Metadata
}

func (h *Handler) newRequestContext(r *http.Request) requestContext {
	return requestContext{
		now: h.now().UTC(),
		meta: session.Metadata{
			UserAgent:   truncateUTF8(strings.TrimSpace(r.UserAgent()), maxUserAgentLen),
			IPAddress:   ipString(clientIP(r, h.cfg.TrustProxy)),
			CountryCode: countryCode(r, h.cfg.CountryHeader),
		},
	}
}

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	for _, p := range strings.Split(raw, ",") {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

// countryCode accepts only two ASCII letters; Cloudflare's "XX" and "T1" are dropped.
func countryCode(r *http.Request, header string) string {
	if header == "" {
		return ""
	}
	v := strings.ToUpper(strings.TrimSpace(r.Header.Get(header)))
	if len(v) != 2 || v == "XX" {
		return ""
	}
	for i := 0; i < 2; i++ {
		if v[i] < 'A' || v[i] > 'Z' {
			return ""
		}
	}
	return v
}

func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for !utf8.ValidString(s) && len(s) > 0 {
		s = s[:len(s)-1]
	}
	return s
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func silentRequested(r *http.Request, fromBody bool) bool {
	if fromBody {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(r.Header.Get("X-Silent-Refresh"))) {
	case "1", "true", "yes":
		return true
	}
	return false
}
