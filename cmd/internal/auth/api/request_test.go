package authapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	req.RemoteAddr = "10.0.0.9:5555"
	req.Header.Set("X-Forwarded-For", "bogus, 203.0.113.5, 10.0.0.1")
	req.Header.Set("X-Real-IP", "198.51.100.2")

	if got := ipString(clientIP(req, false)); got != "10.0.0.9" {
		t.Fatalf("untrusted: got %q", got)
	}
	if got := ipString(clientIP(req, true)); got != "203.0.113.5" {
		t.Fatalf("forwarded: got %q", got)
	}

	req.Header.Del("X-Forwarded-For")
	if got := ipString(clientIP(req, true)); got != "198.51.100.2" {
		t.Fatalf("real-ip: got %q", got)
	}
}

func TestCountryCode(t *testing.T) {
	tests := map[string]string{
		"de":  "DE",
		" US": "US",
		"XX":  "",
		"T1":  "",
		"USA": "",
		"":    "",
	}
	for in, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("CF-IPCountry", in)
		if got := countryCode(req, "CF-IPCountry"); got != want {
			t.Fatalf("countryCode(%q)=%q, want %q", in, got, want)
		}
	}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("CF-IPCountry", "DE")
	if got := countryCode(req, ""); got != "" {
		t.Fatalf("disabled header: got %q", got)
	}
}

func TestTruncateUTF8(t *testing.T) {
	s := strings.Repeat("é", 300) // 600 bytes
	got := truncateUTF8(s, maxUserAgentLen)
	if len(got) > maxUserAgentLen || !utf8.ValidString(got) {
		t.Fatalf("len=%d valid=%v", len(got), utf8.ValidString(got))
	}
	if truncateUTF8("short", maxUserAgentLen) != "short" {
		t.Fatalf("short strings must be unchanged")
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer  xyz": "xyz",
		"Basic abc":   "",
		"Bearer":      "",
		"":            "",
	}
	for in, want := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if in != "" {
			req.Header.Set("Authorization", in)
		}
		if got := bearerToken(req); got != want {
			t.Fatalf("bearerToken(%q)=%q, want %q", in, got, want)
		}
	}
}
