package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

const devPassword = "correct horse battery staple"

func newTestApp(t *testing.T, mutate func(*Config)) http.Handler {
	t.Helper()

	cfg := Config{
		HTTPAddr:             "127.0.0.1:0",
		RotationEnabled:      true,
		RotationGraceSeconds: 30,
		RefreshTTLPersistent: 720 * time.Hour,
		RefreshTTLSession:    24 * time.Hour,
		AccessTTL:            15 * time.Minute,
		TokenFormat:          "jwt",
		TokenIssuer:          "sessiond-test",
		TokenHMACSecret:      testHMACSecret,
		CookieName:           "sessiond_refresh",
		CookieSecure:         true,
		CookieSameSite:       "lax",
		LoginIPMax:           20,
		LoginIPWindow:        5 * time.Minute,
		MetricsEnabled:       true,
		DevUser:              "dev",
		DevPassword:          devPassword,

		// Cheapest Argon2 parameters the bounds accept.
		Argon2MemoryKiB:   8192,
		Argon2Iterations:  1,
		Argon2Parallelism: 1,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.close)
	return a.Handler()
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
}

func decodePair(t *testing.T, rr *httptest.ResponseRecorder) tokenPair {
	t.Helper()
	var p tokenPair
	if err := json.NewDecoder(rr.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.AccessToken == "" || p.RefreshToken == "" || p.SessionID == "" {
		t.Fatalf("incomplete token pair: %+v", p)
	}
	return p
}

func TestApp_HealthReadyAndHeaders(t *testing.T) {
	h := newTestApp(t, nil)

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status=%d", path, rr.Code)
		}
		if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Fatalf("%s: missing security headers", path)
		}
	}
}

func TestApp_ReadinessRequiresDB(t *testing.T) {
	h := newTestApp(t, func(c *Config) { c.ReadinessRequireDB = true })

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status=%d want 503", rr.Code)
	}
}

func TestApp_LoginRotateGraceLogout(t *testing.T) {
	h := newTestApp(t, nil)

	rr := postJSON(t, h, "/login", map[string]any{"username": "dev", "password": devPassword, "remember": true})
	if rr.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rr.Code, rr.Body.String())
	}
	first := decodePair(t, rr)

	rr = postJSON(t, h, "/refresh", map[string]any{"refresh_token": first.RefreshToken})
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh status=%d body=%s", rr.Code, rr.Body.String())
	}
	second := decodePair(t, rr)
	if second.SessionID == first.SessionID {
		t.Fatalf("rotation must create a new session row")
	}

	// The superseded token is still inside the grace window.
	rr = postJSON(t, h, "/refresh", map[string]any{"refresh_token": first.RefreshToken})
	if rr.Code != http.StatusOK {
		t.Fatalf("grace refresh status=%d body=%s", rr.Code, rr.Body.String())
	}
	if replay := decodePair(t, rr); replay.SessionID != second.SessionID {
		t.Fatalf("grace reuse session=%q want %q", replay.SessionID, second.SessionID)
	}

	rr = postJSON(t, h, "/logout", map[string]any{"refresh_token": second.RefreshToken})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("logout status=%d", rr.Code)
	}

	rr = postJSON(t, h, "/refresh", map[string]any{"refresh_token": second.RefreshToken})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout status=%d want 401", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{
		`sessiond_refresh_total{outcome="rotated"} 1`,
		`sessiond_refresh_total{outcome="grace_reuse"} 1`,
		`sessiond_refresh_total{outcome="invalid"} 1`,
		`sessiond_sessions_revoked_total{reason="logout"} 1`,
		"sessiond_sessions_issued_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestApp_MetricsDisabled(t *testing.T) {
	h := newTestApp(t, func(c *Config) { c.MetricsEnabled = false })

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rr.Code)
	}
}

func TestApp_CORSDeniesForeignOrigin(t *testing.T) {
	h := newTestApp(t, func(c *Config) { c.CORSAllowedOrigins = []string{"https://app.example.com"} })

	req := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status=%d want 403", rr.Code)
	}
}
