// Package main provides a CI-friendly smoke test for a running sessiond.
//
// It validates:
//   - login issues a session
//   - refresh rotates to a new session
//   - the superseded token replays its successor inside the grace window
//   - the session listing marks the current session
//   - a silent probe with a dead token answers 204
//   - logout kills the session
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	SessionID    string `json:"session_id"`
}

type sessionEntry struct {
	ID        string `json:"id"`
	IsCurrent bool   `json:"is_current"`
}

type smokeClient struct {
	base    string
	http    *http.Client
	timeout time.Duration
	verbose bool
}

func main() {
	var (
		baseURL  = flag.String("url", "http://127.0.0.1:8080", "sessiond base URL")
		username = flag.String("user", "dev", "Username to log in with")
		password = flag.String("password", "", "Password (defaults to $SESSIOND_DEV_PASSWORD)")
		timeout  = flag.Duration("timeout", 7*time.Second, "Per-step timeout")
		verbose  = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	if err := validateBaseURL(*baseURL); err != nil {
		fatalf("invalid -url: %v", err)
	}
	pw := *password
	if pw == "" {
		pw = os.Getenv("SESSIOND_DEV_PASSWORD")
	}
	if pw == "" {
		fatalf("missing -password")
	}

	c := &smokeClient{
		base:    strings.TrimRight(*baseURL, "/"),
		http:    &http.Client{},
		timeout: *timeout,
		verbose: *verbose,
	}
	root := context.Background()

	first := c.mustTokens(root, "/login", map[string]any{"username": *username, "password": pw})

	second := c.mustTokens(root, "/refresh", map[string]any{"refresh_token": first.RefreshToken})
	if second.SessionID == first.SessionID {
		fatalf("refresh: expected rotation, session id unchanged (%s)", first.SessionID)
	}

	replay := c.mustTokens(root, "/refresh", map[string]any{"refresh_token": first.RefreshToken})
	if replay.SessionID != second.SessionID {
		fatalf("grace: replay session=%s want %s", replay.SessionID, second.SessionID)
	}

	c.mustCurrentListed(root, second)

	status, _ := c.do(root, http.MethodPost, "/refresh", map[string]any{"refresh_token": "garbage", "silent": true}, "")
	if status != http.StatusNoContent {
		fatalf("silent probe: status=%d want 204", status)
	}

	status, _ = c.do(root, http.MethodPost, "/logout", map[string]any{"refresh_token": second.RefreshToken}, "")
	if status != http.StatusNoContent {
		fatalf("logout: status=%d want 204", status)
	}
	status, _ = c.do(root, http.MethodPost, "/refresh", map[string]any{"refresh_token": second.RefreshToken}, "")
	if status != http.StatusUnauthorized {
		fatalf("refresh after logout: status=%d want 401", status)
	}

	fmt.Printf("OK: first=%s rotated=%s\n", first.SessionID, second.SessionID)
}

func validateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return errors.New("missing host")
	}
	return nil
}

func (c *smokeClient) mustTokens(parent context.Context, path string, body any) tokenPair {
	status, raw := c.do(parent, http.MethodPost, path, body, "")
	if status != http.StatusOK {
		fatalf("%s: status=%d body=%s", path, status, raw)
	}
	var p tokenPair
	if err := json.Unmarshal(raw, &p); err != nil {
		fatalf("%s: decode: %v", path, err)
	}
	if p.AccessToken == "" || p.RefreshToken == "" || p.SessionID == "" {
		fatalf("%s: incomplete token pair", path)
	}
	if c.verbose {
		fmt.Printf("%s: session=%s\n", path, p.SessionID)
	}
	return p
}

func (c *smokeClient) mustCurrentListed(parent context.Context, current tokenPair) {
	status, raw := c.do(parent, http.MethodGet, "/sessions", nil, current.AccessToken)
	if status != http.StatusOK {
		fatalf("/sessions: status=%d body=%s", status, raw)
	}
	var resp struct {
		Sessions []sessionEntry `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		fatalf("/sessions: decode: %v", err)
	}
	for _, s := range resp.Sessions {
		if s.ID == current.SessionID {
			if !s.IsCurrent {
				fatalf("/sessions: %s listed but not marked current", s.ID)
			}
			return
		}
	}
	fatalf("/sessions: current session %s not listed", current.SessionID)
}

func (c *smokeClient) do(parent context.Context, method, path string, body any, bearer string) (int, []byte) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		fatalf("%s %s: read body: %v", method, path, err)
	}
	return resp.StatusCode, raw
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
