package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testCodecs(t *testing.T) map[string]Codec {
	t.Helper()

	jc, err := New(Config{Format: FormatJWT, Issuer: "sessiond", AccessTTL: 15 * time.Minute, HMACSecret: testSecret})
	if err != nil {
		t.Fatalf("jwt codec: %v", err)
	}
	pc, err := New(Config{
		Format:             FormatPaseto,
		Issuer:             "sessiond",
		AccessTTL:          15 * time.Minute,
		PasetoSecretKeyHex: paseto.NewV4AsymmetricSecretKey().ExportHex(),
	})
	if err != nil {
		t.Fatalf("paseto codec: %v", err)
	}
	return map[string]Codec{"jwt": jc, "paseto": pc}
}

func TestCodec_RefreshRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	exp := now.Add(30 * 24 * time.Hour)

	for name, c := range testCodecs(t) {
		tok, err := c.IssueRefresh("user-1", "jti-1", exp, now)
		if err != nil {
			t.Fatalf("%s: issue: %v", name, err)
		}
		got, err := c.DecodeRefresh(tok, now.Add(time.Hour))
		if err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if got.Subject != "user-1" || got.JTI != "jti-1" || got.SessionJTI != "jti-1" || got.Kind != KindRefresh {
			t.Fatalf("%s: unexpected claims: %+v", name, got)
		}
		if !got.ExpiresAt.Equal(exp) {
			t.Fatalf("%s: exp=%v want=%v", name, got.ExpiresAt, exp)
		}
	}
}

func TestCodec_AccessCarriesSessionJTI(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, c := range testCodecs(t) {
		tok, exp, err := c.IssueAccess("user-1", "session-jti", now)
		if err != nil {
			t.Fatalf("%s: issue: %v", name, err)
		}
		if !exp.Equal(now.Add(15 * time.Minute)) {
			t.Fatalf("%s: access exp=%v", name, exp)
		}
		got, err := c.DecodeAccess(tok, now.Add(time.Minute))
		if err != nil {
			t.Fatalf("%s: decode: %v", name, err)
		}
		if got.SessionJTI != "session-jti" || got.JTI == "" || got.JTI == "session-jti" {
			t.Fatalf("%s: unexpected claims: %+v", name, got)
		}
	}
}

func TestCodec_TypeConfusionRejected(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, c := range testCodecs(t) {
		access, _, err := c.IssueAccess("user-1", "sid", now)
		if err != nil {
			t.Fatalf("%s: issue access: %v", name, err)
		}
		if _, err := c.DecodeRefresh(access, now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: access decoded as refresh: err=%v", name, err)
		}

		refresh, err := c.IssueRefresh("user-1", "jti", now.Add(time.Hour), now)
		if err != nil {
			t.Fatalf("%s: issue refresh: %v", name, err)
		}
		if _, err := c.DecodeAccess(refresh, now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: refresh decoded as access: err=%v", name, err)
		}
	}
}

func TestCodec_ExpiredRejected(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, c := range testCodecs(t) {
		tok, err := c.IssueRefresh("user-1", "jti", now.Add(time.Hour), now)
		if err != nil {
			t.Fatalf("%s: issue: %v", name, err)
		}
		if _, err := c.DecodeRefresh(tok, now.Add(2*time.Hour)); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken for expired token, got %v", name, err)
		}
	}
}

func TestCodec_TamperedRejected(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, c := range testCodecs(t) {
		tok, err := c.IssueRefresh("user-1", "jti", now.Add(time.Hour), now)
		if err != nil {
			t.Fatalf("%s: issue: %v", name, err)
		}
		i := len(tok) / 2
		if tok[i] == '.' {
			i++
		}
		repl := byte('A')
		if tok[i] == 'A' {
			repl = 'B'
		}
		bad := tok[:i] + string(repl) + tok[i+1:]
		if _, err := c.DecodeRefresh(bad, now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken for tampered token, got %v", name, err)
		}
		if _, err := c.DecodeRefresh("", now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: empty token accepted", name)
		}
		if _, err := c.DecodeRefresh(strings.Repeat("x", maxTokenBytes+1), now); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: oversized token accepted", name)
		}
	}
}

func TestJWTCodec_IssuerMismatch(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a, err := NewJWTCodec(Config{Issuer: "a", AccessTTL: time.Minute, HMACSecret: testSecret})
	if err != nil {
		t.Fatalf("codec a: %v", err)
	}
	b, err := NewJWTCodec(Config{Issuer: "b", AccessTTL: time.Minute, HMACSecret: testSecret})
	if err != nil {
		t.Fatalf("codec b: %v", err)
	}

	tok, err := a.IssueRefresh("user-1", "jti", now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := b.DecodeRefresh(tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer mismatch to fail, got %v", err)
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	t.Parallel()

	cases := []Config{
		{Format: FormatJWT, AccessTTL: time.Minute, HMACSecret: "short"},
		{Format: FormatJWT, AccessTTL: 0, HMACSecret: testSecret},
		{Format: FormatPaseto, AccessTTL: time.Minute, PasetoSecretKeyHex: "not-hex"},
		{Format: "opaque", AccessTTL: time.Minute, HMACSecret: testSecret},
	}
	for i, cfg := range cases {
		if _, err := New(cfg); !errors.Is(err, ErrConfig) {
			t.Fatalf("case %d: expected ErrConfig, got %v", i, err)
		}
	}
}

func TestCodec_ClockSkew(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	skew := 30 * time.Second
	codecs := map[string]Config{
		"jwt":    {Format: FormatJWT, Issuer: "sessiond", AccessTTL: time.Minute, ClockSkew: skew, HMACSecret: testSecret},
		"paseto": {Format: FormatPaseto, Issuer: "sessiond", AccessTTL: time.Minute, ClockSkew: skew, PasetoSecretKeyHex: paseto.NewV4AsymmetricSecretKey().ExportHex()},
	}

	for name, cfg := range codecs {
		c, err := New(cfg)
		if err != nil {
			t.Fatalf("%s: New: %v", name, err)
		}
		exp := now.Add(time.Hour)
		tok, err := c.IssueRefresh("user-1", "jti", exp, now)
		if err != nil {
			t.Fatalf("%s: issue: %v", name, err)
		}

		if _, err := c.DecodeRefresh(tok, now.Add(-10*time.Second)); err != nil {
			t.Fatalf("%s: verifier clock slightly behind: %v", name, err)
		}
		if _, err := c.DecodeRefresh(tok, exp.Add(10*time.Second)); err != nil {
			t.Fatalf("%s: just past exp within skew: %v", name, err)
		}
		if _, err := c.DecodeRefresh(tok, exp.Add(time.Minute)); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: past exp beyond skew accepted: %v", name, err)
		}
	}
}

func TestPasetoCodec_PublicKeyVerifies(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	c, err := NewPasetoCodec(Config{Issuer: "sessiond", AccessTTL: time.Minute, PasetoSecretKeyHex: paseto.NewV4AsymmetricSecretKey().ExportHex()})
	if err != nil {
		t.Fatalf("NewPasetoCodec: %v", err)
	}
	pk, ok := c.(PublicKeyer)
	if !ok {
		t.Fatalf("paseto codec does not expose its public key")
	}
	pub, err := paseto.NewV4AsymmetricPublicKeyFromHex(pk.PublicKeyHex())
	if err != nil {
		t.Fatalf("public key: %v", err)
	}

	tok, _, err := c.IssueAccess("user-1", "sid-1", now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	parsed, err := paseto.NewParser().ParseV4Public(pub, tok, nil)
	if err != nil {
		t.Fatalf("external verify: %v", err)
	}
	if sub, _ := parsed.GetSubject(); sub != "user-1" {
		t.Fatalf("sub=%q", sub)
	}

	jc, _ := New(Config{Format: FormatJWT, AccessTTL: time.Minute, HMACSecret: testSecret})
	if _, ok := jc.(PublicKeyer); ok {
		t.Fatalf("HMAC codec must not expose a public key")
	}
}
