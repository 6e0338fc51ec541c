package app

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"sessiond/cmd/security/token"
)

const minHMACSecretBytes = 32

// ValidateSecurityConfig enforces the signing-key policy at startup.
// There is no fallback to an ephemeral key: tokens must survive a restart.
func ValidateSecurityConfig(cfg Config) error {
	switch token.Format(strings.ToLower(strings.TrimSpace(cfg.TokenFormat))) {
	case "", token.FormatJWT:
		// Measured in bytes, the secret is used raw.
		n := len(cfg.TokenHMACSecret)
		if n == 0 {
			return errors.New("security policy: SESSIOND_TOKEN_HMAC_SECRET is missing")
		}
		if n < minHMACSecretBytes {
			return fmt.Errorf("security policy: SESSIOND_TOKEN_HMAC_SECRET is too short (%d bytes, min %d)", n, minHMACSecretBytes)
		}
	case token.FormatPaseto:
		key := strings.TrimSpace(cfg.TokenPasetoSecretKey)
		if key == "" {
			return errors.New("security policy: SESSIOND_TOKEN_PASETO_SECRET_KEY is missing")
		}
		if _, err := hex.DecodeString(key); err != nil {
			return errors.New("security policy: SESSIOND_TOKEN_PASETO_SECRET_KEY must be hex")
		}
	default:
		return fmt.Errorf("security policy: unknown SESSIOND_TOKEN_FORMAT %q", cfg.TokenFormat)
	}

	if cfg.TokenClockSkew < 0 {
		return errors.New("security policy: SESSIOND_TOKEN_CLOCK_SKEW must be >= 0")
	}
	if strings.EqualFold(strings.TrimSpace(cfg.CookieSameSite), "none") && !cfg.CookieSecure {
		return errors.New("security policy: SESSIOND_COOKIE_SAMESITE=none requires SESSIOND_COOKIE_SECURE=true")
	}
	return nil
}
