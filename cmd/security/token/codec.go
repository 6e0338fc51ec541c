package token

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes access credentials from refresh credentials.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Format selects the wire format of issued tokens.
type Format string

const (
	FormatJWT    Format = "jwt"
	FormatPaseto Format = "paseto"
)

// Claims is the decoded, verified payload of a credential.
type Claims struct {
	Subject string
	JTI     string
	Kind    Kind

	// SessionJTI is the jti of the refresh session behind an access token.
	// For refresh tokens it equals JTI.
	SessionJTI string

	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec issues and decodes signed credentials.
type Codec interface {
	// IssueAccess mints an access token with the fixed access TTL.
	IssueAccess(subject, sessionJTI string, now time.Time) (token string, exp time.Time, err error)

	// IssueRefresh mints a refresh token that expires exactly at expiresAt.
	IssueRefresh(subject, jti string, expiresAt, now time.Time) (string, error)

	DecodeAccess(token string, now time.Time) (Claims, error)
	DecodeRefresh(token string, now time.Time) (Claims, error)
}

// PublicKeyer is implemented by codecs whose tokens can be verified with a
// public key alone (PASETO v4.public).
type PublicKeyer interface {
	PublicKeyHex() string
}

// Config configures a Codec.
type Config struct {
	Format Format
	Issuer string

	AccessTTL time.Duration
	ClockSkew time.Duration

	// HMACSecret signs JWTs (HS256). At least 32 bytes.
	HMACSecret string

	// PasetoSecretKeyHex is the hex Ed25519 secret key for v4.public tokens.
	PasetoSecretKeyHex string
}

const (
	minHMACSecretBytes = 32
	maxTokenBytes      = 4096
)

// New builds the Codec selected by cfg.Format.
func New(cfg Config) (Codec, error) {
	switch Format(strings.ToLower(strings.TrimSpace(string(cfg.Format)))) {
	case "", FormatJWT:
		return NewJWTCodec(cfg)
	case FormatPaseto:
		return NewPasetoCodec(cfg)
	default:
		return nil, ErrConfig
	}
}

// NewJTI returns a fresh random token identifier.
func NewJTI() string {
	return uuid.NewString()
}

func sanitize(token string) (string, bool) {
	token = strings.TrimSpace(token)
	if token == "" || len(token) > maxTokenBytes {
		return "", false
	}
	return token, true
}
