package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwtClaims struct {
	Type       Kind   `json:"type"`
	SessionJTI string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

type jwtCodec struct {
	issuer    string
	accessTTL time.Duration
	clockSkew time.Duration
	secret    []byte
}

// NewJWTCodec builds an HS256 JWT codec.
func NewJWTCodec(cfg Config) (Codec, error) {
	if len(cfg.HMACSecret) < minHMACSecretBytes || cfg.AccessTTL <= 0 || cfg.ClockSkew < 0 {
		return nil, ErrConfig
	}
	return &jwtCodec{
		issuer:    cfg.Issuer,
		accessTTL: cfg.AccessTTL,
		clockSkew: cfg.ClockSkew,
		secret:    []byte(cfg.HMACSecret),
	}, nil
}

func (c *jwtCodec) IssueAccess(subject, sessionJTI string, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.accessTTL)
	signed, err := c.sign(jwtClaims{
		Type:       KindAccess,
		SessionJTI: sessionJTI,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			ID:        NewJTI(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (c *jwtCodec) IssueRefresh(subject, jti string, expiresAt, now time.Time) (string, error) {
	return c.sign(jwtClaims{
		Type: KindRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
}

func (c *jwtCodec) sign(claims jwtClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *jwtCodec) DecodeAccess(token string, now time.Time) (Claims, error) {
	return c.decode(token, KindAccess, now)
}

func (c *jwtCodec) DecodeRefresh(token string, now time.Time) (Claims, error) {
	return c.decode(token, KindRefresh, now)
}

func (c *jwtCodec) decode(raw string, want Kind, now time.Time) (Claims, error) {
	raw, ok := sanitize(raw)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	// Fresh parser per call so the time function is bound to this request's clock.
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(c.clockSkew),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var claims jwtClaims
	tok, err := p.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Type != want || claims.Subject == "" || claims.ID == "" {
		return Claims{}, ErrInvalidToken
	}

	out := Claims{
		Subject:    claims.Subject,
		JTI:        claims.ID,
		Kind:       claims.Type,
		SessionJTI: claims.SessionJTI,
		Issuer:     claims.Issuer,
		ExpiresAt:  claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	switch want {
	case KindAccess:
		if out.SessionJTI == "" {
			return Claims{}, ErrInvalidToken
		}
	case KindRefresh:
		out.SessionJTI = out.JTI
	}
	return out, nil
}
