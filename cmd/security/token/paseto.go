package token

import (
	"errors"
	"time"

	paseto "aidanwoods.dev/go-paseto"
)

type pasetoCodec struct {
	issuer    string
	accessTTL time.Duration
	clockSkew time.Duration

	secret paseto.V4AsymmetricSecretKey
	public paseto.V4AsymmetricPublicKey
}

// NewPasetoCodec builds a PASETO v4.public codec from an Ed25519 secret key.
func NewPasetoCodec(cfg Config) (Codec, error) {
	if cfg.AccessTTL <= 0 || cfg.ClockSkew < 0 {
		return nil, ErrConfig
	}
	secret, err := paseto.NewV4AsymmetricSecretKeyFromHex(cfg.PasetoSecretKeyHex)
	if err != nil {
		return nil, ErrConfig
	}
	return &pasetoCodec{
		issuer:    cfg.Issuer,
		accessTTL: cfg.AccessTTL,
		clockSkew: cfg.ClockSkew,
		secret:    secret,
		public:    secret.Public(),
	}, nil
}

// PublicKeyHex implements PublicKeyer.
func (c *pasetoCodec) PublicKeyHex() string {
	return c.public.ExportHex()
}

func (c *pasetoCodec) IssueAccess(subject, sessionJTI string, now time.Time) (string, time.Time, error) {
	exp := now.Add(c.accessTTL)
	tok := c.base(subject, NewJTI(), KindAccess, now, exp)
	_ = tok.Set("sid", sessionJTI)
	return tok.V4Sign(c.secret, nil), exp, nil
}

func (c *pasetoCodec) IssueRefresh(subject, jti string, expiresAt, now time.Time) (string, error) {
	tok := c.base(subject, jti, KindRefresh, now, expiresAt)
	return tok.V4Sign(c.secret, nil), nil
}

func (c *pasetoCodec) base(subject, jti string, kind Kind, now, exp time.Time) paseto.Token {
	tok := paseto.NewToken()
	tok.SetIssuer(c.issuer)
	tok.SetSubject(subject)
	tok.SetJti(jti)
	tok.SetIssuedAt(now)
	tok.SetNotBefore(now)
	tok.SetExpiration(exp)
	_ = tok.Set("type", string(kind))
	return tok
}

func (c *pasetoCodec) DecodeAccess(token string, now time.Time) (Claims, error) {
	return c.decode(token, KindAccess, now)
}

func (c *pasetoCodec) DecodeRefresh(token string, now time.Time) (Claims, error) {
	return c.decode(token, KindRefresh, now)
}

func (c *pasetoCodec) decode(raw string, want Kind, now time.Time) (Claims, error) {
	raw, ok := sanitize(raw)
	if !ok {
		return Claims{}, ErrInvalidToken
	}

	// Build a fresh parser per call to avoid accumulating rules across verifies.
	p := paseto.NewParserWithoutExpiryCheck()
	p.AddRule(paseto.IssuedBy(c.issuer))
	p.AddRule(validWithin(now, c.clockSkew))

	parsed, err := p.ParseV4Public(c.public, raw, nil)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	kind, err := parsed.GetString("type")
	if err != nil || Kind(kind) != want {
		return Claims{}, ErrInvalidToken
	}
	sub, err := parsed.GetSubject()
	if err != nil || sub == "" {
		return Claims{}, ErrInvalidToken
	}
	jti, err := parsed.GetJti()
	if err != nil || jti == "" {
		return Claims{}, ErrInvalidToken
	}
	exp, err := parsed.GetExpiration()
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	iss, _ := parsed.GetIssuer()
	iat, _ := parsed.GetIssuedAt()

	out := Claims{
		Subject:    sub,
		JTI:        jti,
		Kind:       want,
		SessionJTI: jti,
		Issuer:     iss,
		IssuedAt:   iat,
		ExpiresAt:  exp,
	}
	if want == KindAccess {
		sid, err := parsed.GetString("sid")
		if err != nil || sid == "" {
			return Claims{}, ErrInvalidToken
		}
		out.SessionJTI = sid
	}
	return out, nil
}

// validWithin is paseto.ValidAt with the same leeway the JWT codec applies:
// iat and nbf may be up to skew ahead of now, exp up to skew behind.
func validWithin(now time.Time, skew time.Duration) paseto.Rule {
	return func(tok paseto.Token) error {
		iat, err := tok.GetIssuedAt()
		if err != nil {
			return err
		}
		nbf, err := tok.GetNotBefore()
		if err != nil {
			return err
		}
		exp, err := tok.GetExpiration()
		if err != nil {
			return err
		}
		late := now.Add(skew)
		switch {
		case late.Before(iat), late.Before(nbf):
			return errors.New("token used before issued")
		case !now.Add(-skew).Before(exp):
			return errors.New("token expired")
		}
		return nil
	}
}
