package token

import "errors"

// Public, stable errors for callers.
var (
	// ErrInvalidToken covers bad signatures, malformed payloads, wrong type,
	// wrong issuer and expired tokens. Callers must not distinguish further.
	ErrInvalidToken = errors.New("invalid token")

	// ErrConfig is returned by constructors for unusable key material or TTLs.
	ErrConfig = errors.New("invalid token config")
)
