package password

import "errors"

// Public, stable errors for callers.
var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
	ErrInvalidHash      = errors.New("invalid password hash")
	ErrMismatch         = errors.New("password mismatch")

	// ErrInvalidConfig wraps every ValidateParams failure.
	ErrInvalidConfig = errors.New("invalid password config")
)
