package session

import "errors"

var (
	// ErrSessionNotFound is returned when no row matches, or the row belongs to another subject.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionRevoked is returned by MarkRotated when the row was revoked concurrently.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrDuplicateJTI is returned when inserting a row whose jti already exists.
	ErrDuplicateJTI = errors.New("duplicate session jti")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid session config")
)
