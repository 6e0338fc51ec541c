// Package token is the credential codec for sessiond.
//
// It signs and verifies the two credential types handed to clients:
// short-lived access tokens and refresh tokens. Both carry the subject,
// a jti and a "type" claim; a token of one type never decodes as the other.
// Access tokens additionally carry "sid", the jti of the refresh session that
// authorized them.
//
// The codec is pure: it never looks at the session registry.
//
// Two formats are supported behind the Codec interface:
//   - JWT (HS256), the default
//   - PASETO v4.public (Ed25519)
package token
