// Package session implements the refresh-session registry, the rotation
// engine and the session presenter.
//
// Every issued refresh token has one registry row, keyed by the token's jti.
// Refresh runs inside a single store transaction that locks the presented
// row, so concurrent refreshes of one token serialize: the first rotates,
// later ones see the row already rotated and, inside the grace window, get
// the successor's credentials back instead of forking the lineage.
//
// Rejections are returned as a typed Outcome, never as errors; only
// infrastructure failures surface as error values.
package session
