// Package identity is the account directory consulted by sessiond.
//
// It owns the accounts table: credentials for login, the role used for
// admin-scoped endpoints, and the blocking flags (deleted, locked, forced
// password reset) read by the account guard before any credential is minted.
package identity
