// Package password provides Argon2id password hashing for sessiond.
//
// Login and the "sign out other devices" re-confirmation both go through
// Config.Confirm, which turns a verification into a single error value and
// spends the same work on unknown accounts as on known ones.
//
// Hash strings are untrusted input during Verify: parameters far above the
// configured cost are refused.
package password
