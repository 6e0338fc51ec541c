package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// trivialPasswords are rejected outright when RejectVeryWeak is set.
var trivialPasswords = map[string]struct{}{
	"password":    {},
	"password123": {},
	"123456":      {},
	"123456789":   {},
	"qwerty":      {},
	"qwerty123":   {},
	"11111111":    {},
	"letmein":     {},
}

// Validate checks the length policy in runes and, optionally, trivial patterns.
func (c Config) Validate(password string) error {
	n := utf8.RuneCountInString(password)
	switch {
	case n < c.Policy.MinLength:
		return ErrPasswordTooShort
	case n > c.Policy.MaxLength:
		return ErrPasswordTooLong
	case c.Policy.RejectVeryWeak && looksVeryWeak(password):
		return ErrWeakPassword
	}
	return nil
}

// looksVeryWeak catches a single repeated character, short PIN-like digit runs
// and a handful of well-known passwords. It is not a strength estimator.
func looksVeryWeak(pw string) bool {
	s := strings.TrimSpace(pw)
	if s == "" {
		return true
	}
	if _, ok := trivialPasswords[strings.ToLower(s)]; ok {
		return true
	}

	first, _ := utf8.DecodeRuneInString(s)
	same, digits := true, true
	for _, r := range s {
		same = same && r == first
		digits = digits && unicode.IsDigit(r)
	}
	return same || (digits && utf8.RuneCountInString(s) < 12)
}
