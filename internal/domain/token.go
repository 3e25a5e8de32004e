// Package domain token.go contains functions to generate, parse, and validate
// templink tokens.
package domain

import (
	"crypto/rand"
	"encoding/base64"
)

// tokenBytes is the raw entropy per token before encoding.
const tokenBytes = 32

// tokenLen is the encoded length: 32 bytes base64url without padding.
const tokenLen = 43

// Token is the canonical identifier for a temporary link. It is a 256-bit
// random value encoded as 43 unpadded base64url characters. A token is
// globally unique across active links and the blacklist combined; entropy
// alone is not treated as proof of that, so issuers must verify candidates
// against both stores before use.
type Token string

// NewToken generates a candidate Token from 32 cryptographically random
// bytes. Callers are responsible for the uniqueness check against the store.
func NewToken() (Token, error) {
	var b [tokenBytes]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return Token(base64.RawURLEncoding.EncodeToString(b[:])), nil
}

// ParseToken validates s and returns it as a Token. It enforces:
// - length == 43
// - only base64url alphabet [0-9A-Za-z_-]
// Returns ErrInvalidToken on failure.
func ParseToken(s string) (Token, error) {
	if !isValidToken(s) {
		return "", ErrInvalidToken
	}
	return Token(s), nil
}

// String returns the string form of the Token.
func (t Token) String() string { return string(t) }

// Valid reports whether the token satisfies the same rules as ParseToken.
func (t Token) Valid() bool { return isValidToken(string(t)) }

// isValidToken performs validation without allocating errors.
func isValidToken(s string) bool {
	if len(s) != tokenLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
