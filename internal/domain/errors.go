// Package domain errors.go contains sentinel errors
package domain

import "errors"

// Sentinel domain-level errors reused by higher layers.
var (
	ErrInvalidToken = errors.New("invalid templink token")
	ErrTTLInvalid   = errors.New("ttl invalid")
)
