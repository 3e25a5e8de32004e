// Package domain ttl.go contains TTL validation and the expiry evaluator.
package domain

import "time"

// TTL bounds for temporary links, in seconds. Inclusive on both ends.
const (
	MinTTLSeconds = 300
	MaxTTLSeconds = 30000
)

// ValidateTTL checks that ttlSeconds falls within [min, max].
// Returns ErrTTLInvalid on any violation.
func ValidateTTL(ttlSeconds, minTTL, maxTTL int) error {
	if ttlSeconds < minTTL {
		return ErrTTLInvalid
	}
	if ttlSeconds > maxTTL {
		return ErrTTLInvalid
	}
	return nil
}

// ExpiresAt returns the absolute expiry instant for a link.
func ExpiresAt(createdAt time.Time, ttlSeconds int) time.Time {
	return createdAt.Add(time.Duration(ttlSeconds) * time.Second)
}

// IsExpired reports whether a link created at createdAt with the given TTL is
// expired at instant now. The boundary is inclusive: a link observed at the
// exact expiry instant is expired. Pure and monotonic in now.
func IsExpired(createdAt time.Time, ttlSeconds int, now time.Time) bool {
	return !now.Before(ExpiresAt(createdAt, ttlSeconds))
}
