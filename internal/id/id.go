// Package id generates identifiers for inbound requests.
package id

import (
	"github.com/google/uuid"
)

// NewRequestID returns a time-ordered UUIDv7 string. If the v7 generator
// fails it falls back to a random UUIDv4.
func NewRequestID() string {
	if v7, err := uuid.NewV7(); err == nil {
		return v7.String()
	}
	return uuid.NewString()
}
