// Package domain holds the immutable entities of the system. State
// transitions return new values; illegal transitions return
// apperr.InvalidState and leave the receiver untouched.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a 32-character lowercase hex identifier (UUIDv4, dashes stripped).
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

func utcNow() time.Time { return time.Now().UTC() }
