// Package clock provides an injectable UTC time source and ID generator so
// the pulse lifecycle can be tested deterministically.
package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock returns the current UTC time. Injected everywhere a component needs
// "now" so tests can substitute a fixed clock.
type Clock interface {
	Now() time.Time
}

// System is the real, wall-clock implementation.
type System struct{}

// Now returns the current UTC time.
func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a test clock that always returns the same instant.
type Fixed struct {
	At time.Time
}

// Now returns the fixed instant.
func (f Fixed) Now() time.Time { return f.At }

// IDGen generates unique identifiers.
type IDGen interface {
	NewID() string
}

// UUIDGen generates IDs via google/uuid.
type UUIDGen struct{}

// NewID returns a new random UUID string.
func (UUIDGen) NewID() string { return uuid.New().String() }
