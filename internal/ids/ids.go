// Package ids generates identifiers for stored entities and opaque handles.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a sortable ULID used as account, role and audit entry id.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a ULID carrying the given timestamp.
func NewAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Opaque returns a random identifier with no ordering, for request ids,
// client contexts and token ids.
func Opaque() string {
	return uuid.NewString()
}

// ValidOpaque reports whether s looks like a value produced by Opaque.
func ValidOpaque(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
