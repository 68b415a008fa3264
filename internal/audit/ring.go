package audit

import (
	"context"
	"sync"

	"lawdesk.org/internal/auth"
)

// Reader lists recent audit entries, newest first.
type Reader interface {
	Recent(ctx context.Context, limit int) ([]auth.AuditEntry, error)
}

// Ring keeps the last N entries in memory.
type Ring struct {
	mu      sync.Mutex
	entries []auth.AuditEntry
	next    int
	full    bool
}

var (
	_ auth.AuditSink = (*Ring)(nil)
	_ Reader         = (*Ring)(nil)
)

func NewRing(size int) *Ring {
	if size <= 0 {
		size = 256
	}
	return &Ring{entries: make([]auth.AuditEntry, size)}
}

func (r *Ring) Record(_ context.Context, e auth.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
	return nil
}

func (r *Ring) Recent(_ context.Context, limit int) ([]auth.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.next
	if r.full {
		n = len(r.entries)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]auth.AuditEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.entries)) % len(r.entries)
		out = append(out, r.entries[idx])
	}
	return out, nil
}
