package ids

import (
	"testing"
	"time"
)

func TestNewIsMonotonic(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	a := NewAt(at)
	b := NewAt(at)
	if len(a) != 26 {
		t.Fatalf("unexpected ulid length %d", len(a))
	}
	if !(a < b) {
		t.Fatalf("expected %s < %s", a, b)
	}
}

func TestOpaque(t *testing.T) {
	id := Opaque()
	if !ValidOpaque(id) {
		t.Fatalf("Opaque produced invalid id %q", id)
	}
	if ValidOpaque("not-a-uuid") {
		t.Fatal("expected invalid id to be rejected")
	}
}
