package codec

import (
	"bytes"
	"testing"
	"time"
)

type snapshot struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Permissions []string  `json:"permissions,omitempty"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	in := snapshot{
		ID:          "01HZX",
		Email:       "a@x.com",
		Permissions: []string{"view:clients"},
		Verified:    true,
		CreatedAt:   time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	text, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out snapshot
	if err := Decode(text, &out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.ID != in.ID || out.Email != in.Email || !out.Verified || !out.CreatedAt.Equal(in.CreatedAt) {
		t.Fatalf("roundtrip mismatch: %+v", out)
	}
	if len(out.Permissions) != 1 || out.Permissions[0] != "view:clients" {
		t.Fatalf("permissions mismatch: %v", out.Permissions)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	v := map[string]any{"b": 1, "a": 2, "c": []string{"x"}}
	first, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("encoding not deterministic: %x != %x", first, second)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	var out snapshot
	if err := Decode("not base64 !!", &out); err == nil {
		t.Fatal("expected error for invalid text")
	}
	if err := Decode("__8", &out); err == nil {
		t.Fatal("expected error for invalid cbor")
	}
}
