package id

import (
	"strings"
	"testing"
)

func TestNewIDLengthAndCase(t *testing.T) {
	t.Parallel()

	generated, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(generated) != 26 {
		t.Fatalf("id length = %d, want 26", len(generated))
	}
	if generated != strings.ToLower(generated) {
		t.Fatalf("id %q is not lowercase", generated)
	}
	if strings.Contains(generated, "=") {
		t.Fatalf("id %q contains padding", generated)
	}
}

func TestNewIDUnique(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		generated, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if seen[generated] {
			t.Fatalf("duplicate id %q", generated)
		}
		seen[generated] = true
	}
}
