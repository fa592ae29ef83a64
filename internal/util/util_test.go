package util

import "testing"

func TestNewUpdateIDUniqueWithinMillisecond(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewUpdateID()
		if len(id) != 26 {
			t.Fatalf("expected 26-char ulid, got %q", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate update id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestNewDeliveryID(t *testing.T) {
	if a, b := NewDeliveryID(), NewDeliveryID(); a == "" || a == b {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a, b)
	}
}
