package idutil

import (
	"strings"
	"testing"
)

func TestSessionIDFormat(t *testing.T) {
	m := NewManager()
	id := m.SessionID()
	if len(id) != 13 {
		t.Errorf("len(%q) = %d, want 13", id, len(id))
	}
	if !strings.HasPrefix(id, "sess_") {
		t.Errorf("%q should carry the sess prefix", id)
	}
}

func TestSessionIDsDiffer(t *testing.T) {
	m := NewManager()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := m.SessionID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}

func TestHashIDIsStable(t *testing.T) {
	if hashID("sess", "a") != hashID("sess", "a") {
		t.Error("same input should hash to the same id")
	}
	if hashID("sess", "a") == hashID("sess", "b") {
		t.Error("different input should hash to different ids")
	}
}
