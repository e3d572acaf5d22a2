package logbuf

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func fixedClock(b *Buffer) {
	t0 := time.Date(2025, 6, 16, 9, 30, 5, 0, time.UTC)
	b.now = func() time.Time { return t0 }
}

func TestAddFormatsEntry(t *testing.T) {
	b := New(5)
	fixedClock(b)

	got := b.Add("Archives panel opened")
	if got != "09:30:05 - Archives panel opened" {
		t.Errorf("Add() = %q", got)
	}
}

func TestEvictsOldestFirst(t *testing.T) {
	b := New(3)
	fixedClock(b)

	for i := 1; i <= 5; i++ {
		b.Add(fmt.Sprintf("entry %d", i))
	}

	entries := b.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"entry 3", "entry 4", "entry 5"} {
		if !strings.HasSuffix(entries[i], want) {
			t.Errorf("entries[%d] = %q, want suffix %q", i, entries[i], want)
		}
	}
}

func TestNeverExceedsCapacity(t *testing.T) {
	b := New(DefaultCapacity)
	for i := 0; i < 3*DefaultCapacity+7; i++ {
		b.Add("x")
		if b.Len() > DefaultCapacity {
			t.Fatalf("buffer grew to %d", b.Len())
		}
	}
	if b.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", b.Len(), DefaultCapacity)
	}
}

func TestEntriesIsCopy(t *testing.T) {
	b := New(2)
	b.Add("a")
	entries := b.Entries()
	entries[0] = "mutated"
	if b.Entries()[0] == "mutated" {
		t.Error("Entries() must not expose internal storage")
	}
}

func TestZeroCapacityUsesDefault(t *testing.T) {
	if got := New(0).Cap(); got != DefaultCapacity {
		t.Errorf("Cap() = %d, want %d", got, DefaultCapacity)
	}
}
