// Package logbuf keeps the agent's rolling activity log.
package logbuf

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of entries the agent keeps for replay.
const DefaultCapacity = 50

// Buffer is a bounded, insertion-ordered log. When full, the oldest entry is
// evicted first.
type Buffer struct {
	mu      sync.RWMutex
	entries []string
	start   int
	size    int
	now     func() time.Time
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		entries: make([]string, capacity),
		now:     time.Now,
	}
}

// Format renders a log entry the way every consumer displays it.
func Format(t time.Time, message string) string {
	return t.Format("15:04:05") + " - " + message
}

// Add timestamps message, stores it and returns the stored entry.
func (b *Buffer) Add(message string) string {
	entry := Format(b.now(), message)

	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.entries)
	if b.size < capacity {
		b.entries[(b.start+b.size)%capacity] = entry
		b.size++
		return entry
	}
	b.entries[b.start] = entry
	b.start = (b.start + 1) % capacity
	return entry
}

// Entries returns a copy of the log, oldest first.
func (b *Buffer) Entries() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, b.size)
	for i := 0; i < b.size; i++ {
		out[i] = b.entries[(b.start+i)%len(b.entries)]
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

func (b *Buffer) Cap() int {
	return len(b.entries)
}
