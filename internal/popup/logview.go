package popup

import "sync"

// LogViewCapacity is how many entries the popup keeps on screen.
const LogViewCapacity = 20

// LogView holds the popup's log, newest entry first.
type LogView struct {
	mu      sync.Mutex
	entries []string
	cap     int
}

func NewLogView(capacity int) *LogView {
	if capacity <= 0 {
		capacity = LogViewCapacity
	}
	return &LogView{cap: capacity}
}

// Add puts entry on top and drops whatever falls off the bottom.
func (l *LogView) Add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]string{entry}, l.entries...)
	if len(l.entries) > l.cap {
		l.entries = l.entries[:l.cap]
	}
}

func (l *LogView) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}
