package router

import (
	"sync"

	"github.com/XerolandRegent/unplug-suite/internal/protocol"
)

// Pusher is the agent-side view of the push channel.
type Pusher interface {
	Push(msg protocol.Message)
}

// Hub fans pushes out to subscribers. A slow or absent subscriber never
// blocks the sender; undeliverable pushes are dropped.
type Hub struct {
	mu      sync.RWMutex
	subs    map[chan protocol.Message]struct{}
	bufSize int
}

func NewHub(bufSize int) *Hub {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &Hub{
		subs:    make(map[chan protocol.Message]struct{}),
		bufSize: bufSize,
	}
}

// Subscribe returns a channel of pushes and a func that detaches it.
func (h *Hub) Subscribe() (<-chan protocol.Message, func()) {
	ch := make(chan protocol.Message, h.bufSize)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Push(msg protocol.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
