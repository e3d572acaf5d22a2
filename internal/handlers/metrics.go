package handlers

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics counts what the HTTP layer sees. Message-level counts live on the
// relay; these cover requests the router never receives.
type Metrics struct {
	requests    atomic.Uint64
	failed      atomic.Uint64
	latencyMs   atomic.Uint64
	rateLimited atomic.Uint64
	streams     atomic.Uint64

	mu       sync.Mutex
	byAction map[string]uint64
}

func NewMetrics() *Metrics {
	return &Metrics{byAction: map[string]uint64{}}
}

func (m *Metrics) observe(action string, status int, elapsed time.Duration) {
	m.requests.Add(1)
	m.latencyMs.Add(uint64(elapsed.Milliseconds()))
	if status >= 400 {
		m.failed.Add(1)
	}
	if action == "" {
		return
	}
	m.mu.Lock()
	m.byAction[action]++
	m.mu.Unlock()
}

func (m *Metrics) limited() { m.rateLimited.Add(1) }

func (m *Metrics) streamOpened() { m.streams.Add(1) }

// RateLimited is how many requests the limiter has refused.
func (m *Metrics) RateLimited() uint64 { return m.rateLimited.Load() }

// Requests is how many requests have completed.
func (m *Metrics) Requests() uint64 { return m.requests.Load() }

// Action is how many /message requests carried action.
func (m *Metrics) Action(action string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byAction[action]
}

func (m *Metrics) Snapshot() map[string]any {
	total := m.requests.Load()
	avgMs := 0.0
	if total > 0 {
		avgMs = float64(m.latencyMs.Load()) / float64(total)
	}
	m.mu.Lock()
	actions := make(map[string]uint64, len(m.byAction))
	for k, v := range m.byAction {
		actions[k] = v
	}
	m.mu.Unlock()
	return map[string]any{
		"requestsTotal":  total,
		"requestsFailed": m.failed.Load(),
		"avgLatencyMs":   avgMs,
		"rateLimited":    m.rateLimited.Load(),
		"streamsOpened":  m.streams.Load(),
		"actions":        actions,
	}
}
