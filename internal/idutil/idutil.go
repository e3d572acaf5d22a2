// Package idutil mints short hash-based identifiers.
package idutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

// Manager generates short hash-based IDs for deletion sessions.
type Manager struct {
	seq atomic.Uint64
}

func NewManager() *Manager {
	return &Manager{}
}

// SessionID returns a fresh session ID.
// Format: sess_XXXXXXXX (13 chars total)
func (m *Manager) SessionID() string {
	n := m.seq.Add(1)
	data := fmt.Sprintf("%d:%d", n, time.Now().UnixNano())
	return hashID("sess", data)
}

// hashID creates a short hash-based ID with the given prefix
// Format: {prefix}_{first 8 hex chars of SHA256}
func hashID(prefix, data string) string {
	hash := sha256.Sum256([]byte(data))
	hexHash := hex.EncodeToString(hash[:])
	return fmt.Sprintf("%s_%s", prefix, hexHash[:8])
}
