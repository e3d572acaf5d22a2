package scrubber

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/XerolandRegent/unplug-suite/internal/protocol"
)

// State is where a deletion session stands.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Session is one run of the deletion loop. Deleted never exceeds Total.
type Session struct {
	ID      string
	Started time.Time

	total   atomic.Int64
	deleted atomic.Int64
	state   atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
}

func newSession(parent context.Context, id string) *Session {
	ctx, cancel := context.WithCancel(parent)
	s := &Session{ID: id, Started: time.Now(), ctx: ctx, cancel: cancel}
	s.state.Store(int32(StateRunning))
	return s
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

func (s *Session) Total() int { return int(s.total.Load()) }

func (s *Session) Deleted() int { return int(s.deleted.Load()) }

// Abort asks the loop to stop before its next item.
func (s *Session) Abort() { s.cancel() }

func (s *Session) aborted() bool { return s.ctx.Err() != nil }

func (s *Session) Result() protocol.Result {
	return protocol.Result{Deleted: s.Deleted(), Total: s.Total()}
}
