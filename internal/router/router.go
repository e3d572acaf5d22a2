// Package router dispatches action-tagged requests to their receivers and fans
// pushes out to whoever is listening.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/XerolandRegent/unplug-suite/internal/protocol"
)

var (
	ErrUnknownAction = errors.New("unknown action")
	// ErrNoReceiver mirrors a closed counterpart: the action is valid but
	// nothing is attached to answer it.
	ErrNoReceiver = errors.New("no receiver for action")
)

// Handler answers one request. It may block; the router adds no timeout.
type Handler func(ctx context.Context, msg protocol.Message) (protocol.Response, error)

// Middleware wraps every dispatched handler.
type Middleware func(next Handler) Handler

type Router struct {
	mu          sync.RWMutex
	handlers    map[string]Handler
	middlewares []Middleware
}

func New() *Router {
	return &Router{handlers: make(map[string]Handler)}
}

// Handle binds the receiver for action, replacing any earlier one.
func (r *Router) Handle(action string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[action] = h
}

func (r *Router) Use(mw Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middlewares = append(r.middlewares, mw)
}

// Dispatch delivers msg once to its receiver.
func (r *Router) Dispatch(ctx context.Context, msg protocol.Message) (protocol.Response, error) {
	if !protocol.IsRequest(msg.Action) {
		return protocol.Response{}, fmt.Errorf("%w: %q", ErrUnknownAction, msg.Action)
	}

	r.mu.RLock()
	h, ok := r.handlers[msg.Action]
	mws := make([]Middleware, len(r.middlewares))
	copy(mws, r.middlewares)
	r.mu.RUnlock()

	if !ok {
		return protocol.Response{}, fmt.Errorf("%w: %s", ErrNoReceiver, msg.Action)
	}

	// First registered middleware is the outermost.
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h(ctx, msg)
}

// Actions lists the actions that currently have a receiver.
func (r *Router) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for a := range r.handlers {
		out = append(out, a)
	}
	return out
}
