// Package background is the long-lived relay between the popup and the page
// agent. It keeps no session state of its own.
package background

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/XerolandRegent/unplug-suite/internal/protocol"
	"github.com/XerolandRegent/unplug-suite/internal/router"
)

const installMarker = "installed"

type Relay struct {
	stateDir string
	started  time.Time
	received atomic.Int64
	failed   atomic.Int64
}

func New(stateDir string) *Relay {
	return &Relay{stateDir: stateDir}
}

// Start logs the first run after installation differently from later starts.
func (r *Relay) Start() (firstRun bool, err error) {
	r.started = time.Now()
	marker := filepath.Join(r.stateDir, installMarker)

	_, statErr := os.Stat(marker)
	switch {
	case statErr == nil:
		slog.Info("scrubber started", "stateDir", r.stateDir)
		return false, nil
	case !errors.Is(statErr, os.ErrNotExist):
		return false, fmt.Errorf("check install marker: %w", statErr)
	}

	if err := os.MkdirAll(r.stateDir, 0755); err != nil {
		return false, fmt.Errorf("create state dir: %w", err)
	}
	if err := os.WriteFile(marker, []byte(r.started.Format(time.RFC3339)+"\n"), 0644); err != nil {
		return false, fmt.Errorf("write install marker: %w", err)
	}
	slog.Info("scrubber installed", "stateDir", r.stateDir)
	return true, nil
}

// Middleware logs every message the relay routes.
func (r *Relay) Middleware() router.Middleware {
	return func(next router.Handler) router.Handler {
		return func(ctx context.Context, msg protocol.Message) (protocol.Response, error) {
			start := time.Now()
			r.received.Add(1)
			resp, err := next(ctx, msg)
			if err != nil || !resp.Success {
				r.failed.Add(1)
			}
			slog.Info("message",
				"action", msg.Action,
				"success", resp.Success,
				"ms", time.Since(start).Milliseconds(),
				"err", errText(err, resp),
			)
			return resp, err
		}
	}
}

func errText(err error, resp protocol.Response) string {
	if err != nil {
		return err.Error()
	}
	return resp.Error
}

// Stats is what /health reports about the relay.
type Stats struct {
	Received int64  `json:"received"`
	Failed   int64  `json:"failed"`
	Uptime   string `json:"uptime"`
}

func (r *Relay) Stats() Stats {
	var up time.Duration
	if !r.started.IsZero() {
		up = time.Since(r.started).Round(time.Second)
	}
	return Stats{Received: r.received.Load(), Failed: r.failed.Load(), Uptime: up.String()}
}
