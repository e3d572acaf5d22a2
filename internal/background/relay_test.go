package background

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/XerolandRegent/unplug-suite/internal/protocol"
	"github.com/XerolandRegent/unplug-suite/internal/router"
)

func TestStartWritesMarkerOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	r := New(dir)

	first, err := r.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !first {
		t.Error("first Start should report an install")
	}
	if _, err := os.Stat(filepath.Join(dir, installMarker)); err != nil {
		t.Errorf("marker missing: %v", err)
	}

	again, err := New(dir).Start()
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if again {
		t.Error("second Start should be a plain start")
	}
}

func TestMiddlewareCountsMessages(t *testing.T) {
	r := New(t.TempDir())
	rt := router.New()
	rt.Use(r.Middleware())
	rt.Handle(protocol.ActionGetLogEntries, func(ctx context.Context, msg protocol.Message) (protocol.Response, error) {
		return protocol.OK(), nil
	})
	rt.Handle(protocol.ActionAbortDeletion, func(ctx context.Context, msg protocol.Message) (protocol.Response, error) {
		return protocol.Fail(errors.New("No deletion in progress")), nil
	})

	ctx := context.Background()
	if _, err := rt.Dispatch(ctx, protocol.Message{Action: protocol.ActionGetLogEntries}); err != nil {
		t.Fatal(err)
	}
	resp, err := rt.Dispatch(ctx, protocol.Message{Action: protocol.ActionAbortDeletion})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error != "No deletion in progress" {
		t.Errorf("middleware must pass the response through, got %+v", resp)
	}

	s := r.Stats()
	if s.Received != 2 || s.Failed != 1 {
		t.Errorf("stats = %+v, want 2 received and 1 failed", s)
	}
}
