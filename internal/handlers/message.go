package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/XerolandRegent/unplug-suite/internal/protocol"
	"github.com/XerolandRegent/unplug-suite/internal/router"
	"github.com/XerolandRegent/unplug-suite/internal/web"
)

const maxMessageBytes = 64 << 10

// HandleMessage dispatches one protocol request and writes its response.
// Protocol failures come back as 200 with success=false; only routing
// problems map to HTTP errors.
func (h *Handlers) HandleMessage(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		web.Error(w, 400, fmt.Errorf("read body: %w", err))
		return
	}

	msg, err := protocol.Decode(body)
	if err != nil {
		web.ErrorCode(w, 400, "bad_message", fmt.Sprintf("decode message: %v", err), false, nil)
		return
	}
	if msg.Action == "" {
		web.ErrorCode(w, 400, "bad_message", "action required", false, nil)
		return
	}

	resp, err := h.Router.Dispatch(r.Context(), msg)
	switch {
	case errors.Is(err, router.ErrUnknownAction):
		web.ErrorCode(w, 400, "unknown_action", err.Error(), false, map[string]any{"action": msg.Action})
		return
	case errors.Is(err, router.ErrNoReceiver):
		web.ErrorCode(w, 503, "no_receiver", err.Error(), true, map[string]any{"action": msg.Action})
		return
	case err != nil:
		web.Error(w, 500, err)
		return
	}
	web.JSON(w, 200, resp)
}
