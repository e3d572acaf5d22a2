package handlers

import (
	"net/http"

	"github.com/XerolandRegent/unplug-suite/internal/web"
)

func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":      "ok",
		"actions":     h.Router.Actions(),
		"subscribers": h.Hub.Subscribers(),
		"metrics":     h.Metrics.Snapshot(),
	}
	if h.Relay != nil {
		body["relay"] = h.Relay.Stats()
	}
	if h.Tab == nil || h.Tab.TabID() == "" {
		body["status"] = "detached"
	} else {
		body["tab"] = h.Tab.TabID()
	}
	web.JSON(w, 200, body)
}
