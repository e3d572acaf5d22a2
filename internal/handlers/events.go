package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// PingInterval is how often an idle push stream is pinged.
var PingInterval = 10 * time.Second

// HandleEvents upgrades to WebSocket and streams every push as a JSON text frame.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	// Subscribe before the upgrade so no push sent after the handshake
	// completes can be missed.
	pushes, unsubscribe := h.Hub.Subscribe()
	defer unsubscribe()

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}
	defer func() { _ = conn.Close() }()
	if h.Metrics != nil {
		h.Metrics.streamOpened()
	}

	var once sync.Once
	done := make(chan struct{})

	go func() {
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				once.Do(func() { close(done) })
				return
			}
		}
	}()

	slog.Info("push stream opened", "remote", r.RemoteAddr, "subscribers", h.Hub.Subscribers())
	defer slog.Info("push stream closed", "remote", r.RemoteAddr)

	ping := time.NewTicker(PingInterval)
	defer ping.Stop()

	for {
		select {
		case msg, ok := <-pushes:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				slog.Error("encode push", "action", msg.Action, "err", err)
				continue
			}
			if err := wsutil.WriteServerText(conn, data); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			if err := wsutil.WriteServerMessage(conn, ws.OpPing, nil); err != nil {
				return
			}
		}
	}
}
