// Package handlers serves the message protocol over HTTP: requests on
// POST /message, pushes on the /events WebSocket.
package handlers

import (
	"net/http"
	"time"

	"github.com/XerolandRegent/unplug-suite/internal/background"
	"github.com/XerolandRegent/unplug-suite/internal/config"
	"github.com/XerolandRegent/unplug-suite/internal/router"
)

// Tab is the part of the browser bridge /health reports on.
type Tab interface {
	TabID() string
}

type Handlers struct {
	Config  *config.RuntimeConfig
	Router  *router.Router
	Hub     *router.Hub
	Relay   *background.Relay
	Tab     Tab
	Metrics *Metrics
	Limiter *RateLimiter
}

func New(cfg *config.RuntimeConfig, r *router.Router, hub *router.Hub, relay *background.Relay, tab Tab) *Handlers {
	return &Handlers{
		Config: cfg,
		Router: r,
		Hub:    hub,
		Relay:  relay,
		Tab:    tab,

		Metrics: NewMetrics(),
		Limiter: NewRateLimiter(10*time.Second, 120),
	}
}

func (h *Handlers) RegisterRoutes(mux *http.ServeMux, doShutdown func()) {
	mux.HandleFunc("GET /health", h.HandleHealth)
	mux.HandleFunc("POST /message", h.HandleMessage)
	mux.HandleFunc("GET /events", h.HandleEvents)

	if doShutdown != nil {
		mux.HandleFunc("POST /shutdown", h.HandleShutdown(doShutdown))
	}
}

// Wrap applies the middleware stack in the order the server uses it.
func (h *Handlers) Wrap(next http.Handler) http.Handler {
	return LoggingMiddleware(h.Metrics,
		CorsMiddleware(
			RequestIDMiddleware(
				AuthMiddleware(h.Config,
					h.Limiter.Middleware(h.Metrics, next)))))
}
