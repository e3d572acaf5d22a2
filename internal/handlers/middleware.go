package handlers

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/XerolandRegent/unplug-suite/internal/config"
	"github.com/XerolandRegent/unplug-suite/internal/protocol"
	"github.com/XerolandRegent/unplug-suite/internal/web"
)

type actionKey struct{}

// actionFrom returns the protocol action LoggingMiddleware found in the body.
func actionFrom(ctx context.Context) string {
	action, _ := ctx.Value(actionKey{}).(string)
	return action
}

// peekAction decodes the action of a POST /message body and puts the body
// back for the handler.
func peekAction(r *http.Request) string {
	if r.Method != http.MethodPost || r.URL.Path != "/message" || r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	msg, err := protocol.Decode(body)
	if err != nil {
		return ""
	}
	return msg.Action
}

func LoggingMiddleware(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		action := peekAction(r)
		if action != "" {
			r = r.WithContext(context.WithValue(r.Context(), actionKey{}, action))
		}
		sw := &web.StatusWriter{ResponseWriter: w, Code: 200}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(start)
		m.observe(action, sw.Code, elapsed)

		attrs := []any{
			"requestId", w.Header().Get("X-Request-Id"),
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.Code,
			"bytes", sw.Bytes,
			"ms", elapsed.Milliseconds(),
		}
		if action != "" {
			attrs = append(attrs, "action", action)
		}
		slog.Info("request", attrs...)
	})
}

func AuthMiddleware(cfg *config.RuntimeConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cfg.Token == "" {
			next.ServeHTTP(w, r)
			return
		}
		switch auth := r.Header.Get("Authorization"); {
		case auth == "":
			w.Header().Set("WWW-Authenticate", `Bearer realm="scrubber", error="missing_token"`)
			web.ErrorCode(w, http.StatusUnauthorized, "missing_token", "unauthorized", false, nil)
		case auth != "Bearer "+cfg.Token:
			w.Header().Set("WWW-Authenticate", `Bearer realm="scrubber", error="bad_token"`)
			web.ErrorCode(w, http.StatusUnauthorized, "bad_token", "unauthorized", false, nil)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// CorsMiddleware lets the popup call the relay from another origin.
func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-Id")
		h.Set("Access-Control-Expose-Headers", "X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-Id")
		if rid == "" {
			b := make([]byte, 8)
			_, _ = rand.Read(b)
			rid = hex.EncodeToString(b)
		}
		w.Header().Set("X-Request-Id", rid)
		next.ServeHTTP(w, r)
	})
}

// RateLimiter caps requests per client and action over a sliding window.
// A deleteAllArchives call that holds its request open for the whole run
// uses one slot, and never blocks the abortDeletion that ends it.
type RateLimiter struct {
	Window time.Duration
	Max    int

	mu      sync.Mutex
	buckets map[string][]time.Time
}

func NewRateLimiter(window time.Duration, max int) *RateLimiter {
	return &RateLimiter{Window: window, Max: max, buckets: map[string][]time.Time{}}
}

// unlimited reports whether r bypasses the limiter: /health, the push
// stream, and aborts.
func unlimited(r *http.Request) bool {
	switch strings.TrimSpace(r.URL.Path) {
	case "/health", "/events":
		return true
	}
	return actionFrom(r.Context()) == protocol.ActionAbortDeletion
}

func clientHost(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		return r.RemoteAddr
	}
	return host
}

func (l *RateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	hits := l.buckets[key]
	kept := hits[:0]
	for _, t := range hits {
		if now.Sub(t) < l.Window {
			kept = append(kept, t)
		}
	}
	if len(kept) >= l.Max {
		l.buckets[key] = kept
		return false
	}
	l.buckets[key] = append(kept, now)
	return true
}

// Middleware expects LoggingMiddleware to have run first so the action is
// in the request context.
func (l *RateLimiter) Middleware(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unlimited(r) {
			next.ServeHTTP(w, r)
			return
		}
		scope := actionFrom(r.Context())
		if scope == "" {
			scope = r.URL.Path
		}
		if !l.allow(clientHost(r)+" "+scope, time.Now()) {
			m.limited()
			web.ErrorCode(w, http.StatusTooManyRequests, "rate_limited", "too many requests", true, map[string]any{
				"windowSec": int(l.Window.Seconds()),
				"max":       l.Max,
				"scope":     scope,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
