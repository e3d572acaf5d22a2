// Package web holds the JSON helpers shared by the relay's handlers and the
// popup's client.
package web

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
)

// ErrorBody is the JSON shape of every non-200 answer from the relay.
type ErrorBody struct {
	Error     string         `json:"error"`
	Code      string         `json:"code"`
	Retryable bool           `json:"retryable,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("json encode", "err", err)
	}
}

func Error(w http.ResponseWriter, code int, err error) {
	ErrorCode(w, code, "error", err.Error(), false, nil)
}

func ErrorCode(w http.ResponseWriter, status int, code, message string, retryable bool, details map[string]any) {
	JSON(w, status, ErrorBody{Error: message, Code: code, Retryable: retryable, Details: details})
}

// ParseError decodes an error answer. ok is false when data is not one.
func ParseError(data []byte) (body ErrorBody, ok bool) {
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		return ErrorBody{}, false
	}
	return body, true
}

// StatusWriter records the status code and body size of a response. It keeps
// Hijack working so the /events upgrade can pass through the middleware.
type StatusWriter struct {
	http.ResponseWriter
	Code  int
	Bytes int
}

func (w *StatusWriter) WriteHeader(code int) {
	w.Code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *StatusWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.Bytes += n
	return n, err
}

func (w *StatusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("underlying ResponseWriter is not a Hijacker")
}
