package popup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/XerolandRegent/unplug-suite/internal/protocol"
	"github.com/XerolandRegent/unplug-suite/internal/web"
)

// APIError is a non-200 answer from the relay.
type APIError struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("relay returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

// Client talks to a running `scrubber serve` over HTTP and WebSocket.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{},
	}
}

func (c *Client) authorize(h http.Header) {
	if c.Token != "" {
		h.Set("Authorization", "Bearer "+c.Token)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req.Header)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("relay unreachable at %s: %w", c.BaseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		if body, ok := web.ParseError(data); ok {
			apiErr.Message, apiErr.Code, apiErr.Retryable = body.Error, body.Code, body.Retryable
		}
		return apiErr
	}
	return json.Unmarshal(data, out)
}

func (c *Client) Send(ctx context.Context, msg protocol.Message) (protocol.Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return protocol.Response{}, err
	}
	var resp protocol.Response
	if err := c.do(ctx, http.MethodPost, "/message", bytes.NewReader(body), &resp); err != nil {
		return protocol.Response{}, err
	}
	return resp, nil
}

// Health returns the relay's /health document.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Subscribe opens the push stream. The channel closes when ctx ends or the
// connection drops.
func (c *Client) Subscribe(ctx context.Context) (<-chan protocol.Message, error) {
	h := http.Header{}
	c.authorize(h)
	dialer := ws.Dialer{
		Header:  ws.HandshakeHeaderHTTP(h),
		Timeout: 10 * time.Second,
	}
	wsURL := "ws" + strings.TrimPrefix(c.BaseURL, "http") + "/events"
	conn, _, _, err := dialer.Dial(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	out := make(chan protocol.Message, 16)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	go func() {
		defer close(out)
		defer stop()
		defer func() { _ = conn.Close() }()
		for {
			data, op, err := wsutil.ReadServerData(conn)
			if err != nil {
				if ctx.Err() == nil {
					slog.Debug("push stream ended", "err", err)
				}
				return
			}
			if op != ws.OpText {
				continue
			}
			msg, err := protocol.Decode(data)
			if err != nil {
				slog.Warn("bad push", "err", err)
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
