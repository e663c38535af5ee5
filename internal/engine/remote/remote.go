// Package remote opens engine handles served by a wallet daemon. Messages
// travel as JSON-RPC calls and events arrive over Server-Sent Events.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"wallet-bridge/go-backend/internal/engine"
	"wallet-bridge/go-backend/pkg/models"

	"github.com/google/uuid"
)

const (
	tokenHeader     = "X-Wallet-RPC-Token"
	defaultTimeout  = 60 * time.Second
	maxResponseBody = 16 << 20
	reconnectMin    = 250 * time.Millisecond
	reconnectMax    = 10 * time.Second
)

var ErrEndpointRequired = errors.New("remote engine endpoint is required")

// RPCError is a JSON-RPC error returned by the daemon.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func init() {
	engine.Register(engine.TransportRemote, func(ctx context.Context, opts engine.Options) (engine.Handle, error) {
		return Dial(ctx, opts.Endpoint, opts.Token)
	})
}

// Client is an engine.Handle backed by a daemon.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	stream   *http.Client
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// Dial checks that the daemon at endpoint answers before returning a handle.
func Dial(ctx context.Context, endpoint, token string) (*Client, error) {
	base, err := normalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	c := newClient(base, token)
	if err := c.call(ctx, "health_check", nil, nil); err != nil {
		c.cancel()
		return nil, fmt.Errorf("dial %s: %w", base, err)
	}
	return c, nil
}

func newClient(base, token string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		endpoint: base,
		token:    strings.TrimSpace(token),
		http:     &http.Client{Timeout: defaultTimeout},
		stream:   &http.Client{},
		logger:   slog.Default().With("component", "engine.remote", "endpoint", base),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func normalizeEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrEndpointRequired
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid remote endpoint %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported remote endpoint scheme %q", u.Scheme)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

func (c *Client) SendMessage(ctx context.Context, message string) (string, error) {
	if c.isClosed() {
		return "", engine.ErrHandleClosed
	}
	var result struct {
		Response string `json:"response"`
	}
	if err := c.call(ctx, "send_message", map[string]string{"message": message}, &result); err != nil {
		return "", err
	}
	return result.Response, nil
}

// Listen opens an event stream. The first connection is made before Listen
// returns; later disconnects are retried from the last seen sequence.
func (c *Client) Listen(ctx context.Context, eventTypes []string, callback engine.Callback) error {
	if callback == nil {
		return engine.ErrCallbackRequired
	}
	for _, t := range eventTypes {
		if !models.IsKnownEventType(t) {
			return fmt.Errorf("unknown event type %q", t)
		}
	}
	if c.isClosed() {
		return engine.ErrHandleClosed
	}

	sub := &subscription{
		client:   c,
		filter:   strings.Join(eventTypes, ","),
		callback: callback,
	}
	body, err := sub.open(ctx)
	if err != nil {
		if c.isClosed() {
			return engine.ErrHandleClosed
		}
		return err
	}
	go sub.run(body)
	return nil
}

// Close stops every stream. The daemon keeps its engine; only this handle is
// released. Close does not wait for running callbacks, so a callback may close
// the handle it listens on.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"id":      uuid.NewString(),
		"method":  method,
	}
	if params != nil {
		reqBody["params"] = params
	}
	raw, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/rpc", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return err
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(envelope.Result, out)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}
}
