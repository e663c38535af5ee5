// Package wallet is the Go binding of the wallet message interface. It
// serializes requests into JSON envelopes, hands them to an engine handle and
// relays responses and events back to the caller.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"wallet-bridge/go-backend/internal/engine"
	_ "wallet-bridge/go-backend/internal/engine/local"
	_ "wallet-bridge/go-backend/internal/engine/remote"
	"wallet-bridge/go-backend/pkg/models"
)

// Options configures a message handler.
type Options struct {
	StoragePath   string
	ClientOptions *models.ClientOptions
	SecretManager *models.SecretManager
	// Transport selects the engine; "local" when empty.
	Transport string
	// Endpoint and Token address a remote engine.
	Endpoint string
	Token    string
	Logger   *slog.Logger
}

// MessageHandler owns one engine handle for its whole lifetime.
type MessageHandler struct {
	mu     sync.RWMutex
	handle engine.Handle
	closed bool
	logger *slog.Logger
}

// NewMessageHandler serializes the client and secret manager options and opens
// an engine handle with them.
func NewMessageHandler(ctx context.Context, opts Options) (*MessageHandler, error) {
	bundle, err := buildHandleOptions(opts)
	if err != nil {
		return nil, err
	}
	handle, err := engine.Open(ctx, opts.Transport, bundle)
	if err != nil {
		return nil, fmt.Errorf("create message handler: %w", err)
	}
	return newMessageHandler(handle, opts.Logger), nil
}

func newMessageHandler(handle engine.Handle, logger *slog.Logger) *MessageHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageHandler{handle: handle, logger: logger}
}

func buildHandleOptions(opts Options) (engine.Options, error) {
	bundle := engine.Options{
		StoragePath: strings.TrimSpace(opts.StoragePath),
		Endpoint:    strings.TrimSpace(opts.Endpoint),
		Token:       strings.TrimSpace(opts.Token),
	}
	if opts.ClientOptions != nil {
		raw, err := json.Marshal(opts.ClientOptions)
		if err != nil {
			return engine.Options{}, fmt.Errorf("encode client options: %w", err)
		}
		bundle.ClientOptions = string(raw)
	}
	if opts.SecretManager != nil {
		raw, err := json.Marshal(opts.SecretManager)
		if err != nil {
			return engine.Options{}, fmt.Errorf("encode secret manager: %w", err)
		}
		bundle.SecretManager = string(raw)
	}
	return bundle, nil
}

// SendMessage serializes msg and returns the engine's response text as is.
func (m *MessageHandler) SendMessage(ctx context.Context, msg models.Message) (string, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode message %s: %w", msg.Cmd, err)
	}
	handle, err := m.current()
	if err != nil {
		return "", err
	}
	started := time.Now()
	out, err := handle.SendMessage(ctx, string(raw))
	if err != nil {
		m.logger.Debug("wallet message failed", "cmd", msg.Cmd, "latency_ms", time.Since(started).Milliseconds(), "error", err.Error())
		return "", err
	}
	m.logger.Debug("wallet message", "cmd", msg.Cmd, "latency_ms", time.Since(started).Milliseconds())
	return out, nil
}

// CallAccountMethod wraps method in a CallAccountMethod envelope for accountID.
func (m *MessageHandler) CallAccountMethod(ctx context.Context, accountID models.AccountID, method models.AccountMethod) (string, error) {
	return m.SendMessage(ctx, models.Message{
		Cmd: models.CmdCallAccountMethod,
		Payload: models.CallAccountMethodPayload{
			AccountID: accountID,
			Method:    method,
		},
	})
}

// Listen registers callback for eventTypes; an empty list selects every event.
func (m *MessageHandler) Listen(ctx context.Context, eventTypes []string, callback engine.Callback) error {
	if callback == nil {
		return engine.ErrCallbackRequired
	}
	handle, err := m.current()
	if err != nil {
		return err
	}
	return handle.Listen(ctx, append([]string(nil), eventTypes...), callback)
}

// Destroy releases the engine handle. Later calls fail with engine.ErrHandleClosed.
func (m *MessageHandler) Destroy() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	handle := m.handle
	m.mu.Unlock()
	return handle.Close()
}

func (m *MessageHandler) current() (engine.Handle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, engine.ErrHandleClosed
	}
	return m.handle, nil
}
