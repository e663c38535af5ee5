// Package local is the in-process wallet engine. It implements the wallet
// message interface on top of a secret manager, an account store and the
// node REST API.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"wallet-bridge/go-backend/internal/engine"
	"wallet-bridge/go-backend/internal/metrics"
	"wallet-bridge/go-backend/internal/nodeclient"
	"wallet-bridge/go-backend/pkg/models"
)

func init() {
	engine.Register(engine.TransportLocal, func(ctx context.Context, opts engine.Options) (engine.Handle, error) {
		return New(ctx, opts)
	})
}

// Engine owns the wallet state behind one handle.
type Engine struct {
	mu            sync.RWMutex
	accounts      []models.Account
	coinType      uint32
	clientOptions *models.ClientOptions
	client        *nodeclient.Client
	secrets       secretManager
	store         walletStore
	hub           *eventHub
	logger        *slog.Logger
	now           func() time.Time

	syncMu     sync.Mutex
	syncCancel context.CancelFunc
	syncDone   chan struct{}

	closeOnce sync.Once
	closed    bool
}

// New opens the engine described by opts and loads persisted accounts.
func New(_ context.Context, opts engine.Options) (*Engine, error) {
	e := &Engine{
		hub:    newEventHub(),
		logger: slog.Default().With("component", "engine.local"),
		now:    time.Now,
	}
	if raw := strings.TrimSpace(opts.ClientOptions); raw != "" {
		var clientOptions models.ClientOptions
		if err := json.Unmarshal([]byte(raw), &clientOptions); err != nil {
			return nil, fmt.Errorf("%w: client options: %v", ErrInvalidPayload, err)
		}
		e.clientOptions = &clientOptions
	}
	if raw := strings.TrimSpace(opts.SecretManager); raw != "" {
		var secretOptions models.SecretManager
		if err := json.Unmarshal([]byte(raw), &secretOptions); err != nil {
			return nil, fmt.Errorf("%w: secret manager: %v", ErrInvalidPayload, err)
		}
		secrets, err := newSecretManager(&secretOptions, e.now)
		if err != nil {
			return nil, err
		}
		e.secrets = secrets
	}

	store, err := openStore(opts.StoragePath)
	if err != nil {
		e.closeSecrets()
		return nil, err
	}
	e.store = store
	state, err := store.Load()
	if err != nil {
		_ = store.Close()
		e.closeSecrets()
		return nil, fmt.Errorf("load wallet state: %w", err)
	}
	if state != nil {
		e.accounts = state.Accounts
		e.coinType = state.CoinType
		if e.clientOptions == nil && state.ClientOptions != nil {
			e.clientOptions = state.ClientOptions
		}
	}
	if e.clientOptions != nil {
		client, err := nodeclient.New(*e.clientOptions)
		if err != nil {
			_ = store.Close()
			e.closeSecrets()
			return nil, err
		}
		e.client = client
	}
	e.logger.Info("engine opened", "store", store.Kind(), "accounts", len(e.accounts))
	return e, nil
}

// SendMessage decodes one envelope, dispatches it and returns the encoded
// response. Failures of the command itself are reported as Error responses.
func (e *Engine) SendMessage(ctx context.Context, message string) (string, error) {
	if e.isClosed() {
		return "", engine.ErrHandleClosed
	}
	started := time.Now()
	var envelope struct {
		Cmd     string          `json:"cmd"`
		Payload json.RawMessage `json:"payload"`
	}
	var resp models.Response
	if err := json.Unmarshal([]byte(message), &envelope); err != nil {
		resp = errorResponse(fmt.Errorf("%w: %v", ErrInvalidPayload, err))
	} else {
		resp = e.dispatchRecovered(ctx, envelope.Cmd, envelope.Payload)
	}
	metrics.ObserveMessage(envelope.Cmd, outcomeOf(resp), time.Since(started))
	out, err := json.Marshal(resp)
	if err != nil {
		return "", err
	}
	e.logger.Debug("message handled", "cmd", envelope.Cmd, "response", resp.String(), "latency_ms", time.Since(started).Milliseconds())
	return string(out), nil
}

// Listen registers callback for eventTypes; an empty list selects all events.
func (e *Engine) Listen(_ context.Context, eventTypes []string, callback engine.Callback) error {
	if e.isClosed() {
		return engine.ErrHandleClosed
	}
	return e.hub.Listen(eventTypes, callback)
}

// Close stops background work and releases the store. Later calls fail with
// engine.ErrHandleClosed.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()
		e.stopBackgroundSync()
		e.hub.Close()
		e.closeSecrets()
		err = e.store.Close()
		e.logger.Info("engine closed")
	})
	return err
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

func (e *Engine) closeSecrets() {
	if e.secrets != nil {
		e.secrets.Close()
	}
}

func (e *Engine) dispatchRecovered(ctx context.Context, cmd string, payload json.RawMessage) (resp models.Response) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("panic while handling message", "cmd", cmd, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			raw, _ := json.Marshal(fmt.Sprint(r))
			resp = models.Response{Type: models.RespPanic, Payload: raw}
		}
	}()
	out, err := e.dispatch(ctx, cmd, payload)
	if err != nil {
		return errorResponse(err)
	}
	return out
}

// publish emits evt to listeners; delivery errors only happen after Close.
func (e *Engine) publish(accountIndex uint32, evt models.WalletEvent) {
	if err := e.hub.Publish(models.Event{AccountIndex: accountIndex, Event: evt}); err != nil {
		e.logger.Debug("event dropped", "type", evt.Type, "error", err)
	}
}

// persistLocked saves the current state. Callers hold e.mu.
func (e *Engine) persistLocked() error {
	state := walletState{
		CoinType:      e.coinType,
		ClientOptions: e.clientOptions,
		Accounts:      e.accounts,
	}
	if e.secrets != nil {
		state.SecretManagerKind = e.secrets.Kind()
	}
	return e.store.Save(state)
}

func errorResponse(err error) models.Response {
	raw, _ := json.Marshal(models.ErrorPayload{Type: errorKind(err), Error: err.Error()})
	return models.Response{Type: models.RespError, Payload: raw}
}

func okResponse() models.Response {
	return models.Response{Type: models.RespOk}
}

func outcomeOf(resp models.Response) string {
	switch resp.Type {
	case models.RespError:
		return metrics.OutcomeError
	case models.RespPanic:
		return metrics.OutcomePanic
	default:
		return metrics.OutcomeOk
	}
}
