package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"wallet-bridge/go-backend/internal/engine"
	"wallet-bridge/go-backend/pkg/models"
)

const fakeTransport = "wallet-test-fake"

var (
	fakeOpened atomic.Int32
	fakeLast   atomic.Pointer[fakeHandle]
)

func init() {
	engine.Register(fakeTransport, func(_ context.Context, opts engine.Options) (engine.Handle, error) {
		fakeOpened.Add(1)
		h := &fakeHandle{opts: opts, reply: `{"type":"Ok"}`}
		fakeLast.Store(h)
		return h, nil
	})
}

type fakeListener struct {
	filter   []string
	callback engine.Callback
}

// fakeHandle records envelopes and answers every message with reply.
type fakeHandle struct {
	mu        sync.Mutex
	opts      engine.Options
	sent      []string
	reply     string
	sendErr   error
	listeners []fakeListener
	closed    int
}

func (h *fakeHandle) SendMessage(_ context.Context, message string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, message)
	if h.sendErr != nil {
		return "", h.sendErr
	}
	return h.reply, nil
}

func (h *fakeHandle) Listen(_ context.Context, eventTypes []string, callback engine.Callback) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fakeListener{filter: eventTypes, callback: callback})
	return nil
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
	return nil
}

func (h *fakeHandle) emit(evt models.Event) {
	raw, _ := json.Marshal(evt)
	h.mu.Lock()
	listeners := append([]fakeListener(nil), h.listeners...)
	h.mu.Unlock()
	for _, l := range listeners {
		if engine.MatchesEventType(l.filter, evt.Event.Type) {
			l.callback(nil, string(raw))
		}
	}
}

func (h *fakeHandle) lastSent(t *testing.T) string {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sent) == 0 {
		t.Fatal("no message was sent")
	}
	return h.sent[len(h.sent)-1]
}

func newFakeHandler(t *testing.T) (*MessageHandler, *fakeHandle) {
	t.Helper()
	m, err := NewMessageHandler(context.Background(), Options{Transport: fakeTransport})
	if err != nil {
		t.Fatalf("NewMessageHandler failed: %v", err)
	}
	t.Cleanup(func() { _ = m.Destroy() })
	return m, fakeLast.Load()
}

func TestNewMessageHandlerOpensOneHandleAndKeepsInput(t *testing.T) {
	opts := Options{
		Transport:     fakeTransport,
		StoragePath:   " /tmp/wallet ",
		ClientOptions: &models.ClientOptions{Nodes: []string{"http://127.0.0.1:14265"}, LocalPow: true},
		SecretManager: &models.SecretManager{Stronghold: &models.StrongholdOptions{SnapshotPath: "/tmp/s.stronghold"}},
	}
	before := fakeOpened.Load()
	snapshot := Options{
		Transport:     opts.Transport,
		StoragePath:   opts.StoragePath,
		ClientOptions: &models.ClientOptions{Nodes: append([]string(nil), opts.ClientOptions.Nodes...), LocalPow: true},
		SecretManager: &models.SecretManager{Stronghold: &models.StrongholdOptions{SnapshotPath: "/tmp/s.stronghold"}},
	}

	m, err := NewMessageHandler(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewMessageHandler failed: %v", err)
	}
	defer m.Destroy()

	if got := fakeOpened.Load() - before; got != 1 {
		t.Fatalf("expected exactly one handle, got %d", got)
	}
	if !reflect.DeepEqual(opts, snapshot) {
		t.Fatalf("input options were mutated: %+v", opts)
	}
	h := fakeLast.Load()
	if h.opts.StoragePath != "/tmp/wallet" {
		t.Fatalf("unexpected storage path %q", h.opts.StoragePath)
	}
	if h.opts.ClientOptions != `{"nodes":["http://127.0.0.1:14265"],"localPow":true}` {
		t.Fatalf("unexpected client options %s", h.opts.ClientOptions)
	}
	if h.opts.SecretManager != `{"Stronghold":{"snapshotPath":"/tmp/s.stronghold"}}` {
		t.Fatalf("unexpected secret manager %s", h.opts.SecretManager)
	}
}

func TestNewMessageHandlerUnknownTransport(t *testing.T) {
	_, err := NewMessageHandler(context.Background(), Options{Transport: "carrier-pigeon"})
	if !errors.Is(err, engine.ErrUnknownTransport) {
		t.Fatalf("expected ErrUnknownTransport, got %v", err)
	}
}

func TestSendMessageReturnsEngineTextVerbatim(t *testing.T) {
	m, h := newFakeHandler(t)
	h.reply = `{"type":"Accounts","payload":[]}`

	out, err := m.SendMessage(context.Background(), models.Message{Cmd: models.CmdGetAccounts})
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if out != h.reply {
		t.Fatalf("expected verbatim reply, got %s", out)
	}
	if got := h.lastSent(t); got != `{"cmd":"GetAccounts"}` {
		t.Fatalf("unexpected envelope %s", got)
	}
}

func TestCallAccountMethodEnvelope(t *testing.T) {
	m, h := newFakeHandler(t)
	_, err := m.CallAccountMethod(context.Background(), models.AccountIndex(0), models.AccountMethod{
		Name: models.MethodGenerateAddresses,
		Data: models.GenerateAddressesPayload{Amount: 2},
	})
	if err != nil {
		t.Fatalf("CallAccountMethod failed: %v", err)
	}
	want := `{"cmd":"CallAccountMethod","payload":{"accountId":0,"method":{"name":"GenerateAddresses","data":{"amount":2}}}}`
	if got := h.lastSent(t); got != want {
		t.Fatalf("unexpected envelope\n got %s\nwant %s", got, want)
	}

	_, err = m.CallAccountMethod(context.Background(), models.AccountAlias("savings"), models.AccountMethod{Name: models.MethodGetBalance})
	if err != nil {
		t.Fatalf("CallAccountMethod failed: %v", err)
	}
	want = `{"cmd":"CallAccountMethod","payload":{"accountId":"savings","method":{"name":"GetBalance"}}}`
	if got := h.lastSent(t); got != want {
		t.Fatalf("unexpected envelope\n got %s\nwant %s", got, want)
	}
}

func TestListenDeliversOnlySelectedEvents(t *testing.T) {
	m, h := newFakeHandler(t)
	var calls []string
	err := m.Listen(context.Background(), []string{models.EventNewOutput, models.EventSpentOutput}, func(err error, result string) {
		if err != nil {
			t.Errorf("unexpected callback error: %v", err)
		}
		calls = append(calls, result)
	})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	h.emit(models.Event{AccountIndex: 0, Event: models.WalletEvent{Type: models.EventNewOutput}})
	h.emit(models.Event{AccountIndex: 0, Event: models.WalletEvent{Type: models.EventTransactionProgress}})

	if len(calls) != 1 {
		t.Fatalf("expected one callback, got %d", len(calls))
	}
	evt, err := models.ParseEvent(calls[0])
	if err != nil || evt.Event.Type != models.EventNewOutput {
		t.Fatalf("unexpected event %q (%v)", calls[0], err)
	}
}

func TestListenRequiresCallback(t *testing.T) {
	m, _ := newFakeHandler(t)
	if err := m.Listen(context.Background(), nil, nil); !errors.Is(err, engine.ErrCallbackRequired) {
		t.Fatalf("expected ErrCallbackRequired, got %v", err)
	}
}

func TestSendMessagePropagatesEngineFailure(t *testing.T) {
	m, h := newFakeHandler(t)
	boom := errors.New("engine unavailable")
	h.sendErr = boom
	if _, err := m.SendMessage(context.Background(), models.Message{Cmd: models.CmdGetAccounts}); !errors.Is(err, boom) {
		t.Fatalf("expected engine failure, got %v", err)
	}
}

func TestDestroyReleasesHandleOnce(t *testing.T) {
	m, h := newFakeHandler(t)
	if err := m.Destroy(); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if err := m.Destroy(); err != nil {
		t.Fatalf("second Destroy failed: %v", err)
	}
	if h.closed != 1 {
		t.Fatalf("expected one Close, got %d", h.closed)
	}
	if _, err := m.SendMessage(context.Background(), models.Message{Cmd: models.CmdGetAccounts}); !errors.Is(err, engine.ErrHandleClosed) {
		t.Fatalf("expected ErrHandleClosed, got %v", err)
	}
	if err := m.Listen(context.Background(), nil, func(error, string) {}); !errors.Is(err, engine.ErrHandleClosed) {
		t.Fatalf("expected ErrHandleClosed, got %v", err)
	}
}

func TestSentEnvelopeDecodesToOriginal(t *testing.T) {
	m, h := newFakeHandler(t)
	msg := models.Message{
		Cmd:     models.CmdBackup,
		Payload: models.BackupPayload{Destination: "/tmp/backup.stronghold", Password: "pw"},
	}
	if _, err := m.SendMessage(context.Background(), msg); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	var decoded struct {
		Cmd     string               `json:"cmd"`
		Payload models.BackupPayload `json:"payload"`
	}
	if err := json.Unmarshal([]byte(h.lastSent(t)), &decoded); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if decoded.Cmd != msg.Cmd || decoded.Payload != msg.Payload {
		t.Fatalf("decoded %+v, want %+v", decoded, msg)
	}
}
