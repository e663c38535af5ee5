package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"wallet-bridge/go-backend/internal/engine"
	"wallet-bridge/go-backend/pkg/models"
)

// fakeHandle echoes messages and lets tests push events.
type fakeHandle struct {
	mu        sync.Mutex
	received  []string
	callbacks []engine.Callback
	sendErr   error
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{}
}

func (f *fakeHandle) SendMessage(_ context.Context, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.received = append(f.received, message)
	return `{"type":"Ok"}`, nil
}

func (f *fakeHandle) Listen(_ context.Context, _ []string, cb engine.Callback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, cb)
	return nil
}

func (f *fakeHandle) Close() error { return nil }

func (f *fakeHandle) emit(t *testing.T, evt models.Event) {
	t.Helper()
	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal event failed: %v", err)
	}
	f.mu.Lock()
	callbacks := append([]engine.Callback(nil), f.callbacks...)
	f.mu.Unlock()
	for _, cb := range callbacks {
		cb(nil, string(raw))
	}
}

func newTestServer(t *testing.T, cfg Config, handle engine.Handle) *Server {
	t.Helper()
	s, err := NewServer(cfg, handle)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(s.events.Close)
	return s
}

func doRPC(t *testing.T, s *Server, body string) (int, rpcResponse, json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest("POST", "/rpc", strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var raw struct {
		rpcResponse
		Result json.RawMessage `json:"result"`
	}
	if rec.Code == http.StatusOK || rec.Code == http.StatusTooManyRequests {
		if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
			t.Fatalf("decode rpc response failed: %v (%s)", err, rec.Body.String())
		}
	}
	return rec.Code, raw.rpcResponse, raw.Result
}

func TestSendMessageForwardsTextUnchanged(t *testing.T) {
	handle := newFakeHandle()
	s := newTestServer(t, Config{}, handle)
	message := `{"cmd":"GetAccounts"}`
	params, _ := json.Marshal(sendMessageParams{Message: message})
	code, resp, result := doRPC(t, s, `{"jsonrpc":"2.0","id":7,"method":"send_message","params":`+string(params)+`}`)
	if code != http.StatusOK || resp.Error != nil {
		t.Fatalf("unexpected response %d %+v", code, resp.Error)
	}
	var out sendMessageResult
	if err := json.Unmarshal(result, &out); err != nil {
		t.Fatalf("decode result failed: %v", err)
	}
	if out.Response != `{"type":"Ok"}` {
		t.Fatalf("unexpected engine response %q", out.Response)
	}
	if len(handle.received) != 1 || handle.received[0] != message {
		t.Fatalf("engine received %v", handle.received)
	}
}

func TestSendMessageErrors(t *testing.T) {
	handle := newFakeHandle()
	s := newTestServer(t, Config{}, handle)

	cases := []struct {
		body string
		code int
	}{
		{`{"jsonrpc":"2.0","id":1,"method":"send_message","params":{}}`, codeInvalidParams},
		{`{"jsonrpc":"2.0","id":1,"method":"send_message","params":{"message":"x","envelope_version":2}}`, codeEnvelopeUnknown},
		{`{"jsonrpc":"2.0","id":1,"method":"send_message","params":{"message":"x","envelope_version":0}}`, codeEnvelopeRetired},
		{`{"jsonrpc":"2.0","id":1,"method":"nope"}`, codeMethodNotFound},
		{`{"jsonrpc":"1.0","id":1,"method":"health_check"}`, codeInvalidRequest},
		{`{"jsonrpc":`, codeParseError},
	}
	for _, tc := range cases {
		_, resp, _ := doRPC(t, s, tc.body)
		if resp.Error == nil || resp.Error.Code != tc.code {
			t.Fatalf("%s: expected code %d, got %+v", tc.body, tc.code, resp.Error)
		}
	}

	handle.sendErr = engine.ErrHandleClosed
	_, resp, _ := doRPC(t, s, `{"jsonrpc":"2.0","id":1,"method":"send_message","params":{"message":"{}"}}`)
	if resp.Error == nil || resp.Error.Code != codeHandleClosed {
		t.Fatalf("expected handle closed error, got %+v", resp.Error)
	}
	handle.sendErr = errors.New("boom")
	_, resp, _ = doRPC(t, s, `{"jsonrpc":"2.0","id":1,"method":"send_message","params":{"message":"{}"}}`)
	if resp.Error == nil || resp.Error.Code != codeEngineError || resp.Error.Message != "boom" {
		t.Fatalf("expected engine error, got %+v", resp.Error)
	}
}

func TestRPCRateLimit(t *testing.T) {
	s := newTestServer(t, Config{RateLimit: RateLimitConfig{Enabled: true, RPS: 1, Burst: 1}}, newFakeHandle())
	body := `{"jsonrpc":"2.0","id":1,"method":"health_check"}`
	if code, _, _ := doRPC(t, s, body); code != http.StatusOK {
		t.Fatalf("first request must pass, got %d", code)
	}
	code, resp, _ := doRPC(t, s, body)
	if code != http.StatusTooManyRequests || resp.Error == nil || resp.Error.Code != codeRateLimited {
		t.Fatalf("expected rate limit, got %d %+v", code, resp.Error)
	}
}

func TestRPCVersionInfo(t *testing.T) {
	s := newTestServer(t, Config{}, newFakeHandle())
	_, resp, result := doRPC(t, s, `{"jsonrpc":"2.0","id":1,"method":"rpc_version"}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error %+v", resp.Error)
	}
	var info versionInfo
	if err := json.Unmarshal(result, &info); err != nil {
		t.Fatalf("decode version info failed: %v", err)
	}
	if info.Envelope != envelopeVersion || info.Notification != notificationVersion || info.NotificationMethod != eventMethod {
		t.Fatalf("unexpected version info %+v", info)
	}
	if info.StreamHeadHeader != streamHeadHeader || len(info.Methods) != 3 {
		t.Fatalf("unexpected stream details %+v", info)
	}
}

func TestStreamDeliversFilteredEvents(t *testing.T) {
	handle := newFakeHandle()
	s := newTestServer(t, Config{}, handle)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/rpc/stream?events=NewOutput", nil)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	handle.emit(t, models.Event{AccountIndex: 1, Event: models.WalletEvent{Type: models.EventSpentOutput}})
	handle.emit(t, models.Event{AccountIndex: 2, Event: models.WalletEvent{Type: models.EventNewOutput}})

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before the event arrived")
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var note struct {
				Method string `json:"method"`
				Params struct {
					Payload string `json:"payload"`
				} `json:"params"`
			}
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &note); err != nil {
				t.Fatalf("decode notification failed: %v", err)
			}
			evt, err := models.ParseEvent(note.Params.Payload)
			if err != nil {
				t.Fatalf("ParseEvent failed: %v", err)
			}
			if note.Method != eventMethod || evt.Event.Type != models.EventNewOutput || evt.AccountIndex != 2 {
				t.Fatalf("unexpected notification %s", line)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for the event")
		}
	}
}

func TestStreamRejectsUnknownEventType(t *testing.T) {
	s := newTestServer(t, Config{}, newFakeHandle())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/rpc/stream?events=Bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestNotificationHubReplaysFromCursor(t *testing.T) {
	hub := newNotificationHub(2)
	hub.Publish(models.EventNewOutput, "a")
	hub.Publish(models.EventSpentOutput, "b")
	hub.Publish(models.EventNewOutput, "c")

	sub := hub.Subscribe(0, nil)
	defer sub.Cancel()
	if len(sub.Replay) != 2 || sub.Replay[0].Payload != "b" || sub.Replay[1].Payload != "c" {
		t.Fatalf("unexpected replay %+v", sub.Replay)
	}
	if sub.Head != 3 {
		t.Fatalf("expected head 3, got %d", sub.Head)
	}
	filtered := hub.Subscribe(0, []string{models.EventNewOutput})
	defer filtered.Cancel()
	if len(filtered.Replay) != 1 || filtered.Replay[0].Seq != 3 {
		t.Fatalf("unexpected filtered replay %+v", filtered.Replay)
	}
}

func TestNotificationHubLiveSubscriptionSkipsHistory(t *testing.T) {
	hub := newNotificationHub(8)
	hub.Publish(models.EventNewOutput, "before")

	sub := hub.Subscribe(-1, nil)
	defer sub.Cancel()
	if len(sub.Replay) != 0 {
		t.Fatalf("live subscription replayed %+v", sub.Replay)
	}
	hub.Publish(models.EventNewOutput, "after")
	select {
	case evt := <-sub.Events:
		if evt.Payload != "after" || evt.Seq != 2 {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("live event was not delivered")
	}
}

func TestStreamWithoutCursorStartsAtHead(t *testing.T) {
	handle := newFakeHandle()
	s := newTestServer(t, Config{}, handle)
	handle.emit(t, models.Event{AccountIndex: 0, Event: models.WalletEvent{Type: models.EventNewOutput}})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/rpc/stream", nil)
	if err != nil {
		t.Fatalf("build request failed: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream failed: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get(streamHeadHeader); got != "1" {
		t.Fatalf("expected stream head 1, got %q", got)
	}

	handle.emit(t, models.Event{AccountIndex: 5, Event: models.WalletEvent{Type: models.EventSpentOutput}})
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		if !strings.Contains(line, `\"accountIndex\":5`) {
			t.Fatalf("expected only the event published after connecting, got %s", line)
		}
		return
	}
	t.Fatal("stream ended before the live event arrived")
}
