package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"wallet-bridge/go-backend/internal/engine"
	"wallet-bridge/go-backend/internal/metrics"
	"wallet-bridge/go-backend/pkg/models"
)

const listenerBuffer = 128

var ErrListenerLagged = errors.New("listener fell behind; events were dropped")

// eventHub fans serialized events out to listeners. Each listener has its own
// delivery goroutine, so callbacks of one listener never run concurrently.
type eventHub struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]*listener
	closed bool
	wg     sync.WaitGroup
}

type listener struct {
	filter   []string
	callback engine.Callback
	ch       chan string

	mu      sync.Mutex
	dropped int
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[int]*listener)}
}

func (h *eventHub) Listen(eventTypes []string, callback engine.Callback) error {
	if callback == nil {
		return engine.ErrCallbackRequired
	}
	for _, t := range eventTypes {
		if !models.IsKnownEventType(t) {
			return fmt.Errorf("%w: %s", ErrUnknownEventType, t)
		}
	}
	l := &listener{
		filter:   append([]string(nil), eventTypes...),
		callback: callback,
		ch:       make(chan string, listenerBuffer),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return engine.ErrHandleClosed
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = l
	metrics.ListenerAdded()
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		l.run()
	}()
	return nil
}

// Publish serializes evt once and queues it for every matching listener.
func (h *eventHub) Publish(evt models.Event) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	text := string(raw)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return engine.ErrHandleClosed
	}
	metrics.EventPublished(evt.Event.Type)
	for _, l := range h.subs {
		if !engine.MatchesEventType(l.filter, evt.Event.Type) {
			continue
		}
		select {
		case l.ch <- text:
		default:
			l.mu.Lock()
			l.dropped++
			l.mu.Unlock()
		}
	}
	return nil
}

func (h *eventHub) ListenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close stops every listener. Queued events are still delivered, but Close
// does not wait for that, so a callback may close the engine it listens on.
func (h *eventHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[int]*listener)
	h.mu.Unlock()
	metrics.ListenersRemoved(len(subs))
	for _, l := range subs {
		close(l.ch)
	}
}

func (l *listener) run() {
	for text := range l.ch {
		if dropped := l.takeDropped(); dropped > 0 {
			l.callback(fmt.Errorf("%w: %d", ErrListenerLagged, dropped), "")
		}
		l.callback(nil, text)
	}
}

func (l *listener) takeDropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.dropped
	l.dropped = 0
	return n
}
