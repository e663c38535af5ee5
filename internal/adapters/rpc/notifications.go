package rpc

import (
	"sync"
	"time"

	"wallet-bridge/go-backend/internal/engine"
)

const (
	eventMethod         = "wallet_event"
	defaultHistoryLimit = 256
	subscriberBuffer    = 128
)

type notificationEvent struct {
	Seq       int64
	Type      string
	Payload   string
	Timestamp time.Time
}

type notificationSub struct {
	filter []string
	ch     chan notificationEvent
}

// notificationHub numbers engine events and keeps a bounded history so a
// reconnecting stream can resume from its last seen sequence.
type notificationHub struct {
	mu      sync.Mutex
	nextSeq int64
	limit   int
	history []notificationEvent
	subs    map[int]notificationSub
	nextSub int
	closed  bool
}

func newNotificationHub(limit int) *notificationHub {
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	return &notificationHub{
		limit: limit,
		subs:  make(map[int]notificationSub),
	}
}

func (h *notificationHub) Publish(eventType, payload string) notificationEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextSeq++
	event := notificationEvent{
		Seq:       h.nextSeq,
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
	h.history = append(h.history, event)
	if len(h.history) > h.limit {
		h.history = append([]notificationEvent(nil), h.history[len(h.history)-h.limit:]...)
	}
	if h.closed {
		return event
	}
	for id, sub := range h.subs {
		if !engine.MatchesEventType(sub.filter, eventType) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// A stream that cannot keep up is closed; the client resumes with its cursor.
			close(sub.ch)
			delete(h.subs, id)
		}
	}
	return event
}

// hubSubscription is one stream's view of the hub. Head is the last sequence
// published before the subscription was taken.
type hubSubscription struct {
	Replay []notificationEvent
	Events <-chan notificationEvent
	Head   int64
	Cancel func()
}

// Subscribe returns the events after fromSeq plus a live channel. A negative
// fromSeq subscribes from the current head without replay.
func (h *notificationHub) Subscribe(fromSeq int64, filter []string) hubSubscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	if fromSeq < 0 {
		fromSeq = h.nextSeq
	}
	replay := make([]notificationEvent, 0)
	for _, event := range h.history {
		if event.Seq > fromSeq && engine.MatchesEventType(filter, event.Type) {
			replay = append(replay, event)
		}
	}

	ch := make(chan notificationEvent, subscriberBuffer)
	if h.closed {
		close(ch)
		return hubSubscription{Replay: replay, Events: ch, Head: h.nextSeq, Cancel: func() {}}
	}
	id := h.nextSub
	h.nextSub++
	h.subs[id] = notificationSub{filter: filter, ch: ch}

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if sub, ok := h.subs[id]; ok {
			close(sub.ch)
			delete(h.subs, id)
		}
	}
	return hubSubscription{Replay: replay, Events: ch, Head: h.nextSeq, Cancel: cancel}
}

func (h *notificationHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}
