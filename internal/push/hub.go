// Package push fans row-change notifications out to live-view
// subscribers. The store publishes a small (kind, call id) event after
// every committed mutation; subscribers re-read the snapshot they care
// about.
package push

import (
	"sync"
)

// EventKind distinguishes what changed.
type EventKind string

// Row-change kinds.
const (
	KindSession EventKind = "session"
	KindChunk   EventKind = "chunk"
)

// Event is one row-change notification.
type Event struct {
	Kind   EventKind
	CallID string
}

// Notifier is the publishing side of the hub. The store holds this
// interface so it never depends on the delivery mechanism.
type Notifier interface {
	Notify(ev Event)
}

// NopNotifier discards all events. Useful in tests and tools.
type NopNotifier struct{}

func (NopNotifier) Notify(Event) {}

// subscriberBuffer bounds each subscriber channel. A subscriber that
// falls behind loses intermediate events, not the stream: the consumer
// re-reads a full snapshot per event, so only the latest one matters.
const subscriberBuffer = 8

// Hub is an in-process fan-out of row-change events keyed by call id.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers interest in one call's changes. The returned
// cancel function must be called to release the subscription.
func (h *Hub) Subscribe(callID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subs[callID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subs[callID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[callID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, callID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Notify delivers an event to every subscriber of its call id without
// blocking. Slow subscribers drop the event.
func (h *Hub) Notify(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[ev.CallID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports the active subscriptions for a call.
func (h *Hub) SubscriberCount(callID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[callID])
}
