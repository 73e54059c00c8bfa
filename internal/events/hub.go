// Package events broadcasts gateway lifecycle messages to connected
// subscribers.
package events

import (
	"sync"

	"github.com/google/uuid"
)

// Message types emitted by the gateway.
const (
	// TypeUpdated is broadcast after a skip-waiting activation completes.
	TypeUpdated = "SW_UPDATED"
	// TypeSyncComplete is broadcast after a background-sync batch.
	TypeSyncComplete = "SYNC_COMPLETE"
)

// Message is one broadcast event.
type Message struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// subscriberBuffer bounds each subscriber channel. A slow subscriber drops
// messages rather than blocking the broadcaster.
const subscriberBuffer = 16

// Hub fans messages out to subscribers. Safe for concurrent use.
type Hub struct {
	mu     sync.Mutex
	subs   map[chan Message]struct{}
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan Message]struct{})}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called when the subscriber goes away; it closes the channel.
func (h *Hub) Subscribe() (<-chan Message, func()) {
	ch := make(chan Message, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Broadcast delivers a message to every subscriber. Delivery is
// best-effort: a subscriber with a full buffer misses the message.
func (h *Hub) Broadcast(msgType string, payload map[string]any) {
	msg := Message{
		ID:      uuid.NewString(),
		Type:    msgType,
		Payload: payload,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Close shuts the hub down and closes all subscriber channels.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}
