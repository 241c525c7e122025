package api

import (
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer is the per-subscriber channel capacity. A subscriber that
// falls further behind than this loses updates rather than stalling writes.
const subscriberBuffer = 16

// Update is the payload broadcast to live subscribers after every accepted
// action.
type Update struct {
	LaneID string `json:"lane_id"`
	Action string `json:"action"`
}

// Hub fans accepted-action updates out to live subscribers. Publishing is
// best-effort and never blocks: the write path must not depend on any
// subscriber keeping up, or existing at all.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]chan Update
	closed      bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]chan Update)}
}

// Subscribe registers a new subscriber and returns its id and channel. The
// channel is closed on Unsubscribe or hub Close.
func (h *Hub) Subscribe() (string, <-chan Update) {
	id := uuid.NewString()
	ch := make(chan Update, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return id, ch
	}
	h.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.subscribers[id]; ok {
		close(ch)
		delete(h.subscribers, id)
	}
}

// Publish delivers the update to every subscriber that has buffer space and
// drops it for the rest. Per-lane ordering follows write order because the
// persistence path publishes synchronously after each commit.
func (h *Hub) Publish(u Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subscribers {
		select {
		case ch <- u:
		default:
			// Subscriber is full; drop rather than block the write path.
		}
	}
}

// Close closes every subscriber channel and rejects future subscriptions.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, ch := range h.subscribers {
		close(ch)
		delete(h.subscribers, id)
	}
}
