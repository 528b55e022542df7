// Package registry fans notification events out to live subscribers. The
// decision path only sees the Registry interface; deployments pick the
// in-process Hub or the NATS bridge.
package registry

import (
	"context"
	"sync"
	"time"
)

// Event is one live notification delivery.
type Event struct {
	NotificationID  string    `json:"notification_id"`
	RecipientUserID string    `json:"recipient_user_id"`
	Topic           string    `json:"topic"`
	Title           string    `json:"title"`
	Body            string    `json:"body"`
	CreatedAt       time.Time `json:"created_at"`
}

// Registry delivers events to per-user subscribers.
type Registry interface {
	// Subscribe returns a channel of events for one user and a cancel
	// function that releases the subscription.
	Subscribe(userID string) (<-chan Event, func())
	Publish(ctx context.Context, event Event) error
}

const subscriberBuffer = 16

// Hub is a single-process Registry backed by per-user channel sets.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan Event]struct{}
}

// NewHub builds an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a delivery channel for userID.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	set, ok := h.subscribers[userID]
	if !ok {
		set = make(map[chan Event]struct{})
		h.subscribers[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subscribers[userID]; ok {
				delete(set, ch)
				if len(set) == 0 {
					delete(h.subscribers, userID)
				}
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to every live subscriber of its recipient. A
// subscriber with a full buffer misses the event rather than blocking the
// publisher.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subscribers[event.RecipientUserID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}
