package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/nats-io/nats.go"
)

const defaultSubjectPrefix = "veravid.notifications"

// NATSBridge is a Registry backed by a NATS connection, for deployments
// where the API and the decision workers run in separate processes. Events
// travel on one subject per recipient.
type NATSBridge struct {
	conn          *nats.Conn
	subjectPrefix string
	logger        *log.Logger
}

// NewNATSBridge wraps an established NATS connection.
func NewNATSBridge(conn *nats.Conn, subjectPrefix string, logger *log.Logger) *NATSBridge {
	if subjectPrefix == "" {
		subjectPrefix = defaultSubjectPrefix
	}
	if logger == nil {
		logger = log.Default()
	}
	return &NATSBridge{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		logger:        logger,
	}
}

func (b *NATSBridge) subject(userID string) string {
	return fmt.Sprintf("%s.%s", b.subjectPrefix, userID)
}

// Publish sends the event on the recipient's subject.
func (b *NATSBridge) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.conn.Publish(b.subject(event.RecipientUserID), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// natsFeed guards the bridge channel. Unsubscribe does not wait for an
// in-flight callback, so deliver and close must agree under one lock before
// the channel can be closed.
type natsFeed struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (f *natsFeed) deliver(event Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	select {
	case f.ch <- event:
	default:
	}
}

func (f *natsFeed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
}

// Subscribe bridges the recipient's subject onto a channel. Malformed
// payloads are logged and skipped.
func (b *NATSBridge) Subscribe(userID string) (<-chan Event, func()) {
	feed := &natsFeed{ch: make(chan Event, subscriberBuffer)}

	sub, err := b.conn.Subscribe(b.subject(userID), func(msg *nats.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			b.logger.Printf("notifications: decode event: %v", err)
			return
		}
		feed.deliver(event)
	})
	if err != nil {
		b.logger.Printf("notifications: subscribe %s: %v", b.subject(userID), err)
		feed.close()
		return feed.ch, func() {}
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			if err := sub.Unsubscribe(); err != nil {
				b.logger.Printf("notifications: unsubscribe %s: %v", b.subject(userID), err)
			}
			feed.close()
		})
	}
	return feed.ch, cancel
}
