// Package events publishes sync outcomes to interested subscribers,
// decoupled from any particular consumer.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// SyncEvent describes one applied reconciliation, published after the
// local mutation has committed.
type SyncEvent struct {
	EventType  string    `json:"event_type"`
	UserID     string    `json:"user_id"`
	ClerkID    string    `json:"clerk_id"`
	Action     string    `json:"action,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits sync events. Implementations must not block
// reconciliation on downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event SyncEvent) error
	Close()
}

// SubjectFor builds the NATS subject for an event type, e.g.
// "clerksync.user.created".
func SubjectFor(prefix, eventType string) string {
	return prefix + "." + eventType
}

// NATSPublisher publishes sync events to a NATS subject per event type.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

// NewNATSPublisher connects to NATS and returns a publisher using the
// given subject prefix.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("clerk-sync"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, event SyncEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	if err := p.conn.Publish(SubjectFor(p.prefix, event.EventType), data); err != nil {
		return fmt.Errorf("failed to publish sync event: %w", err)
	}

	return nil
}

func (p *NATSPublisher) Close() {
	p.conn.Close()
}

// NoopPublisher discards all events. Used when NATS is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event SyncEvent) error { return nil }

func (NoopPublisher) Close() {}
