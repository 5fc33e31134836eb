package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"Murmur/internal/core/feeds"
)

// Publisher emits domain events on the platform bus. The event type is the
// NATS subject, so consumers subscribe by type.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher creates a NATS-backed event publisher.
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

var _ feeds.EventPublisher = (*Publisher)(nil)

// Publish marshals the event and fires it on the subject named by its
// type. Delivery is at-most-once; the feed core treats publication as best
// effort.
func (p *Publisher) Publish(ctx context.Context, event feeds.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.nc.Publish(event.Type, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}
