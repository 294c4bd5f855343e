package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishUsageEvent publishes a gate decision for async persistence.
func (p *Publisher) PublishUsageEvent(ctx context.Context, event UsageEvent) error {
	return p.publish(ctx, SubjectUsageEvent, event)
}

// PublishPaymentEvent publishes a received payment notification.
func (p *Publisher) PublishPaymentEvent(ctx context.Context, event PaymentEvent) error {
	return p.publish(ctx, SubjectPaymentEvent, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
