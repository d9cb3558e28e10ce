package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/layer-3/lens-onboard/core"
	"github.com/layer-3/lens-onboard/ports"
)

// DefaultTopic carries session lifecycle events
const DefaultTopic = "lens.session"

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

// NewWatermillPublisher creates a new Watermill publisher. An empty topic selects DefaultTopic.
func NewWatermillPublisher(publisher message.Publisher, topic string) ports.EventPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{
		publisher: publisher,
		topic:     topic,
	}
}

// PublishSessionEvent publishes a session event as JSON
func (p *WatermillPublisher) PublishSessionEvent(ctx context.Context, event core.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", string(event.Type))
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Nop discards events
type Nop struct{}

func (Nop) PublishSessionEvent(context.Context, core.SessionEvent) error { return nil }
