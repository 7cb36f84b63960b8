package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/splitstack/support-assistant/internal/model"
)

const (
	// StreamName is the name of the support events stream.
	StreamName = "SUPPORT_EVENTS"

	// SubjectPrefix is the prefix for all support event subjects.
	SubjectPrefix = "support"
)

// EventPublisher publishes support events to JetStream. The notification
// subsystem and operational dashboards consume them; the engine only
// publishes.
type EventPublisher struct {
	client *Client
}

// NewEventPublisher creates a publisher over an established client.
func NewEventPublisher(client *Client) *EventPublisher {
	return &EventPublisher{client: client}
}

// EnsureStream ensures the support events stream exists.
func (p *EventPublisher) EnsureStream(ctx context.Context) error {
	js := p.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Support conversation events (escalations, synthesis errors)",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for an event.
func EventSubject(eventType model.SupportEventType, conversationID string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, eventType, conversationID)
}

// Publish publishes a support event.
func (p *EventPublisher) Publish(ctx context.Context, event *model.SupportEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := EventSubject(event.Type, event.ConversationID)
	if _, err := p.client.JetStream().Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
