package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
	"github.com/arklim/wearable-stream-broker/internal/core/port"
	"github.com/arklim/wearable-stream-broker/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishSubscriptionUpdated publishes broker.subscription.updated events.
func (p *EventPublisher) PublishSubscriptionUpdated(ctx context.Context, event domain.SubscriptionUpdatedEvent) error {
	payload := struct {
		SessionID     string         `json:"session_id"`
		UserID        string         `json:"user_id"`
		PackageName   string         `json:"package_name"`
		Streams       []string       `json:"streams"`
		RejectedCount int            `json:"rejected_count"`
		UpdatedAt     time.Time      `json:"updated_at"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		SessionID:     event.SessionID,
		UserID:        event.UserID,
		PackageName:   event.PackageName,
		Streams:       event.Streams,
		RejectedCount: event.RejectedCount,
		UpdatedAt:     event.UpdatedAt.UTC(),
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, "broker.subscription.updated", event.UserID, event.UpdatedAt, payload)
}

// PublishSessionEnded publishes broker.session.ended events.
func (p *EventPublisher) PublishSessionEnded(ctx context.Context, event domain.SessionEndedEvent) error {
	payload := struct {
		SessionID string         `json:"session_id"`
		UserID    string         `json:"user_id"`
		Reason    string         `json:"reason"`
		EndedAt   time.Time      `json:"ended_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		SessionID: event.SessionID,
		UserID:    event.UserID,
		Reason:    event.Reason,
		EndedAt:   event.EndedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "broker.session.ended", event.UserID, event.EndedAt, payload)
}

// PublishStreamStateChanged publishes broker.stream.state_changed events.
func (p *EventPublisher) PublishStreamStateChanged(ctx context.Context, event domain.StreamStateChangedEvent) error {
	payload := struct {
		SessionID   string         `json:"session_id"`
		UserID      string         `json:"user_id"`
		PackageName string         `json:"package_name"`
		StreamID    string         `json:"stream_id"`
		Status      string         `json:"status"`
		ChangedAt   time.Time      `json:"changed_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		SessionID:   event.SessionID,
		UserID:      event.UserID,
		PackageName: event.PackageName,
		StreamID:    event.StreamID,
		Status:      event.Status,
		ChangedAt:   event.ChangedAt.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "broker.stream.state_changed", event.UserID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
