package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
	"github.com/arklim/wearable-stream-broker/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishSubscriptionUpdated logs broker.subscription.updated events.
func (p *StubPublisher) PublishSubscriptionUpdated(_ context.Context, event domain.SubscriptionUpdatedEvent) error {
	payload := map[string]any{
		"session_id":     event.SessionID,
		"user_id":        event.UserID,
		"package_name":   event.PackageName,
		"streams":        event.Streams,
		"rejected_count": event.RejectedCount,
		"updated_at":     event.UpdatedAt,
		"metadata":       event.Metadata,
	}
	p.logEvent("broker.subscription.updated", event.UserID, event.UpdatedAt, payload)
	return nil
}

// PublishSessionEnded logs broker.session.ended events.
func (p *StubPublisher) PublishSessionEnded(_ context.Context, event domain.SessionEndedEvent) error {
	payload := map[string]any{
		"session_id": event.SessionID,
		"user_id":    event.UserID,
		"reason":     event.Reason,
		"ended_at":   event.EndedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent("broker.session.ended", event.UserID, event.EndedAt, payload)
	return nil
}

// PublishStreamStateChanged logs broker.stream.state_changed events.
func (p *StubPublisher) PublishStreamStateChanged(_ context.Context, event domain.StreamStateChangedEvent) error {
	payload := map[string]any{
		"session_id":   event.SessionID,
		"user_id":      event.UserID,
		"package_name": event.PackageName,
		"stream_id":    event.StreamID,
		"status":       event.Status,
		"changed_at":   event.ChangedAt,
		"metadata":     event.Metadata,
	}
	p.logEvent("broker.stream.state_changed", event.UserID, event.ChangedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
