package port

import (
	"context"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
)

// EventPublisher publishes broker audit events to the message bus.
type EventPublisher interface {
	PublishSubscriptionUpdated(ctx context.Context, event domain.SubscriptionUpdatedEvent) error
	PublishSessionEnded(ctx context.Context, event domain.SessionEndedEvent) error
	PublishStreamStateChanged(ctx context.Context, event domain.StreamStateChangedEvent) error
}
