package port

import (
	"context"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
)

// UserStore persists per-user location state shared across sessions: the
// per-app rate subscriptions, the derived effective rate, and the last known
// position fix.
type UserStore interface {
	LocationSubscriptions(ctx context.Context, userID string) (map[string]domain.RateTier, error)
	SetLocationSubscription(ctx context.Context, userID, packageName string, rate domain.RateTier) error
	RemoveLocationSubscription(ctx context.Context, userID, packageName string) error

	EffectiveRate(ctx context.Context, userID string) (domain.RateTier, error)
	SetEffectiveRate(ctx context.Context, userID string, rate domain.RateTier) error

	LastLocation(ctx context.Context, userID string) (*domain.LocationSample, error)
	SetLastLocation(ctx context.Context, userID string, sample domain.LocationSample) error
}
