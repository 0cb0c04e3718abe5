package port

import (
	"context"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
)

// LocationCache keeps the freshest location sample per session. Entries are
// overwritten on every new sample and removed only on session teardown.
type LocationCache interface {
	Get(ctx context.Context, sessionID string) (*domain.LocationSample, error)
	Set(ctx context.Context, sessionID string, sample domain.LocationSample) error
	Delete(ctx context.Context, sessionID string) error
}
