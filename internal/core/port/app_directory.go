package port

import (
	"context"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
)

// AppDirectory resolves registered apps and their permission grants.
type AppDirectory interface {
	GetApp(ctx context.Context, packageName string) (*domain.App, error)
}
