package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
)

// DefaultPhotoTimeout bounds how long a photo request may stay pending.
const DefaultPhotoTimeout = 30 * time.Second

// PhotoService issues on-demand photo captures to the device and matches the
// device's responses back to the waiting app through the correlator.
type PhotoService struct {
	correlator *Correlator
	logger     *zap.Logger
	now        func() time.Time
}

// NewPhotoService constructs a PhotoService on top of a correlator instance.
func NewPhotoService(correlator *Correlator, logger *zap.Logger) *PhotoService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PhotoService{
		correlator: correlator,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// RequestPhoto sends a capture command to the device and blocks until the
// response arrives, the request times out, or the context is done.
func (s *PhotoService) RequestPhoto(ctx context.Context, sess *Session, packageName string, saveToGallery bool) (*domain.PhotoResult, error) {
	device := sess.Device()
	if device == nil || !device.IsOpen() {
		return nil, ErrDeviceUnavailable
	}

	requestID := uuid.NewString()
	done := s.correlator.Register(requestID, "photo", sess.ID)

	cmd := domain.PhotoRequestCommand{
		Type:          domain.CommandPhotoRequest,
		RequestID:     requestID,
		PackageName:   packageName,
		SaveToGallery: saveToGallery,
		Timestamp:     s.now(),
	}
	if err := device.Send(cmd); err != nil {
		s.correlator.Cancel(requestID, err)
		<-done
		return nil, fmt.Errorf("send photo request: %w", err)
	}

	s.logger.Debug("photo request dispatched",
		zap.String("session_id", sess.ID),
		zap.String("package_name", packageName),
		zap.String("request_id", requestID),
	)

	select {
	case outcome := <-done:
		if outcome.Err != nil {
			return nil, outcome.Err
		}
		result, ok := outcome.Value.(domain.PhotoResult)
		if !ok {
			return nil, fmt.Errorf("unexpected photo resolution payload %T", outcome.Value)
		}
		return &result, nil
	case <-ctx.Done():
		s.correlator.Cancel(requestID, ctx.Err())
		return nil, ctx.Err()
	}
}

// HandlePhotoResponse resolves the pending request named by the response.
// Late or duplicate responses are no-ops.
func (s *PhotoService) HandlePhotoResponse(result domain.PhotoResult) bool {
	return s.correlator.Resolve(result.RequestID, result)
}
