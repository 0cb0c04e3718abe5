package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
	"github.com/arklim/wearable-stream-broker/internal/core/port"
	"github.com/arklim/wearable-stream-broker/internal/repository"
)

// ErrDeviceUnavailable indicates the session has no open device connection
// for a command that needs one.
var ErrDeviceUnavailable = errors.New("device connection not open")

// LocationService arbitrates the shared location sensor: it derives one
// effective sampling tier per user from all apps' requests and commands the
// device only when that tier changes, and it serves on-demand polls from the
// cheapest available source. Continuous high-tier streaming dominates the
// device's power budget, so polls prefer an already-live stream, then a
// sufficiently fresh cached fix, and only then a hardware wake-up.
type LocationService struct {
	users  port.UserStore
	cache  port.LocationCache
	logger *zap.Logger
	now    func() time.Time
}

// NewLocationService constructs a LocationService.
func NewLocationService(users port.UserStore, cache port.LocationCache, logger *zap.Logger) *LocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationService{
		users:  users,
		cache:  cache,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *LocationService) WithClock(clock func() time.Time) *LocationService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// OnSubscriptionChange recomputes the user's effective rate from the full
// current record set and, only when the value changed, persists it and sends
// a set-tier command to the device if its connection is open. Recomputing
// from scratch rather than patching incrementally keeps the stored per-app
// rates and the derived value from drifting apart.
func (s *LocationService) OnSubscriptionChange(ctx context.Context, sess *Session) error {
	records, err := s.users.LocationSubscriptions(ctx, sess.UserID)
	if err != nil {
		return fmt.Errorf("load location subscriptions: %w", err)
	}

	effective := domain.DefaultRateTier
	for _, rate := range records {
		effective = domain.MaxTier(effective, rate)
	}

	previous, err := s.users.EffectiveRate(ctx, sess.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("load effective rate: %w", err)
	}
	if err == nil && previous == effective {
		return nil
	}

	if err := s.users.SetEffectiveRate(ctx, sess.UserID, effective); err != nil {
		return fmt.Errorf("persist effective rate: %w", err)
	}

	device := sess.Device()
	if device == nil || !device.IsOpen() {
		s.logger.Debug("effective tier changed with no device connection",
			zap.String("user_id", sess.UserID),
			zap.String("rate", string(effective)),
		)
		return nil
	}

	cmd := domain.SetLocationTierCommand{
		Type: domain.CommandSetLocationTier,
		Rate: effective,
	}
	if err := device.Send(cmd); err != nil {
		return fmt.Errorf("send set tier command: %w", err)
	}

	s.logger.Info("location tier command sent",
		zap.String("session_id", sess.ID),
		zap.String("user_id", sess.UserID),
		zap.String("rate", string(effective)),
	)
	return nil
}

// PollLocation answers an on-demand location request. The returned sample is
// nil when a hardware poll was dispatched instead; the device's eventual fix
// arrives as a location event tagged with the correlation id and is broadcast
// to the session's apps.
func (s *LocationService) PollLocation(ctx context.Context, sess *Session, accuracy domain.RateTier, correlationID string) (*domain.LocationSample, error) {
	effective, err := s.users.EffectiveRate(ctx, sess.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("effective rate lookup failed during poll",
			zap.String("user_id", sess.UserID),
			zap.Error(err),
		)
	}

	// A continuous high-accuracy stream is already running; its cache is as
	// fresh as a poll would be.
	if effective.AtLeast(domain.TierHigh) {
		sample, err := s.cache.Get(ctx, sess.ID)
		if err == nil && sample != nil {
			return sample, nil
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("session location cache read failed",
				zap.String("session_id", sess.ID),
				zap.Error(err),
			)
		}
	}

	maxAge := domain.MaxCacheAge(accuracy)
	last, err := s.users.LastLocation(ctx, sess.UserID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("last known location lookup failed",
			zap.String("user_id", sess.UserID),
			zap.Error(err),
		)
	}
	if last != nil && s.now().Sub(last.Timestamp) <= maxAge {
		return last, nil
	}

	device := sess.Device()
	if device == nil || !device.IsOpen() {
		return nil, ErrDeviceUnavailable
	}

	cmd := domain.RequestSingleLocationCommand{
		Type:          domain.CommandRequestSingleLocation,
		Accuracy:      accuracy,
		CorrelationID: correlationID,
	}
	if err := device.Send(cmd); err != nil {
		return nil, fmt.Errorf("send single location command: %w", err)
	}
	return nil, nil
}

// RecordLocation stores a device-reported sample in the session cache and as
// the user's last known location. Failures are logged; a broken cache must
// not stop the sample from reaching subscribers.
func (s *LocationService) RecordLocation(ctx context.Context, sess *Session, sample domain.LocationSample) {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.now()
	}

	if err := s.cache.Set(ctx, sess.ID, sample); err != nil {
		s.logger.Warn("session location cache write failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
	if err := s.users.SetLastLocation(ctx, sess.UserID, sample); err != nil {
		s.logger.Warn("persist last known location failed",
			zap.String("user_id", sess.UserID),
			zap.Error(err),
		)
	}
}

// ClearSessionCache drops the session-scoped location cache entry.
func (s *LocationService) ClearSessionCache(ctx context.Context, sessionID string) {
	if err := s.cache.Delete(ctx, sessionID); err != nil {
		s.logger.Warn("clear session location cache failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}
