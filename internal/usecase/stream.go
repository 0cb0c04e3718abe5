package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
	"github.com/arklim/wearable-stream-broker/internal/core/port"
)

// ErrStreamAlreadyActive indicates the app already has a live outbound
// stream; at most one is allowed per app at a time.
var ErrStreamAlreadyActive = errors.New("outbound stream already active for app")

type streamKey struct {
	sessionID   string
	packageName string
}

type activeStream struct {
	streamID string
	rtmpURL  string
}

// StreamService manages outbound media streaming: start and stop are
// fire-and-forget device commands, while the device's status messages
// replace the per-session snapshot wholesale and terminal statuses clear the
// active flag and the remembered endpoint.
type StreamService struct {
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	active    map[streamKey]*activeStream
	snapshots map[string]domain.StreamStatus
}

// NewStreamService constructs a StreamService.
func NewStreamService(events port.EventPublisher, logger *zap.Logger) *StreamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamService{
		events:    events,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		active:    make(map[streamKey]*activeStream),
		snapshots: make(map[string]domain.StreamStatus),
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *StreamService) WithClock(clock func() time.Time) *StreamService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// StartStream marks the app's stream active and commands the device to start
// publishing. The already-active check happens before any network send.
func (s *StreamService) StartStream(ctx context.Context, sess *Session, packageName, rtmpURL string, video, audio map[string]any) (string, error) {
	key := streamKey{sessionID: sess.ID, packageName: packageName}

	s.mu.Lock()
	if s.active[key] != nil {
		s.mu.Unlock()
		return "", ErrStreamAlreadyActive
	}
	streamID := uuid.NewString()
	s.active[key] = &activeStream{streamID: streamID, rtmpURL: rtmpURL}
	s.snapshots[sess.ID] = domain.StreamStatus{
		StreamID:    streamID,
		PackageName: packageName,
		Status:      domain.StreamStatusInitializing,
		Timestamp:   s.now(),
	}
	s.mu.Unlock()

	device := sess.Device()
	if device == nil || !device.IsOpen() {
		s.clearActive(key)
		return "", ErrDeviceUnavailable
	}

	cmd := domain.StartRtmpStreamCommand{
		Type:        domain.CommandStartRtmpStream,
		StreamID:    streamID,
		PackageName: packageName,
		RtmpURL:     rtmpURL,
		Video:       video,
		Audio:       audio,
		Timestamp:   s.now(),
	}
	if err := device.Send(cmd); err != nil {
		s.clearActive(key)
		return "", err
	}

	s.publishStateChanged(ctx, sess, packageName, streamID, domain.StreamStatusInitializing)
	return streamID, nil
}

// StopStream commands the device to stop the app's stream. Stopping when
// nothing is active is a no-op, not an error.
func (s *StreamService) StopStream(ctx context.Context, sess *Session, packageName string) error {
	key := streamKey{sessionID: sess.ID, packageName: packageName}

	s.mu.Lock()
	current := s.active[key]
	s.mu.Unlock()
	if current == nil {
		return nil
	}

	device := sess.Device()
	if device == nil || !device.IsOpen() {
		// Device already gone: settle the state locally.
		s.clearActive(key)
		s.mu.Lock()
		s.snapshots[sess.ID] = domain.StreamStatus{
			StreamID:    current.streamID,
			PackageName: packageName,
			Status:      domain.StreamStatusStopped,
			Timestamp:   s.now(),
		}
		s.mu.Unlock()
		s.publishStateChanged(ctx, sess, packageName, current.streamID, domain.StreamStatusStopped)
		return nil
	}

	cmd := domain.StopRtmpStreamCommand{
		Type:        domain.CommandStopRtmpStream,
		StreamID:    current.streamID,
		PackageName: packageName,
		Timestamp:   s.now(),
	}
	return device.Send(cmd)
}

// HandleStreamStatus records a device-reported status, replacing the
// session's snapshot wholesale. Terminal statuses release the active slot.
// The normalized status is returned for fan-out to subscribed apps.
func (s *StreamService) HandleStreamStatus(ctx context.Context, sess *Session, status domain.StreamStatus) domain.StreamStatus {
	if status.Timestamp.IsZero() {
		status.Timestamp = s.now()
	}

	s.mu.Lock()
	s.snapshots[sess.ID] = status
	if status.Terminal() {
		for key, stream := range s.active {
			if key.sessionID != sess.ID {
				continue
			}
			if status.StreamID != "" && stream.streamID != status.StreamID {
				continue
			}
			if status.PackageName != "" && key.packageName != status.PackageName {
				continue
			}
			delete(s.active, key)
		}
	}
	s.mu.Unlock()

	s.publishStateChanged(ctx, sess, status.PackageName, status.StreamID, status.Status)
	return status
}

// Snapshot returns the session's current stream status, if any.
func (s *StreamService) Snapshot(sessionID string) (domain.StreamStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.snapshots[sessionID]
	return status, ok
}

// ActiveStreamID returns the app's live stream id for the session, if any.
func (s *StreamService) ActiveStreamID(sessionID, packageName string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stream := s.active[streamKey{sessionID: sessionID, packageName: packageName}]
	if stream == nil {
		return "", false
	}
	return stream.streamID, true
}

// TeardownSession clears stream state scoped to the session. Idempotent.
func (s *StreamService) TeardownSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.active {
		if key.sessionID == sessionID {
			delete(s.active, key)
		}
	}
	delete(s.snapshots, sessionID)
}

func (s *StreamService) clearActive(key streamKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, key)
}

func (s *StreamService) publishStateChanged(ctx context.Context, sess *Session, packageName, streamID, status string) {
	if s.events == nil {
		return
	}

	event := domain.StreamStateChangedEvent{
		EventID:     uuid.NewString(),
		SessionID:   sess.ID,
		UserID:      sess.UserID,
		PackageName: packageName,
		StreamID:    streamID,
		Status:      status,
		ChangedAt:   s.now(),
	}
	if err := s.events.PublishStreamStateChanged(ctx, event); err != nil {
		s.logger.Warn("publish stream state changed failed",
			zap.String("session_id", sess.ID),
			zap.String("stream_id", streamID),
			zap.Error(err),
		)
	}
}
