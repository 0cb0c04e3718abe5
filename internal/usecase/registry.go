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

var (
	// ErrSessionNotFound indicates no live session matches the identifier.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionClosed is the cancellation reason used for pending requests
	// when their session is torn down.
	ErrSessionClosed = errors.New("session closed")
)

// SessionRegistry resolves users and session ids to live sessions and owns
// the teardown cascade: ending a session must leave zero residual state
// referencing it anywhere in the broker.
type SessionRegistry struct {
	subs       *SubscriptionService
	streams    *StreamService
	location   *LocationService
	correlator *Correlator
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time

	mu     sync.RWMutex
	byID   map[string]*Session
	byUser map[string]*Session
}

// NewSessionRegistry constructs a SessionRegistry.
func NewSessionRegistry(subs *SubscriptionService, streams *StreamService, location *LocationService, correlator *Correlator, events port.EventPublisher, logger *zap.Logger) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry{
		subs:       subs,
		streams:    streams,
		location:   location,
		correlator: correlator,
		events:     events,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		byID:       make(map[string]*Session),
		byUser:     make(map[string]*Session),
	}
}

// StartSession creates a session for the user, replacing and tearing down any
// previous one (a user has at most one live pairing).
func (r *SessionRegistry) StartSession(ctx context.Context, userID string) *Session {
	r.mu.Lock()
	previous := r.byUser[userID]
	r.mu.Unlock()
	if previous != nil {
		r.EndSession(ctx, previous.ID, "replaced by new connection")
	}

	sess := NewSession(uuid.NewString(), userID, r.now())

	r.mu.Lock()
	r.byID[sess.ID] = sess
	r.byUser[userID] = sess
	r.mu.Unlock()

	r.logger.Info("session started",
		zap.String("session_id", sess.ID),
		zap.String("user_id", userID),
	)
	return sess
}

// Get resolves a session by id.
func (r *SessionRegistry) Get(sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byID[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// GetByUser resolves a user's live session.
func (r *SessionRegistry) GetByUser(userID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byUser[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Sessions returns a snapshot of all live sessions.
func (r *SessionRegistry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.byID))
	for _, sess := range r.byID {
		sessions = append(sessions, sess)
	}
	return sessions
}

// EndSession removes the session and cascades: subscriptions and history are
// dropped, pending correlated requests are cancelled with a session-closed
// reason, stream state and the location cache are cleared, and connections
// are closed. Idempotent: a second call for the same id is a no-op.
func (r *SessionRegistry) EndSession(ctx context.Context, sessionID, reason string) {
	r.mu.Lock()
	sess, ok := r.byID[sessionID]
	if ok {
		delete(r.byID, sessionID)
		if r.byUser[sess.UserID] == sess {
			delete(r.byUser, sess.UserID)
		}
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.subs.TeardownSession(sessionID)
	cancelled := r.correlator.CancelSession(sessionID, ErrSessionClosed)
	r.streams.TeardownSession(sessionID)
	r.location.ClearSessionCache(ctx, sessionID)

	for pkg, conn := range sess.AppConnections() {
		if err := conn.Close(); err != nil {
			r.logger.Debug("close app connection failed",
				zap.String("session_id", sessionID),
				zap.String("package_name", pkg),
				zap.Error(err),
			)
		}
	}
	if device := sess.Device(); device != nil {
		_ = device.Close()
	}

	r.publishEnded(ctx, sess, reason)

	r.logger.Info("session ended",
		zap.String("session_id", sessionID),
		zap.String("user_id", sess.UserID),
		zap.String("reason", reason),
		zap.Int("requests_cancelled", cancelled),
	)
}

// Shutdown tears down every live session, used on process exit.
func (r *SessionRegistry) Shutdown(ctx context.Context, reason string) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.EndSession(ctx, id, reason)
	}
}

func (r *SessionRegistry) publishEnded(ctx context.Context, sess *Session, reason string) {
	if r.events == nil {
		return
	}

	event := domain.SessionEndedEvent{
		EventID:   uuid.NewString(),
		SessionID: sess.ID,
		UserID:    sess.UserID,
		Reason:    reason,
		EndedAt:   r.now(),
	}
	if err := r.events.PublishSessionEnded(ctx, event); err != nil {
		r.logger.Warn("publish session ended failed",
			zap.String("session_id", sess.ID),
			zap.Error(err),
		)
	}
}
