package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
	"github.com/arklim/wearable-stream-broker/internal/core/port"
	"github.com/arklim/wearable-stream-broker/internal/repository"
)

// ErrUnknownStream indicates a subscription request named an unrecognized
// stream identifier. The whole batch is rejected before any mutation.
var ErrUnknownStream = errors.New("unknown stream identifier")

// LocationNotifier is invoked after any committed update that touched the
// location stream, including removals.
type LocationNotifier interface {
	OnSubscriptionChange(ctx context.Context, sess *Session) error
}

type subscriptionKey struct {
	sessionID   string
	packageName string
}

type subscriptionEntry struct {
	streams []string
	history []domain.SubscriptionHistoryEntry
	version uint64
}

// SubscriptionService owns the authoritative (session, app) → stream set
// mapping, enforces permission grants, and keeps updates race-safe through
// per-entry version counters. Permission and user-record lookups run outside
// the lock; the version check at commit time is the ordering guarantee across
// that boundary.
type SubscriptionService struct {
	apps     port.AppDirectory
	users    port.UserStore
	location LocationNotifier
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries map[subscriptionKey]*subscriptionEntry
}

// NewSubscriptionService constructs a SubscriptionService.
func NewSubscriptionService(apps port.AppDirectory, users port.UserStore, events port.EventPublisher, logger *zap.Logger) *SubscriptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionService{
		apps:    apps,
		users:   users,
		events:  events,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		entries: make(map[subscriptionKey]*subscriptionEntry),
	}
}

// WithLocationNotifier wires the tier arbiter's subscription-change hook.
func (s *SubscriptionService) WithLocationNotifier(notifier LocationNotifier) *SubscriptionService {
	s.location = notifier
	return s
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SubscriptionService) WithClock(clock func() time.Time) *SubscriptionService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// UpdateSubscriptions validates and commits a full replacement of the app's
// subscription set for the session. An unrecognized descriptor fails the whole
// call before any mutation. Permission rejections never fail the call: the
// allowed subset is stored and the app is notified best-effort. When the app
// directory is unreachable the requested set is applied unfiltered rather
// than leaving the session's subscription state undefined.
func (s *SubscriptionService) UpdateSubscriptions(ctx context.Context, sess *Session, packageName string, requested []domain.StreamRequest) error {
	for _, req := range requested {
		if !domain.IsValidSubscription(req.Stream) {
			return fmt.Errorf("%w: %q", ErrUnknownStream, req.Stream)
		}
	}

	key := subscriptionKey{sessionID: sess.ID, packageName: packageName}
	version := s.beginUpdate(key)

	allowed, rejected := s.filterPermissions(ctx, sess, packageName, requested)

	if len(rejected) > 0 {
		s.notifyPermissionDenied(sess, packageName, rejected)
	}

	locationTouched := s.syncLocationRecord(ctx, sess.UserID, packageName, allowed)

	streams := dedupeStreams(allowed)

	s.mu.Lock()
	entry := s.entries[key]
	if entry == nil || entry.version != version {
		s.mu.Unlock()
		s.logger.Debug("subscription update superseded, discarding",
			zap.String("session_id", sess.ID),
			zap.String("package_name", packageName),
			zap.Uint64("version", version),
		)
		return nil
	}
	entry.streams = streams
	entry.history = append(entry.history, domain.SubscriptionHistoryEntry{
		Timestamp: s.now(),
		Streams:   append([]string(nil), streams...),
		Action:    domain.SubscriptionActionUpdate,
	})
	s.mu.Unlock()

	if locationTouched && s.location != nil {
		if err := s.location.OnSubscriptionChange(ctx, sess); err != nil {
			s.logger.Warn("location subscription-change hook failed",
				zap.String("session_id", sess.ID),
				zap.String("package_name", packageName),
				zap.Error(err),
			)
		}
	}

	s.publishUpdated(ctx, sess, packageName, streams, len(rejected))

	return nil
}

// SubscribedApps returns every app whose stored set contains the stream, the
// "all" subscription, or the universal wildcard. Matching is membership-only.
func (s *SubscriptionService) SubscribedApps(sessionID, stream string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var apps []string
	for key, entry := range s.entries {
		if key.sessionID != sessionID {
			continue
		}
		for _, stored := range entry.streams {
			if stored == stream || stored == string(domain.StreamAll) || stored == string(domain.StreamWildcard) {
				apps = append(apps, key.packageName)
				break
			}
		}
	}
	sort.Strings(apps)
	return apps
}

// AppSubscriptions returns the stored stream set for one (session, app) pair.
func (s *SubscriptionService) AppSubscriptions(sessionID, packageName string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[subscriptionKey{sessionID: sessionID, packageName: packageName}]
	if entry == nil {
		return nil
	}
	return append([]string(nil), entry.streams...)
}

// History returns the append-only change log for one (session, app) pair.
func (s *SubscriptionService) History(sessionID, packageName string) []domain.SubscriptionHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[subscriptionKey{sessionID: sessionID, packageName: packageName}]
	if entry == nil {
		return nil
	}
	return append([]domain.SubscriptionHistoryEntry(nil), entry.history...)
}

// RemoveAppSubscriptions deletes the app's stored set for the session and
// records the prior set in history. Any persisted location record for the app
// is removed as well so the effective tier can be re-derived.
func (s *SubscriptionService) RemoveAppSubscriptions(ctx context.Context, sess *Session, packageName string) {
	key := subscriptionKey{sessionID: sess.ID, packageName: packageName}

	s.mu.Lock()
	entry := s.entries[key]
	var prior []string
	if entry != nil {
		prior = entry.streams
		entry.streams = nil
		// The removal supersedes any update still in flight; bumping the
		// version makes its commit-time check fail.
		entry.version++
		entry.history = append(entry.history, domain.SubscriptionHistoryEntry{
			Timestamp: s.now(),
			Streams:   append([]string(nil), prior...),
			Action:    domain.SubscriptionActionRemove,
		})
	}
	s.mu.Unlock()

	if entry == nil {
		return
	}

	locationTouched := s.syncLocationRecord(ctx, sess.UserID, packageName, nil)
	if locationTouched && s.location != nil {
		if err := s.location.OnSubscriptionChange(ctx, sess); err != nil {
			s.logger.Warn("location subscription-change hook failed",
				zap.String("session_id", sess.ID),
				zap.String("package_name", packageName),
				zap.Error(err),
			)
		}
	}
}

// TeardownSession drops every subscription entry, version counter, and
// history record scoped to the session. Safe to call repeatedly.
func (s *SubscriptionService) TeardownSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.entries {
		if key.sessionID == sessionID {
			delete(s.entries, key)
		}
	}
}

// beginUpdate increments the entry's version counter and captures it for the
// commit-time staleness check.
func (s *SubscriptionService) beginUpdate(key subscriptionKey) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.entries[key]
	if entry == nil {
		entry = &subscriptionEntry{}
		s.entries[key] = entry
	}
	entry.version++
	return entry.version
}

func (s *SubscriptionService) filterPermissions(ctx context.Context, sess *Session, packageName string, requested []domain.StreamRequest) ([]domain.StreamRequest, []domain.PermissionErrorDetail) {
	app, err := s.apps.GetApp(ctx, packageName)
	if err != nil {
		s.logger.Error("app directory lookup failed, applying requested set unfiltered",
			zap.String("session_id", sess.ID),
			zap.String("package_name", packageName),
			zap.Error(err),
		)
		return requested, nil
	}

	var allowed []domain.StreamRequest
	var rejected []domain.PermissionErrorDetail
	for _, req := range requested {
		perm, required := domain.RequiredPermission(req.Stream)
		if !required || app.Grants(perm) {
			allowed = append(allowed, req)
			continue
		}
		rejected = append(rejected, domain.PermissionErrorDetail{
			Stream:             req.Stream,
			RequiredPermission: string(perm),
			Message:            fmt.Sprintf("subscribing to %s requires the %s permission; add it to the app manifest and ask the user to re-grant it", req.Stream, perm),
		})
	}
	return allowed, rejected
}

func (s *SubscriptionService) notifyPermissionDenied(sess *Session, packageName string, details []domain.PermissionErrorDetail) {
	conn := sess.AppConnection(packageName)
	if conn == nil || !conn.IsOpen() {
		return
	}

	msg := domain.PermissionErrorMessage{
		Type:      domain.MessageTypePermissionError,
		Message:   "some subscriptions were rejected due to missing permissions",
		Details:   details,
		Timestamp: s.now(),
	}
	if err := conn.Send(msg); err != nil {
		s.logger.Warn("permission error notice not delivered",
			zap.String("session_id", sess.ID),
			zap.String("package_name", packageName),
			zap.Error(err),
		)
	}
}

// syncLocationRecord upserts or removes the user's per-app location rate
// record and reports whether location state actually changed.
func (s *SubscriptionService) syncLocationRecord(ctx context.Context, userID, packageName string, allowed []domain.StreamRequest) bool {
	var locationReq *domain.StreamRequest
	for i := range allowed {
		if domain.BaseStreamType(allowed[i].Stream) == domain.StreamLocationUpdate {
			locationReq = &allowed[i]
			break
		}
	}

	if locationReq != nil {
		rate := locationReq.Rate
		if rate == "" {
			rate = domain.DefaultRateTier
		}
		if err := s.users.SetLocationSubscription(ctx, userID, packageName, rate); err != nil {
			s.logger.Warn("persist location subscription failed",
				zap.String("user_id", userID),
				zap.String("package_name", packageName),
				zap.Error(err),
			)
			return false
		}
		return true
	}

	err := s.users.RemoveLocationSubscription(ctx, userID, packageName)
	if err == nil {
		return true
	}
	if !errors.Is(err, repository.ErrNotFound) {
		s.logger.Warn("remove location subscription failed",
			zap.String("user_id", userID),
			zap.String("package_name", packageName),
			zap.Error(err),
		)
	}
	return false
}

func (s *SubscriptionService) publishUpdated(ctx context.Context, sess *Session, packageName string, streams []string, rejectedCount int) {
	if s.events == nil {
		return
	}

	event := domain.SubscriptionUpdatedEvent{
		EventID:       uuid.NewString(),
		SessionID:     sess.ID,
		UserID:        sess.UserID,
		PackageName:   packageName,
		Streams:       streams,
		RejectedCount: rejectedCount,
		UpdatedAt:     s.now(),
	}
	if err := s.events.PublishSubscriptionUpdated(ctx, event); err != nil {
		s.logger.Warn("publish subscription updated failed",
			zap.String("session_id", sess.ID),
			zap.String("package_name", packageName),
			zap.Error(err),
		)
	}
}

func dedupeStreams(requests []domain.StreamRequest) []string {
	seen := make(map[string]struct{}, len(requests))
	streams := make([]string, 0, len(requests))
	for _, req := range requests {
		if _, ok := seen[req.Stream]; ok {
			continue
		}
		seen[req.Stream] = struct{}{}
		streams = append(streams, req.Stream)
	}
	return streams
}
