package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
)

type registryFixture struct {
	registry   *SessionRegistry
	subs       *SubscriptionService
	streams    *StreamService
	location   *LocationService
	correlator *Correlator
	cache      *locationCacheMock
	events     *eventsMock
}

func newRegistryFixture() *registryFixture {
	apps := &appDirectoryMock{apps: map[string]*domain.App{
		"com.example.nav": {
			PackageName: "com.example.nav",
			Permissions: []domain.Permission{domain.PermissionLocation},
		},
	}}
	users := newUserStoreMock()
	cache := newLocationCacheMock()
	events := &eventsMock{}

	subs := NewSubscriptionService(apps, users, events, nil)
	location := NewLocationService(users, cache, nil)
	streams := NewStreamService(events, nil)
	correlator := NewCorrelator(time.Second, nil)

	return &registryFixture{
		registry:   NewSessionRegistry(subs, streams, location, correlator, events, nil),
		subs:       subs,
		streams:    streams,
		location:   location,
		correlator: correlator,
		cache:      cache,
		events:     events,
	}
}

func TestStartSession_ReplacesPreviousForUser(t *testing.T) {
	f := newRegistryFixture()
	ctx := context.Background()

	first := f.registry.StartSession(ctx, "user@example.com")
	device := newConnMock()
	first.SetDevice(device)

	second := f.registry.StartSession(ctx, "user@example.com")
	if second.ID == first.ID {
		t.Fatalf("expected a fresh session id")
	}

	if _, err := f.registry.Get(first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected previous session removed, got %v", err)
	}
	if device.IsOpen() {
		t.Fatalf("expected previous device connection closed")
	}

	got, err := f.registry.GetByUser("user@example.com")
	if err != nil || got.ID != second.ID {
		t.Fatalf("expected user resolved to replacement session, got %v (%v)", got, err)
	}

	if ended := f.events.sessionEvents(); len(ended) != 1 || ended[0].SessionID != first.ID {
		t.Fatalf("expected one ended event for the replaced session, got %+v", ended)
	}
}

func TestEndSession_Cascades(t *testing.T) {
	f := newRegistryFixture()
	ctx := context.Background()

	sess := f.registry.StartSession(ctx, "user@example.com")
	device := newConnMock()
	sess.SetDevice(device)
	appConn := newConnMock()
	sess.RegisterApp("com.example.nav", appConn)

	if err := f.subs.UpdateSubscriptions(ctx, sess, "com.example.nav", []domain.StreamRequest{
		domain.Plain("head_position"),
	}); err != nil {
		t.Fatalf("UpdateSubscriptions returned error: %v", err)
	}
	if err := f.cache.Set(ctx, sess.ID, domain.LocationSample{Lat: 1, Lng: 2, Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("cache seed returned error: %v", err)
	}
	if _, err := f.streams.StartStream(ctx, sess, "com.example.nav", "rtmp://a", nil, nil); err != nil {
		t.Fatalf("StartStream returned error: %v", err)
	}
	done := f.correlator.Register("req-1", "photo", sess.ID)

	f.registry.EndSession(ctx, sess.ID, "device_disconnected")

	if _, err := f.registry.Get(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session gone, got %v", err)
	}
	if _, err := f.registry.GetByUser("user@example.com"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected user mapping gone, got %v", err)
	}

	if streams := f.subs.AppSubscriptions(sess.ID, "com.example.nav"); len(streams) != 0 {
		t.Fatalf("expected subscriptions dropped, got %v", streams)
	}

	select {
	case outcome := <-done:
		if !errors.Is(outcome.Err, ErrRequestCancelled) || !errors.Is(outcome.Err, ErrSessionClosed) {
			t.Fatalf("expected session-closed cancellation, got %v", outcome.Err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("expected pending request cancelled")
	}

	if _, ok := f.streams.ActiveStreamID(sess.ID, "com.example.nav"); ok {
		t.Fatalf("expected stream state cleared")
	}
	if f.cache.deletes != 1 {
		t.Fatalf("expected one location cache delete, got %d", f.cache.deletes)
	}
	if appConn.IsOpen() || device.IsOpen() {
		t.Fatalf("expected all connections closed")
	}

	ended := f.events.sessionEvents()
	if len(ended) != 1 || ended[0].Reason != "device_disconnected" {
		t.Fatalf("expected one ended event, got %+v", ended)
	}
}

func TestEndSession_Idempotent(t *testing.T) {
	f := newRegistryFixture()
	ctx := context.Background()

	sess := f.registry.StartSession(ctx, "user@example.com")
	f.registry.EndSession(ctx, sess.ID, "device_disconnected")
	f.registry.EndSession(ctx, sess.ID, "device_disconnected")

	if ended := f.events.sessionEvents(); len(ended) != 1 {
		t.Fatalf("expected a single ended event, got %d", len(ended))
	}
	if f.cache.deletes != 1 {
		t.Fatalf("expected a single cache delete, got %d", f.cache.deletes)
	}
}

func TestRegistryShutdown_EndsAllSessions(t *testing.T) {
	f := newRegistryFixture()
	ctx := context.Background()

	f.registry.StartSession(ctx, "a@example.com")
	f.registry.StartSession(ctx, "b@example.com")
	if got := len(f.registry.Sessions()); got != 2 {
		t.Fatalf("expected 2 live sessions, got %d", got)
	}

	f.registry.Shutdown(ctx, "server shutting down")

	if got := len(f.registry.Sessions()); got != 0 {
		t.Fatalf("expected no sessions after shutdown, got %d", got)
	}
	if ended := f.events.sessionEvents(); len(ended) != 2 {
		t.Fatalf("expected 2 ended events, got %d", len(ended))
	}
}
