package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
)

func newLocationFixture() (*LocationService, *userStoreMock, *locationCacheMock) {
	users := newUserStoreMock()
	cache := newLocationCacheMock()
	return NewLocationService(users, cache, nil), users, cache
}

func deviceSession(conn *connMock) *Session {
	sess := NewSession("sess-1", "user@example.com", time.Now().UTC())
	sess.SetDevice(conn)
	return sess
}

func TestOnSubscriptionChange_CommandsStrongestTier(t *testing.T) {
	svc, users, _ := newLocationFixture()
	device := newConnMock()
	sess := deviceSession(device)
	ctx := context.Background()

	users.subs[sess.UserID] = map[string]domain.RateTier{
		"com.example.a": domain.TierReduced,
		"com.example.b": domain.TierHigh,
		"com.example.c": domain.TierKilometer,
	}

	if err := svc.OnSubscriptionChange(ctx, sess); err != nil {
		t.Fatalf("OnSubscriptionChange returned error: %v", err)
	}

	if rate := users.effective[sess.UserID]; rate != domain.TierHigh {
		t.Fatalf("expected effective tier high, got %q", rate)
	}

	sent := device.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected one device command, got %d", len(sent))
	}
	cmd, ok := sent[0].(domain.SetLocationTierCommand)
	if !ok || cmd.Type != domain.CommandSetLocationTier || cmd.Rate != domain.TierHigh {
		t.Fatalf("unexpected command: %+v", sent[0])
	}
}

func TestOnSubscriptionChange_NoCommandWhenUnchanged(t *testing.T) {
	svc, users, _ := newLocationFixture()
	device := newConnMock()
	sess := deviceSession(device)
	ctx := context.Background()

	users.subs[sess.UserID] = map[string]domain.RateTier{"com.example.a": domain.TierHigh}
	users.effective[sess.UserID] = domain.TierHigh

	if err := svc.OnSubscriptionChange(ctx, sess); err != nil {
		t.Fatalf("OnSubscriptionChange returned error: %v", err)
	}

	if len(device.sentMessages()) != 0 {
		t.Fatalf("expected no command when the effective tier is unchanged")
	}
	if users.effectiveSets != 0 {
		t.Fatalf("expected no redundant persist, got %d writes", users.effectiveSets)
	}
}

func TestOnSubscriptionChange_NoRecordsFallsBackToReduced(t *testing.T) {
	svc, users, _ := newLocationFixture()
	device := newConnMock()
	sess := deviceSession(device)

	users.effective[sess.UserID] = domain.TierHigh

	if err := svc.OnSubscriptionChange(context.Background(), sess); err != nil {
		t.Fatalf("OnSubscriptionChange returned error: %v", err)
	}

	if rate := users.effective[sess.UserID]; rate != domain.TierReduced {
		t.Fatalf("expected fallback to reduced, got %q", rate)
	}
	sent := device.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected tier-lowering command, got %d messages", len(sent))
	}
}

func TestOnSubscriptionChange_PersistsWithoutDevice(t *testing.T) {
	svc, users, _ := newLocationFixture()
	sess := NewSession("sess-1", "user@example.com", time.Now().UTC())

	users.subs[sess.UserID] = map[string]domain.RateTier{"com.example.a": domain.TierTenMeters}

	if err := svc.OnSubscriptionChange(context.Background(), sess); err != nil {
		t.Fatalf("OnSubscriptionChange returned error: %v", err)
	}
	if rate := users.effective[sess.UserID]; rate != domain.TierTenMeters {
		t.Fatalf("expected tier persisted despite missing device, got %q", rate)
	}
}

func TestPollLocation_ServedFromSessionCache(t *testing.T) {
	svc, users, cache := newLocationFixture()
	device := newConnMock()
	sess := deviceSession(device)
	ctx := context.Background()

	users.effective[sess.UserID] = domain.TierRealtime
	cached := domain.LocationSample{Lat: 52.52, Lng: 13.405, Timestamp: time.Now().UTC()}
	cache.samples[sess.ID] = cached

	got, err := svc.PollLocation(ctx, sess, domain.TierTenMeters, "corr-1")
	if err != nil {
		t.Fatalf("PollLocation returned error: %v", err)
	}
	if got == nil || got.Lat != cached.Lat || got.Lng != cached.Lng {
		t.Fatalf("expected cached sample, got %+v", got)
	}
	if len(device.sentMessages()) != 0 {
		t.Fatalf("expected no device poll while stream cache serves")
	}
}

func TestPollLocation_FreshLastKnownServes(t *testing.T) {
	svc, users, _ := newLocationFixture()
	device := newConnMock()
	sess := deviceSession(device)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	// tenMeters tolerates 30 seconds of staleness.
	users.last[sess.UserID] = domain.LocationSample{Lat: 1, Lng: 2, Timestamp: now.Add(-20 * time.Second)}

	got, err := svc.PollLocation(context.Background(), sess, domain.TierTenMeters, "corr-1")
	if err != nil {
		t.Fatalf("PollLocation returned error: %v", err)
	}
	if got == nil || got.Lat != 1 {
		t.Fatalf("expected last known sample, got %+v", got)
	}
	if len(device.sentMessages()) != 0 {
		t.Fatalf("expected no device poll for a fresh fix")
	}
}

func TestPollLocation_StaleDispatchesDevicePoll(t *testing.T) {
	svc, users, _ := newLocationFixture()
	device := newConnMock()
	sess := deviceSession(device)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	users.last[sess.UserID] = domain.LocationSample{Lat: 1, Lng: 2, Timestamp: now.Add(-2 * time.Minute)}

	got, err := svc.PollLocation(context.Background(), sess, domain.TierTenMeters, "corr-42")
	if err != nil {
		t.Fatalf("PollLocation returned error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil sample for dispatched poll, got %+v", got)
	}

	sent := device.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected one device command, got %d", len(sent))
	}
	cmd, ok := sent[0].(domain.RequestSingleLocationCommand)
	if !ok || cmd.Type != domain.CommandRequestSingleLocation {
		t.Fatalf("unexpected command: %+v", sent[0])
	}
	if cmd.CorrelationID != "corr-42" || cmd.Accuracy != domain.TierTenMeters {
		t.Fatalf("unexpected command fields: %+v", cmd)
	}
}

func TestPollLocation_NoDevice(t *testing.T) {
	svc, _, _ := newLocationFixture()
	sess := NewSession("sess-1", "user@example.com", time.Now().UTC())

	if _, err := svc.PollLocation(context.Background(), sess, domain.TierTenMeters, "corr-1"); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
}

func TestRecordLocation_StoresCacheAndLastKnown(t *testing.T) {
	svc, users, cache := newLocationFixture()
	sess := NewSession("sess-1", "user@example.com", time.Now().UTC())

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return now })

	svc.RecordLocation(context.Background(), sess, domain.LocationSample{Lat: 1, Lng: 2})

	cached, ok := cache.samples[sess.ID]
	if !ok || !cached.Timestamp.Equal(now) {
		t.Fatalf("expected cached sample stamped %v, got %+v (present=%v)", now, cached, ok)
	}
	last, ok := users.last[sess.UserID]
	if !ok || last.Lat != 1 {
		t.Fatalf("expected last known location stored, got %+v (present=%v)", last, ok)
	}
}

func TestRecordLocation_CacheFailureStillPersists(t *testing.T) {
	svc, users, cache := newLocationFixture()
	sess := NewSession("sess-1", "user@example.com", time.Now().UTC())
	cache.setErr = errors.New("redis down")

	svc.RecordLocation(context.Background(), sess, domain.LocationSample{Lat: 1, Lng: 2, Timestamp: time.Now().UTC()})

	if _, ok := users.last[sess.UserID]; !ok {
		t.Fatalf("expected last known location persisted despite cache failure")
	}
}

func TestClearSessionCache(t *testing.T) {
	svc, _, cache := newLocationFixture()
	cache.samples["sess-1"] = domain.LocationSample{Lat: 1}

	svc.ClearSessionCache(context.Background(), "sess-1")

	if _, ok := cache.samples["sess-1"]; ok {
		t.Fatalf("expected cache entry removed")
	}
}
