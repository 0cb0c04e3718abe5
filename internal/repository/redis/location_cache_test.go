package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	red "github.com/redis/go-redis/v9"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
	"github.com/arklim/wearable-stream-broker/internal/repository"
)

func newTestRedis(t *testing.T) (*red.Client, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := red.NewClient(&red.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return client, server
}

func TestLocationCache_SetAndGet(t *testing.T) {
	client, server := newTestRedis(t)
	cache := NewLocationCache(client, "loc", 30*time.Minute)

	ctx := context.Background()
	accuracy := 12.5
	sample := domain.LocationSample{
		Lat:       52.52,
		Lng:       13.405,
		Accuracy:  &accuracy,
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	if err := cache.Set(ctx, "session-1", sample); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	got, err := cache.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Lat != sample.Lat || got.Lng != sample.Lng {
		t.Fatalf("expected %+v, got %+v", sample, got)
	}
	if got.Accuracy == nil || *got.Accuracy != accuracy {
		t.Fatalf("expected accuracy %v, got %v", accuracy, got.Accuracy)
	}
	if !got.Timestamp.Equal(sample.Timestamp) {
		t.Fatalf("expected timestamp %v, got %v", sample.Timestamp, got.Timestamp)
	}

	remaining := server.TTL("loc:session-1")
	if remaining <= 0 || remaining > 30*time.Minute {
		t.Fatalf("expected ttl within (0, 30m], got %v", remaining)
	}
}

func TestLocationCache_Overwrite(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewLocationCache(client, "loc", time.Minute)

	ctx := context.Background()
	first := domain.LocationSample{Lat: 1, Lng: 2, Timestamp: time.Now().UTC()}
	second := domain.LocationSample{Lat: 3, Lng: 4, Timestamp: time.Now().UTC()}

	if err := cache.Set(ctx, "session-1", first); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := cache.Set(ctx, "session-1", second); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	got, err := cache.Get(ctx, "session-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Lat != second.Lat || got.Lng != second.Lng {
		t.Fatalf("expected latest sample, got %+v", got)
	}
}

func TestLocationCache_GetMiss(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewLocationCache(client, "loc", time.Minute)

	if _, err := cache.Get(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocationCache_Delete(t *testing.T) {
	client, _ := newTestRedis(t)
	cache := NewLocationCache(client, "loc", time.Minute)

	ctx := context.Background()
	sample := domain.LocationSample{Lat: 1, Lng: 2, Timestamp: time.Now().UTC()}

	if err := cache.Set(ctx, "session-1", sample); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := cache.Delete(ctx, "session-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := cache.Get(ctx, "session-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting again is a no-op.
	if err := cache.Delete(ctx, "session-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
}
