package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
	"github.com/arklim/wearable-stream-broker/internal/core/port"
	"github.com/arklim/wearable-stream-broker/internal/repository"
)

const defaultLocationCachePrefix = "broker:location_cache"

// LocationCache stores the freshest location sample per session in Redis.
type LocationCache struct {
	client *red.Client
	prefix string
	ttl    time.Duration
}

// NewLocationCache constructs a session location cache helper.
func NewLocationCache(client *red.Client, keyPrefix string, ttl time.Duration) *LocationCache {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultLocationCachePrefix
	}

	return &LocationCache{client: client, prefix: prefix, ttl: ttl}
}

// Get fetches the cached sample for a session, returning ErrNotFound on cache miss.
func (c *LocationCache) Get(ctx context.Context, sessionID string) (*domain.LocationSample, error) {
	key := c.key(sessionID)
	if key == "" {
		return nil, fmt.Errorf("session id is required")
	}

	value, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get location sample: %w", err)
	}

	var sample domain.LocationSample
	if err := json.Unmarshal(value, &sample); err != nil {
		return nil, fmt.Errorf("unmarshal cached location sample: %w", err)
	}

	return &sample, nil
}

// Set overwrites the cached sample for a session.
func (c *LocationCache) Set(ctx context.Context, sessionID string, sample domain.LocationSample) error {
	key := c.key(sessionID)
	if key == "" {
		return fmt.Errorf("session id is required")
	}

	value, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal location sample: %w", err)
	}

	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set location sample: %w", err)
	}

	return nil
}

// Delete removes the cached sample for a session. Missing keys are not an error.
func (c *LocationCache) Delete(ctx context.Context, sessionID string) error {
	key := c.key(sessionID)
	if key == "" {
		return fmt.Errorf("session id is required")
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete location sample: %w", err)
	}

	return nil
}

func (c *LocationCache) key(sessionID string) string {
	trimmed := strings.TrimSpace(sessionID)
	if trimmed == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", c.prefix, trimmed)
}

var _ port.LocationCache = (*LocationCache)(nil)
