package handlers

import (
	"time"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
)

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse describes per-dependency readiness results.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// ErrorResponse is the generic error payload for REST endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SessionResponse summarizes one live session for the admin surface.
type SessionResponse struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
	AppCount  int       `json:"app_count"`
	HasDevice bool      `json:"has_device"`
}

// SubscriptionsResponse lists the streams one app holds in a session.
type SubscriptionsResponse struct {
	SessionID   string   `json:"session_id"`
	PackageName string   `json:"package_name"`
	Streams     []string `json:"streams"`
}

// SubscriptionHistoryResponse returns the recorded subscription changes.
type SubscriptionHistoryResponse struct {
	SessionID   string                            `json:"session_id"`
	PackageName string                            `json:"package_name"`
	History     []domain.SubscriptionHistoryEntry `json:"history"`
}

// DatetimeRequest carries the user-visible datetime pushed by the device host.
type DatetimeRequest struct {
	Datetime string `json:"datetime" binding:"required"`
}

// DatetimeResponse reports how many apps received the datetime notice.
type DatetimeResponse struct {
	Delivered int `json:"delivered"`
}
