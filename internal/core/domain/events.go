package domain

import "time"

// SubscriptionUpdatedEvent is published after a subscription update commits.
type SubscriptionUpdatedEvent struct {
	EventID       string         `json:"event_id"`
	SessionID     string         `json:"session_id"`
	UserID        string         `json:"user_id"`
	PackageName   string         `json:"package_name"`
	Streams       []string       `json:"streams"`
	RejectedCount int            `json:"rejected_count"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// SessionEndedEvent is published once a session's state is torn down.
type SessionEndedEvent struct {
	EventID   string         `json:"event_id"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
	Reason    string         `json:"reason"`
	EndedAt   time.Time      `json:"ended_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StreamStateChangedEvent is published when an outbound media stream changes state.
type StreamStateChangedEvent struct {
	EventID     string         `json:"event_id"`
	SessionID   string         `json:"session_id"`
	UserID      string         `json:"user_id"`
	PackageName string         `json:"package_name"`
	StreamID    string         `json:"stream_id"`
	Status      string         `json:"status"`
	ChangedAt   time.Time      `json:"changed_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
