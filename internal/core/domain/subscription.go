package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// StreamRequest is a single requested subscription: either a plain stream
// identifier or a structured request carrying per-request options. On the
// wire it is a bare JSON string or an object with a "stream" field.
type StreamRequest struct {
	Stream string   `json:"stream"`
	Rate   RateTier `json:"rate,omitempty"`
}

// Plain builds a request without options.
func Plain(stream string) StreamRequest {
	return StreamRequest{Stream: stream}
}

// WithRate builds a structured request for the location stream.
func WithRate(stream string, rate RateTier) StreamRequest {
	return StreamRequest{Stream: stream, Rate: rate}
}

// IsStructured reports whether the request carries per-request options.
func (r StreamRequest) IsStructured() bool {
	return r.Rate != ""
}

// UnmarshalJSON accepts both descriptor forms.
func (r *StreamRequest) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		*r = StreamRequest{Stream: plain}
		return nil
	}

	type structured StreamRequest
	var s structured
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("decode stream request: %w", err)
	}
	*r = StreamRequest(s)
	return nil
}

// MarshalJSON emits the compact string form when no options are set.
func (r StreamRequest) MarshalJSON() ([]byte, error) {
	if !r.IsStructured() {
		return json.Marshal(r.Stream)
	}
	type structured StreamRequest
	return json.Marshal(structured(r))
}

// SubscriptionAction labels a history entry.
type SubscriptionAction string

const (
	SubscriptionActionAdd    SubscriptionAction = "add"
	SubscriptionActionRemove SubscriptionAction = "remove"
	SubscriptionActionUpdate SubscriptionAction = "update"
)

// SubscriptionHistoryEntry records the resulting stream set after a change.
// History is diagnostics-only and is never consulted for control decisions.
type SubscriptionHistoryEntry struct {
	Timestamp time.Time          `json:"timestamp"`
	Streams   []string           `json:"streams"`
	Action    SubscriptionAction `json:"action"`
}
