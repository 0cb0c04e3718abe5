package domain

import "time"

// Message types on the cloud→app channel.
const (
	MessageTypeDataStream       = "data_stream"
	MessageTypePermissionError  = "permission_error"
	MessageTypeCustomMessage    = "custom_message"
	MessageTypePhotoResponse    = "photo_response"
	MessageTypeRtmpStreamStatus = "rtmp_stream_status"
	MessageTypeWebsocketError   = "websocket_error"
)

// Message types on the app→cloud channel.
const (
	MessageTypeSubscriptionUpdate  = "subscription_update"
	MessageTypePhotoRequest        = "photo_request"
	MessageTypeRtmpStreamRequest   = "rtmp_stream_request"
	MessageTypeRtmpStreamStop      = "rtmp_stream_stop"
	MessageTypeLocationPollRequest = "location_poll_request"
)

// Commands on the cloud→device channel.
const (
	CommandSetLocationTier       = "set_location_tier"
	CommandRequestSingleLocation = "request_single_location"
	CommandPhotoRequest          = "photo_request"
	CommandStartRtmpStream       = "start_rtmp_stream"
	CommandStopRtmpStream        = "stop_rtmp_stream"
)

// CustomActionUpdateDatetime is the custom_message action carrying the
// user-visible datetime to subscribed apps.
const CustomActionUpdateDatetime = "update_datetime"

// DataStreamMessage fans a classified event out to a subscribed app.
type DataStreamMessage struct {
	Type       string    `json:"type"`
	StreamType string    `json:"streamType"`
	SessionID  string    `json:"sessionId"`
	Data       any       `json:"data"`
	Timestamp  time.Time `json:"timestamp"`
}

// PermissionErrorDetail names one rejected stream and its missing capability.
type PermissionErrorDetail struct {
	Stream             string `json:"stream"`
	RequiredPermission string `json:"requiredPermission"`
	Message            string `json:"message"`
}

// PermissionErrorMessage notifies an app about rejected subscriptions.
type PermissionErrorMessage struct {
	Type      string                  `json:"type"`
	Message   string                  `json:"message"`
	Details   []PermissionErrorDetail `json:"details"`
	Timestamp time.Time               `json:"timestamp"`
}

// CustomMessage is the generic app-facing envelope for system notices.
type CustomMessage struct {
	Type      string    `json:"type"`
	Action    string    `json:"action"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// SetLocationTierCommand switches the device's continuous location rate.
type SetLocationTierCommand struct {
	Type string   `json:"type"`
	Rate RateTier `json:"rate"`
}

// RequestSingleLocationCommand asks the device for one fresh position fix.
// The eventual sample is broadcast tagged with the correlation id; the
// command itself is fire-and-forget.
type RequestSingleLocationCommand struct {
	Type          string   `json:"type"`
	Accuracy      RateTier `json:"accuracy"`
	CorrelationID string   `json:"correlationId"`
}

// PhotoRequestCommand asks the device to capture a photo.
type PhotoRequestCommand struct {
	Type          string    `json:"type"`
	RequestID     string    `json:"requestId"`
	PackageName   string    `json:"packageName"`
	SaveToGallery bool      `json:"saveToGallery"`
	Timestamp     time.Time `json:"timestamp"`
}

// PhotoResult is the device's answer to a photo request.
type PhotoResult struct {
	RequestID      string `json:"requestId"`
	PhotoURL       string `json:"photoUrl"`
	SavedToGallery bool   `json:"savedToGallery"`
}

// PhotoResponseMessage delivers a resolved photo request to the app.
type PhotoResponseMessage struct {
	Type      string    `json:"type"`
	RequestID string    `json:"requestId"`
	PhotoURL  string    `json:"photoUrl"`
	Timestamp time.Time `json:"timestamp"`
}

// StartRtmpStreamCommand starts outbound media streaming on the device.
type StartRtmpStreamCommand struct {
	Type        string         `json:"type"`
	StreamID    string         `json:"streamId"`
	PackageName string         `json:"packageName"`
	RtmpURL     string         `json:"rtmpUrl"`
	Video       map[string]any `json:"video,omitempty"`
	Audio       map[string]any `json:"audio,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// StopRtmpStreamCommand stops outbound media streaming on the device.
type StopRtmpStreamCommand struct {
	Type        string    `json:"type"`
	StreamID    string    `json:"streamId"`
	PackageName string    `json:"packageName"`
	Timestamp   time.Time `json:"timestamp"`
}

// Stream statuses reported by the device. The terminal ones clear the
// per-app active flag and the remembered endpoint.
const (
	StreamStatusInitializing = "initializing"
	StreamStatusConnecting   = "connecting"
	StreamStatusStreaming    = "streaming"
	StreamStatusStopped      = "stopped"
	StreamStatusError        = "error"
	StreamStatusTimeout      = "timeout"
)

// StreamStatus is the wholesale-replaced outbound stream snapshot.
type StreamStatus struct {
	StreamID     string    `json:"streamId"`
	PackageName  string    `json:"appId,omitempty"`
	Status       string    `json:"status"`
	ErrorDetails string    `json:"errorDetails,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Terminal reports whether the status ends the stream's lifecycle.
func (s StreamStatus) Terminal() bool {
	switch s.Status {
	case StreamStatusStopped, StreamStatusError, StreamStatusTimeout:
		return true
	}
	return false
}
