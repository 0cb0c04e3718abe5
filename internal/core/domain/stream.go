package domain

import "strings"

// StreamType identifies a category of data or events an app can subscribe to.
type StreamType string

const (
	StreamTranscription          StreamType = "transcription"
	StreamTranslation            StreamType = "translation"
	StreamButtonPress            StreamType = "button_press"
	StreamHeadPosition           StreamType = "head_position"
	StreamPhoneNotification      StreamType = "phone_notification"
	StreamNotificationDismissed  StreamType = "notification_dismissed"
	StreamGlassesBatteryUpdate   StreamType = "glasses_battery_update"
	StreamPhoneBatteryUpdate     StreamType = "phone_battery_update"
	StreamGlassesConnectionState StreamType = "glasses_connection_state"
	StreamLocationUpdate         StreamType = "location_update"
	StreamVpsCoordinates         StreamType = "vps_coordinates"
	StreamVad                    StreamType = "vad"
	StreamAudioChunk             StreamType = "audio_chunk"
	StreamVideo                  StreamType = "video"
	StreamRtmpStreamStatus       StreamType = "rtmp_stream_status"
	StreamCalendarEvent          StreamType = "calendar_event"
	StreamPhotoTaken             StreamType = "photo_taken"
	StreamStartApp               StreamType = "start_app"
	StreamStopApp                StreamType = "stop_app"
	StreamOpenDashboard          StreamType = "open_dashboard"
	StreamCoreStatusUpdate       StreamType = "core_status_update"
	StreamCustomMessage          StreamType = "custom_message"

	// StreamAll subscribes to every stream type at once.
	StreamAll StreamType = "all"
	// StreamWildcard is the universal wildcard subscription.
	StreamWildcard StreamType = "*"
)

// SettingStreamPrefix namespaces system setting streams (e.g. "augmentos:metric_system").
const SettingStreamPrefix = "augmentos:"

var plainStreams = map[StreamType]struct{}{
	StreamTranscription:          {},
	StreamTranslation:            {},
	StreamButtonPress:            {},
	StreamHeadPosition:           {},
	StreamPhoneNotification:      {},
	StreamNotificationDismissed:  {},
	StreamGlassesBatteryUpdate:   {},
	StreamPhoneBatteryUpdate:     {},
	StreamGlassesConnectionState: {},
	StreamLocationUpdate:         {},
	StreamVpsCoordinates:         {},
	StreamVad:                    {},
	StreamAudioChunk:             {},
	StreamVideo:                  {},
	StreamRtmpStreamStatus:       {},
	StreamCalendarEvent:          {},
	StreamPhotoTaken:             {},
	StreamStartApp:               {},
	StreamStopApp:                {},
	StreamOpenDashboard:          {},
	StreamCoreStatusUpdate:       {},
	StreamCustomMessage:          {},
	StreamAll:                    {},
	StreamWildcard:               {},
}

// LanguageStreamInfo describes a parsed language-parametrized stream identifier.
type LanguageStreamInfo struct {
	Type           StreamType
	TranscribeLang string
	TranslateLang  string
}

// ParseLanguageStream parses identifiers of the form "transcription:en-US" and
// "translation:es-ES-to-en-US". The second return value reports whether the
// identifier is a well-formed language stream.
func ParseLanguageStream(subscription string) (LanguageStreamInfo, bool) {
	base, rest, found := strings.Cut(subscription, ":")
	if !found || rest == "" {
		return LanguageStreamInfo{}, false
	}

	switch StreamType(base) {
	case StreamTranscription:
		if strings.Contains(rest, "-to-") {
			return LanguageStreamInfo{}, false
		}
		return LanguageStreamInfo{Type: StreamTranscription, TranscribeLang: rest}, true
	case StreamTranslation:
		source, target, ok := strings.Cut(rest, "-to-")
		if !ok || source == "" || target == "" {
			return LanguageStreamInfo{}, false
		}
		return LanguageStreamInfo{Type: StreamTranslation, TranscribeLang: source, TranslateLang: target}, true
	default:
		return LanguageStreamInfo{}, false
	}
}

// IsSettingStream reports whether the identifier targets a namespaced system setting.
func IsSettingStream(subscription string) bool {
	return strings.HasPrefix(subscription, SettingStreamPrefix) && len(subscription) > len(SettingStreamPrefix)
}

// IsValidSubscription reports whether the identifier is a recognized plain
// stream, a language-parametrized stream, or a namespaced setting stream.
func IsValidSubscription(subscription string) bool {
	if subscription == "" {
		return false
	}
	if _, ok := plainStreams[StreamType(subscription)]; ok {
		return true
	}
	if _, ok := ParseLanguageStream(subscription); ok {
		return true
	}
	return IsSettingStream(subscription)
}

// BaseStreamType strips language parameters from an extended identifier so the
// permission mapping can be resolved. Setting streams map to themselves.
func BaseStreamType(subscription string) StreamType {
	if _, ok := plainStreams[StreamType(subscription)]; ok {
		return StreamType(subscription)
	}
	if info, ok := ParseLanguageStream(subscription); ok {
		return info.Type
	}
	return StreamType(subscription)
}
