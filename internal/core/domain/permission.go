package domain

// Permission is a capability an app may be granted in the app directory.
type Permission string

const (
	PermissionMicrophone Permission = "MICROPHONE"
	PermissionLocation   Permission = "LOCATION"
	PermissionCalendar   Permission = "CALENDAR"
	// PermissionNotifications is the legacy grant kept for apps published
	// before the notification permissions were split.
	PermissionNotifications     Permission = "NOTIFICATIONS"
	PermissionReadNotifications Permission = "READ_NOTIFICATIONS"
	PermissionPostNotifications Permission = "POST_NOTIFICATIONS"
	PermissionAll               Permission = "ALL"
)

var streamPermissions = map[StreamType]Permission{
	StreamAudioChunk:            PermissionMicrophone,
	StreamTranscription:         PermissionMicrophone,
	StreamTranslation:           PermissionMicrophone,
	StreamVad:                   PermissionMicrophone,
	StreamLocationUpdate:        PermissionLocation,
	StreamCalendarEvent:         PermissionCalendar,
	StreamPhoneNotification:     PermissionReadNotifications,
	StreamNotificationDismissed: PermissionReadNotifications,
}

// RequiredPermission resolves the capability an app must hold to subscribe to
// the stream. The second return value is false when the stream is open to any
// app. Language-parametrized identifiers resolve through their base type.
func RequiredPermission(subscription string) (Permission, bool) {
	perm, ok := streamPermissions[BaseStreamType(subscription)]
	return perm, ok
}

// App is a directory record for a registered application.
type App struct {
	PackageName string
	Name        string
	APIKeyHash  string
	Permissions []Permission
}

// Grants reports whether the app holds the permission. The ALL grant covers
// everything and the legacy NOTIFICATIONS grant satisfies READ_NOTIFICATIONS.
func (a App) Grants(perm Permission) bool {
	for _, granted := range a.Permissions {
		if granted == perm || granted == PermissionAll {
			return true
		}
		if perm == PermissionReadNotifications && granted == PermissionNotifications {
			return true
		}
	}
	return false
}
