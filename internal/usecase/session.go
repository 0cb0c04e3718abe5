package usecase

import (
	"sync"
	"time"

	"github.com/arklim/wearable-stream-broker/internal/core/port"
)

// Session is one connected wearable+companion pairing for a user, together
// with the app connections attached to it. Connection bookkeeping is guarded
// by the session's own lock; all other per-session state lives in the
// services keyed by session id.
type Session struct {
	ID     string
	UserID string

	mu       sync.RWMutex
	device   port.Connection
	apps     map[string]port.Connection
	datetime string

	StartedAt time.Time
}

// NewSession builds an empty session handle.
func NewSession(id, userID string, startedAt time.Time) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		apps:      make(map[string]port.Connection),
		StartedAt: startedAt,
	}
}

// SetDevice attaches the wearable's connection.
func (s *Session) SetDevice(conn port.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.device = conn
}

// Device returns the wearable's connection, or nil when not attached.
func (s *Session) Device() port.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.device
}

// RegisterApp attaches an app connection under its package name, replacing
// any previous connection for the same app.
func (s *Session) RegisterApp(packageName string, conn port.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[packageName] = conn
}

// AppConnection returns the connection for the package, or nil.
func (s *Session) AppConnection(packageName string) port.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apps[packageName]
}

// RemoveApp detaches an app connection. The stored subscription state is
// left intact so a reconnecting app resumes where it left off.
func (s *Session) RemoveApp(packageName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.apps, packageName)
}

// AppConnections snapshots the attached connections by package name.
func (s *Session) AppConnections() map[string]port.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot := make(map[string]port.Connection, len(s.apps))
	for pkg, conn := range s.apps {
		snapshot[pkg] = conn
	}
	return snapshot
}

// SetDatetime stores the user-visible datetime string.
func (s *Session) SetDatetime(datetime string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datetime = datetime
}

// Datetime returns the stored user-visible datetime string.
func (s *Session) Datetime() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.datetime
}
