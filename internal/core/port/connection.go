package port

// Connection is a live, ordered, connection-scoped message channel to an app
// or to the device. Send serializes the payload and writes it; implementations
// must be safe for concurrent use.
type Connection interface {
	Send(payload any) error
	IsOpen() bool
	Close() error
}
