package usecase

import (
	"time"

	"go.uber.org/zap"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
)

// Broadcaster fans classified events out to every app connection whose
// subscription matches. Delivery is best-effort per recipient: one closed or
// failing connection never blocks the others, and sends to a single app keep
// the publish call order.
type Broadcaster struct {
	subs   *SubscriptionService
	logger *zap.Logger
	now    func() time.Time
}

// NewBroadcaster constructs a Broadcaster over the subscription store.
func NewBroadcaster(subs *SubscriptionService, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		subs:   subs,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (b *Broadcaster) WithClock(clock func() time.Time) *Broadcaster {
	if clock != nil {
		b.now = clock
	}
	return b
}

// Publish delivers the payload to every subscribed app with an open
// connection and returns how many deliveries succeeded.
func (b *Broadcaster) Publish(sess *Session, stream string, payload any) int {
	packages := b.subs.SubscribedApps(sess.ID, stream)
	if len(packages) == 0 {
		return 0
	}

	envelope := domain.DataStreamMessage{
		Type:       domain.MessageTypeDataStream,
		StreamType: stream,
		SessionID:  sess.ID,
		Data:       payload,
		Timestamp:  b.now(),
	}

	delivered := 0
	for _, pkg := range packages {
		conn := sess.AppConnection(pkg)
		if conn == nil || !conn.IsOpen() {
			continue
		}
		if err := conn.Send(envelope); err != nil {
			b.logger.Warn("broadcast delivery failed",
				zap.String("session_id", sess.ID),
				zap.String("package_name", pkg),
				zap.String("stream", stream),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// PublishToAll delivers the payload to every open app connection on the
// session regardless of subscriptions. Correlated poll fulfillments go
// through here: the requesting app may not subscribe to the stream at all.
func (b *Broadcaster) PublishToAll(sess *Session, stream string, payload any) int {
	envelope := domain.DataStreamMessage{
		Type:       domain.MessageTypeDataStream,
		StreamType: stream,
		SessionID:  sess.ID,
		Data:       payload,
		Timestamp:  b.now(),
	}

	delivered := 0
	for pkg, conn := range sess.AppConnections() {
		if conn == nil || !conn.IsOpen() {
			continue
		}
		if err := conn.Send(envelope); err != nil {
			b.logger.Warn("broadcast delivery failed",
				zap.String("session_id", sess.ID),
				zap.String("package_name", pkg),
				zap.String("stream", stream),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}

// PublishDatetime stores the user-visible datetime on the session and pushes
// an update_datetime custom message to apps subscribed to the generic
// custom-message stream.
func (b *Broadcaster) PublishDatetime(sess *Session, datetime string) int {
	sess.SetDatetime(datetime)

	msg := domain.CustomMessage{
		Type:      domain.MessageTypeCustomMessage,
		Action:    domain.CustomActionUpdateDatetime,
		Payload:   map[string]string{"datetime": datetime},
		Timestamp: b.now(),
	}

	delivered := 0
	for _, pkg := range b.subs.SubscribedApps(sess.ID, string(domain.StreamCustomMessage)) {
		conn := sess.AppConnection(pkg)
		if conn == nil || !conn.IsOpen() {
			continue
		}
		if err := conn.Send(msg); err != nil {
			b.logger.Warn("datetime delivery failed",
				zap.String("session_id", sess.ID),
				zap.String("package_name", pkg),
				zap.Error(err),
			)
			continue
		}
		delivered++
	}
	return delivered
}
