package usecase

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrRequestTimedOut indicates no response arrived within the deadline.
	ErrRequestTimedOut = errors.New("correlated request timed out")
	// ErrRequestCancelled indicates the pending request was cancelled before
	// a response arrived, e.g. on session teardown.
	ErrRequestCancelled = errors.New("correlated request cancelled")
)

// Outcome is the single resolution of a pending correlated request.
type Outcome struct {
	Value any
	Err   error
}

type pendingRequest struct {
	id        string
	kind      string
	sessionID string
	createdAt time.Time
	timer     *time.Timer
	done      chan Outcome
}

// Correlator binds outbound hardware-action requests to their eventual
// responses. Every pending entry resolves exactly once: removal from the
// pending map under the lock is the atomic claim, so whichever of response,
// timeout, or cancellation arrives first wins and later arrivals no-op.
type Correlator struct {
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]*pendingRequest
}

// NewCorrelator constructs a Correlator with the given per-request timeout.
func NewCorrelator(timeout time.Duration, logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{
		timeout: timeout,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		pending: make(map[string]*pendingRequest),
	}
}

// Register tracks a new pending request and arms its timeout. The returned
// channel yields exactly one Outcome.
func (c *Correlator) Register(requestID, kind, sessionID string) <-chan Outcome {
	req := &pendingRequest{
		id:        requestID,
		kind:      kind,
		sessionID: sessionID,
		createdAt: c.now(),
		done:      make(chan Outcome, 1),
	}
	req.timer = time.AfterFunc(c.timeout, func() {
		c.complete(requestID, Outcome{Err: ErrRequestTimedOut})
	})

	c.mu.Lock()
	c.pending[requestID] = req
	c.mu.Unlock()

	return req.done
}

// Resolve fulfills a pending request with a response value. A late or
// duplicate resolution is a logged no-op, never an error.
func (c *Correlator) Resolve(requestID string, value any) bool {
	return c.complete(requestID, Outcome{Value: value})
}

// Cancel rejects a single pending request with the supplied reason.
func (c *Correlator) Cancel(requestID string, reason error) bool {
	return c.complete(requestID, Outcome{Err: cancellation(reason)})
}

// CancelSession rejects every pending request tied to the session and
// returns how many were cancelled. Afterwards no entry for the session
// remains pending.
func (c *Correlator) CancelSession(sessionID string, reason error) int {
	return c.cancelWhere(func(req *pendingRequest) bool { return req.sessionID == sessionID }, reason)
}

// CancelAll rejects every pending request, leaving the pending set empty.
func (c *Correlator) CancelAll(reason error) int {
	return c.cancelWhere(func(*pendingRequest) bool { return true }, reason)
}

// PendingCount reports how many requests are currently awaiting resolution.
func (c *Correlator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *Correlator) cancelWhere(match func(*pendingRequest) bool, reason error) int {
	c.mu.Lock()
	var claimed []*pendingRequest
	for id, req := range c.pending {
		if match(req) {
			claimed = append(claimed, req)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	outcome := Outcome{Err: cancellation(reason)}
	for _, req := range claimed {
		req.timer.Stop()
		req.done <- outcome
	}
	return len(claimed)
}

func (c *Correlator) complete(requestID string, outcome Outcome) bool {
	c.mu.Lock()
	req, ok := c.pending[requestID]
	if ok {
		delete(c.pending, requestID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("resolution for unknown or already-resolved request",
			zap.String("request_id", requestID),
		)
		return false
	}

	req.timer.Stop()
	req.done <- outcome
	return true
}

func cancellation(reason error) error {
	if reason == nil {
		return ErrRequestCancelled
	}
	if errors.Is(reason, ErrRequestCancelled) {
		return reason
	}
	return fmt.Errorf("%w: %w", ErrRequestCancelled, reason)
}
