package usecase

import (
	"errors"
	"testing"
	"time"
)

func TestCorrelator_ResolveDeliversValue(t *testing.T) {
	c := NewCorrelator(time.Second, nil)

	done := c.Register("req-1", "photo", "sess-1")

	if !c.Resolve("req-1", "payload") {
		t.Fatalf("expected resolution to claim the pending request")
	}

	outcome := <-done
	if outcome.Err != nil {
		t.Fatalf("unexpected error: %v", outcome.Err)
	}
	if outcome.Value != "payload" {
		t.Fatalf("expected payload, got %v", outcome.Value)
	}
	if c.PendingCount() != 0 {
		t.Fatalf("expected empty pending set, got %d", c.PendingCount())
	}
}

func TestCorrelator_Timeout(t *testing.T) {
	c := NewCorrelator(10*time.Millisecond, nil)

	done := c.Register("req-1", "photo", "sess-1")

	select {
	case outcome := <-done:
		if !errors.Is(outcome.Err, ErrRequestTimedOut) {
			t.Fatalf("expected ErrRequestTimedOut, got %v", outcome.Err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout outcome never arrived")
	}

	// A response arriving after the timeout is a no-op.
	if c.Resolve("req-1", "late") {
		t.Fatalf("expected late resolution to be rejected")
	}
}

func TestCorrelator_DuplicateResolveIsNoOp(t *testing.T) {
	c := NewCorrelator(time.Second, nil)
	done := c.Register("req-1", "photo", "sess-1")

	if !c.Resolve("req-1", "first") {
		t.Fatalf("first resolution should win")
	}
	if c.Resolve("req-1", "second") {
		t.Fatalf("second resolution should be a no-op")
	}

	outcome := <-done
	if outcome.Value != "first" {
		t.Fatalf("expected first value, got %v", outcome.Value)
	}

	select {
	case extra := <-done:
		t.Fatalf("unexpected second outcome: %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCorrelator_CancelWrapsReason(t *testing.T) {
	c := NewCorrelator(time.Second, nil)
	done := c.Register("req-1", "photo", "sess-1")

	cause := errors.New("connection dropped")
	if !c.Cancel("req-1", cause) {
		t.Fatalf("expected cancellation to claim the request")
	}

	outcome := <-done
	if !errors.Is(outcome.Err, ErrRequestCancelled) {
		t.Fatalf("expected ErrRequestCancelled, got %v", outcome.Err)
	}
}

func TestCorrelator_CancelSessionScopesToSession(t *testing.T) {
	c := NewCorrelator(time.Second, nil)

	doneA := c.Register("req-a", "photo", "sess-1")
	doneB := c.Register("req-b", "photo", "sess-1")
	doneC := c.Register("req-c", "photo", "sess-2")

	if n := c.CancelSession("sess-1", ErrSessionClosed); n != 2 {
		t.Fatalf("expected two cancellations, got %d", n)
	}

	for _, done := range []<-chan Outcome{doneA, doneB} {
		outcome := <-done
		if !errors.Is(outcome.Err, ErrRequestCancelled) {
			t.Fatalf("expected ErrRequestCancelled, got %v", outcome.Err)
		}
	}

	if c.PendingCount() != 1 {
		t.Fatalf("expected the other session's request to survive, got %d pending", c.PendingCount())
	}

	if !c.Resolve("req-c", "still here") {
		t.Fatalf("expected surviving request to resolve")
	}
	<-doneC
}

func TestCorrelator_CancelAll(t *testing.T) {
	c := NewCorrelator(time.Second, nil)

	var channels []<-chan Outcome
	for _, id := range []string{"req-a", "req-b", "req-c"} {
		channels = append(channels, c.Register(id, "photo", "sess-1"))
	}

	if n := c.CancelAll(nil); n != 3 {
		t.Fatalf("expected three cancellations, got %d", n)
	}
	if c.PendingCount() != 0 {
		t.Fatalf("expected empty pending set, got %d", c.PendingCount())
	}
	for _, done := range channels {
		outcome := <-done
		if !errors.Is(outcome.Err, ErrRequestCancelled) {
			t.Fatalf("expected ErrRequestCancelled, got %v", outcome.Err)
		}
	}
}
