package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/wearable-stream-broker/internal/core/domain"
)

func TestStartStream_CommandsDevice(t *testing.T) {
	svc := NewStreamService(nil, nil)
	device := newConnMock()
	sess := deviceSession(device)

	streamID, err := svc.StartStream(context.Background(), sess, "com.example.tv", "rtmp://ingest/live", nil, nil)
	if err != nil {
		t.Fatalf("StartStream returned error: %v", err)
	}
	if streamID == "" {
		t.Fatalf("expected a stream id")
	}

	sent := device.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("expected one device command, got %d", len(sent))
	}
	cmd, ok := sent[0].(domain.StartRtmpStreamCommand)
	if !ok || cmd.StreamID != streamID || cmd.RtmpURL != "rtmp://ingest/live" {
		t.Fatalf("unexpected command: %+v", sent[0])
	}

	if got, ok := svc.ActiveStreamID(sess.ID, "com.example.tv"); !ok || got != streamID {
		t.Fatalf("expected active stream %q, got %q (active=%v)", streamID, got, ok)
	}
	if status, ok := svc.Snapshot(sess.ID); !ok || status.Status != domain.StreamStatusInitializing {
		t.Fatalf("expected initializing snapshot, got %+v (present=%v)", status, ok)
	}
}

func TestStartStream_SecondStartRejected(t *testing.T) {
	svc := NewStreamService(nil, nil)
	device := newConnMock()
	sess := deviceSession(device)
	ctx := context.Background()

	if _, err := svc.StartStream(ctx, sess, "com.example.tv", "rtmp://a", nil, nil); err != nil {
		t.Fatalf("first start returned error: %v", err)
	}
	if _, err := svc.StartStream(ctx, sess, "com.example.tv", "rtmp://b", nil, nil); !errors.Is(err, ErrStreamAlreadyActive) {
		t.Fatalf("expected ErrStreamAlreadyActive, got %v", err)
	}
	if len(device.sentMessages()) != 1 {
		t.Fatalf("rejected start must not reach the device")
	}

	// A different app in the same session may stream concurrently.
	if _, err := svc.StartStream(ctx, sess, "com.example.other", "rtmp://c", nil, nil); err != nil {
		t.Fatalf("start for second app returned error: %v", err)
	}
}

func TestStartStream_DeviceUnavailable(t *testing.T) {
	svc := NewStreamService(nil, nil)
	sess := NewSession("sess-1", "user@example.com", time.Now().UTC())

	if _, err := svc.StartStream(context.Background(), sess, "com.example.tv", "rtmp://a", nil, nil); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if _, ok := svc.ActiveStreamID(sess.ID, "com.example.tv"); ok {
		t.Fatalf("failed start must not leave an active slot")
	}
}

func TestStopStream_InactiveIsNoOp(t *testing.T) {
	svc := NewStreamService(nil, nil)
	device := newConnMock()
	sess := deviceSession(device)

	if err := svc.StopStream(context.Background(), sess, "com.example.tv"); err != nil {
		t.Fatalf("StopStream returned error: %v", err)
	}
	if len(device.sentMessages()) != 0 {
		t.Fatalf("stop without an active stream must not reach the device")
	}
}

func TestStopStream_CommandsDevice(t *testing.T) {
	svc := NewStreamService(nil, nil)
	device := newConnMock()
	sess := deviceSession(device)
	ctx := context.Background()

	streamID, err := svc.StartStream(ctx, sess, "com.example.tv", "rtmp://a", nil, nil)
	if err != nil {
		t.Fatalf("StartStream returned error: %v", err)
	}

	if err := svc.StopStream(ctx, sess, "com.example.tv"); err != nil {
		t.Fatalf("StopStream returned error: %v", err)
	}

	sent := device.sentMessages()
	cmd, ok := sent[len(sent)-1].(domain.StopRtmpStreamCommand)
	if !ok || cmd.StreamID != streamID {
		t.Fatalf("unexpected stop command: %+v", sent[len(sent)-1])
	}
}

func TestStopStream_DeviceGoneSettlesLocally(t *testing.T) {
	svc := NewStreamService(nil, nil)
	device := newConnMock()
	sess := deviceSession(device)
	ctx := context.Background()

	if _, err := svc.StartStream(ctx, sess, "com.example.tv", "rtmp://a", nil, nil); err != nil {
		t.Fatalf("StartStream returned error: %v", err)
	}

	_ = device.Close()

	if err := svc.StopStream(ctx, sess, "com.example.tv"); err != nil {
		t.Fatalf("StopStream returned error: %v", err)
	}
	if _, ok := svc.ActiveStreamID(sess.ID, "com.example.tv"); ok {
		t.Fatalf("expected active slot released")
	}
	if status, ok := svc.Snapshot(sess.ID); !ok || status.Status != domain.StreamStatusStopped {
		t.Fatalf("expected stopped snapshot, got %+v (present=%v)", status, ok)
	}
}

func TestHandleStreamStatus_TerminalReleasesSlot(t *testing.T) {
	svc := NewStreamService(nil, nil)
	device := newConnMock()
	sess := deviceSession(device)
	ctx := context.Background()

	streamID, err := svc.StartStream(ctx, sess, "com.example.tv", "rtmp://a", nil, nil)
	if err != nil {
		t.Fatalf("StartStream returned error: %v", err)
	}

	// Non-terminal statuses keep the slot held.
	svc.HandleStreamStatus(ctx, sess, domain.StreamStatus{StreamID: streamID, PackageName: "com.example.tv", Status: domain.StreamStatusStreaming})
	if _, ok := svc.ActiveStreamID(sess.ID, "com.example.tv"); !ok {
		t.Fatalf("streaming status must not release the slot")
	}

	normalized := svc.HandleStreamStatus(ctx, sess, domain.StreamStatus{StreamID: streamID, PackageName: "com.example.tv", Status: domain.StreamStatusStopped})
	if normalized.Timestamp.IsZero() {
		t.Fatalf("expected normalized status to carry a timestamp")
	}
	if _, ok := svc.ActiveStreamID(sess.ID, "com.example.tv"); ok {
		t.Fatalf("terminal status must release the slot")
	}

	// The app can start a fresh stream afterwards.
	if _, err := svc.StartStream(ctx, sess, "com.example.tv", "rtmp://b", nil, nil); err != nil {
		t.Fatalf("restart after terminal status returned error: %v", err)
	}
}

func TestHandleStreamStatus_ReplacesSnapshotWholesale(t *testing.T) {
	svc := NewStreamService(nil, nil)
	device := newConnMock()
	sess := deviceSession(device)
	ctx := context.Background()

	svc.HandleStreamStatus(ctx, sess, domain.StreamStatus{StreamID: "s1", Status: domain.StreamStatusConnecting, ErrorDetails: "handshake slow"})
	svc.HandleStreamStatus(ctx, sess, domain.StreamStatus{StreamID: "s1", Status: domain.StreamStatusStreaming})

	status, ok := svc.Snapshot(sess.ID)
	if !ok || status.Status != domain.StreamStatusStreaming {
		t.Fatalf("expected latest snapshot, got %+v", status)
	}
	if status.ErrorDetails != "" {
		t.Fatalf("expected stale fields dropped on replacement, got %+v", status)
	}
}

func TestStreamTeardownSession(t *testing.T) {
	svc := NewStreamService(nil, nil)
	device := newConnMock()
	sess := deviceSession(device)
	ctx := context.Background()

	if _, err := svc.StartStream(ctx, sess, "com.example.tv", "rtmp://a", nil, nil); err != nil {
		t.Fatalf("StartStream returned error: %v", err)
	}

	svc.TeardownSession(sess.ID)

	if _, ok := svc.ActiveStreamID(sess.ID, "com.example.tv"); ok {
		t.Fatalf("expected active slot cleared by teardown")
	}
	if _, ok := svc.Snapshot(sess.ID); ok {
		t.Fatalf("expected snapshot cleared by teardown")
	}

	// Idempotent.
	svc.TeardownSession(sess.ID)
}
