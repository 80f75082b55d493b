package registry

import "testing"

func TestLeavingStreamingResetsStats(t *testing.T) {
	m := New()
	m.SetLifecycle(Streaming)
	m.SetStats(SessionStats{FramesSent: 10, FPS: 30})
	m.SetLifecycle(Configured)

	snap := m.Snapshot()
	if snap.Stats != (SessionStats{}) {
		t.Fatalf("expected stats reset on leaving Streaming, got %+v", snap.Stats)
	}
}

func TestEnteringErrorZeroesQueueDepth(t *testing.T) {
	m := New()
	m.SetLifecycle(Streaming)
	m.SetStats(SessionStats{QueueDepth: 1})
	m.SetLifecycle(Error)

	snap := m.Snapshot()
	if snap.Stats.QueueDepth != 0 {
		t.Fatalf("expected queue depth reset to 0 on Error, got %d", snap.Stats.QueueDepth)
	}
}

func TestDefaultInputPermissionsAllTrue(t *testing.T) {
	m := New()
	p := m.InputPermissions()
	if !p.EnableInput || !p.Touch || !p.Pen || !p.Keyboard {
		t.Fatalf("expected all-true defaults, got %+v", p)
	}
}

func TestResetReturnsToIdleWithClearedState(t *testing.T) {
	m := New()
	m.SetLifecycle(Streaming)
	m.SetCodec(2)
	m.SetEncoderBackend("nvenc")
	m.SetActiveDevice("device-1")
	m.SetDisplayTarget(3)
	m.SetStats(SessionStats{FramesSent: 99})

	m.Reset()

	snap := m.Snapshot()
	if snap.Lifecycle != Idle {
		t.Fatalf("expected Idle, got %v", snap.Lifecycle)
	}
	if snap.HasCodec || snap.EncoderBackend != "" || snap.ActiveDeviceID != "" || snap.HasDisplayTarget {
		t.Fatalf("expected cleared identity fields, got %+v", snap)
	}
	if snap.Stats != (SessionStats{}) {
		t.Fatalf("expected cleared stats, got %+v", snap.Stats)
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	m := New()
	snap1 := m.Snapshot()
	m.SetCodec(1)
	if snap1.HasCodec {
		t.Fatal("expected earlier snapshot to be unaffected by later mutation")
	}
}
