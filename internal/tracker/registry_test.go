package tracker

import (
	"errors"
	"testing"
)

const (
	trackerA = "wss://tracker-a.example.com"
	trackerB = "wss://tracker-b.example.com"
)

func TestConnectedCreatesEntry(t *testing.T) {
	r := NewRegistry([]string{trackerA, trackerB})

	if err := r.OnTrackerConnected(trackerA); err != nil {
		t.Fatalf("OnTrackerConnected: %v", err)
	}

	if got := r.ReachableCount(); got != 1 {
		t.Errorf("ReachableCount = %d, want 1", got)
	}
	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot length = %d, want 1", len(snap))
	}
	if snap[0].AnnounceURL != trackerA || !snap[0].Reachable {
		t.Errorf("entry = %+v", snap[0])
	}
}

func TestUnconfiguredConnectIsAnomaly(t *testing.T) {
	r := NewRegistry([]string{trackerA})

	err := r.OnTrackerConnected("wss://rogue.example.com")
	if !errors.Is(err, ErrUnknownTracker) {
		t.Fatalf("err = %v, want ErrUnknownTracker", err)
	}

	if got := r.Anomalies.Load(); got != 1 {
		t.Errorf("Anomalies = %d, want 1", got)
	}
	if len(r.Snapshot()) != 0 {
		t.Error("anomalous connect must not create an entry")
	}
}

func TestClosedFlipsReachable(t *testing.T) {
	r := NewRegistry([]string{trackerA})

	if err := r.OnTrackerConnected(trackerA); err != nil {
		t.Fatalf("OnTrackerConnected: %v", err)
	}
	r.OnTrackerClosed(trackerA)

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("entry must survive a close, got %d entries", len(snap))
	}
	if snap[0].Reachable {
		t.Error("closed tracker must be unreachable")
	}
	if r.ReachableCount() != 0 {
		t.Errorf("ReachableCount = %d, want 0", r.ReachableCount())
	}
}

func TestCloseBeforeConnectIgnored(t *testing.T) {
	r := NewRegistry([]string{trackerA})

	r.OnTrackerClosed(trackerA)

	if len(r.Snapshot()) != 0 {
		t.Error("close without prior connect must not create an entry")
	}
}

func TestReconnectWins(t *testing.T) {
	r := NewRegistry([]string{trackerA})

	r.OnTrackerConnected(trackerA)
	r.OnTrackerClosed(trackerA)
	if err := r.OnTrackerConnected(trackerA); err != nil {
		t.Fatalf("reconnect: %v", err)
	}

	if r.ReachableCount() != 1 {
		t.Error("reconnect must flip the tracker reachable again")
	}
}

func TestWarningIsAdvisory(t *testing.T) {
	r := NewRegistry([]string{trackerA})
	r.OnTrackerConnected(trackerA)

	r.OnTrackerWarning(errors.New("malformed frame"))
	r.OnTrackerWarning(nil)

	if r.ReachableCount() != 1 {
		t.Error("warnings must not change reachability")
	}
	if r.Anomalies.Load() != 0 {
		t.Error("warnings are not anomalies")
	}
}

func TestConfigured(t *testing.T) {
	r := NewRegistry([]string{trackerA})

	if !r.Configured(trackerA) {
		t.Error("trackerA should be configured")
	}
	if r.Configured(trackerB) {
		t.Error("trackerB should not be configured")
	}
}
