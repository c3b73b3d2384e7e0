package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeReconnector struct {
	result bool
	calls  atomic.Int64
}

func (f *fakeReconnector) TryReconnect(context.Context) bool {
	f.calls.Add(1)
	return f.result
}

func shortDetectorWindows(t *testing.T) {
	t.Helper()
	oldGrace, oldConfirm := graceWindow, confirmWindow
	graceWindow = 30 * time.Millisecond
	confirmWindow = 20 * time.Millisecond
	t.Cleanup(func() {
		graceWindow = oldGrace
		confirmWindow = oldConfirm
	})
}

func TestDetectorReturnWithinGraceCancels(t *testing.T) {
	shortDetectorWindows(t)

	var declared atomic.Int64
	var mu sync.Mutex
	present := false

	d := NewDetector(nil,
		func() bool { mu.Lock(); defer mu.Unlock(); return present },
		func() bool { return true },
		func() { declared.Add(1) })

	d.Arm()
	if d.currentPhase() != phaseGrace {
		t.Fatalf("phase = %v, want grace", d.currentPhase())
	}

	// Partner comes back before the grace window elapses.
	mu.Lock()
	present = true
	mu.Unlock()
	d.Observe()

	time.Sleep(100 * time.Millisecond)
	if got := declared.Load(); got != 0 {
		t.Fatalf("declared %d times, want 0", got)
	}
	if d.currentPhase() != phasePresent {
		t.Fatalf("phase = %v, want present", d.currentPhase())
	}
}

func TestDetectorDeclaresAfterWindowsAndFailedReconnect(t *testing.T) {
	shortDetectorWindows(t)

	rec := &fakeReconnector{result: false}
	var declared atomic.Int64
	d := NewDetector(rec,
		func() bool { return false },
		func() bool { return true },
		func() { declared.Add(1) })

	d.Arm()
	time.Sleep(150 * time.Millisecond)

	if got := rec.calls.Load(); got != 1 {
		t.Fatalf("reconnect attempts = %d, want 1", got)
	}
	if got := declared.Load(); got != 1 {
		t.Fatalf("declared %d times, want 1", got)
	}
	if d.currentPhase() != phaseDeclared {
		t.Fatalf("phase = %v, want declared", d.currentPhase())
	}
}

func TestDetectorReconnectSuccessSuppressesDeclaration(t *testing.T) {
	shortDetectorWindows(t)

	rec := &fakeReconnector{result: true}
	var declared atomic.Int64
	d := NewDetector(rec,
		func() bool { return false },
		func() bool { return true },
		func() { declared.Add(1) })

	d.Arm()
	time.Sleep(150 * time.Millisecond)

	if got := rec.calls.Load(); got != 1 {
		t.Fatalf("reconnect attempts = %d, want 1", got)
	}
	if got := declared.Load(); got != 0 {
		t.Fatalf("declared %d times, want 0", got)
	}
	if d.currentPhase() != phasePresent {
		t.Fatalf("phase = %v, want present", d.currentPhase())
	}
}

func TestDetectorArmIgnoredBeforeRemoteEverSeen(t *testing.T) {
	shortDetectorWindows(t)

	var declared atomic.Int64
	d := NewDetector(nil,
		func() bool { return false },
		func() bool { return false },
		func() { declared.Add(1) })

	d.Arm()
	if d.currentPhase() != phasePresent {
		t.Fatalf("phase = %v, want present", d.currentPhase())
	}
	time.Sleep(100 * time.Millisecond)
	if got := declared.Load(); got != 0 {
		t.Fatalf("declared %d times, want 0", got)
	}
}

func TestDetectorStopSilencesPendingWindows(t *testing.T) {
	shortDetectorWindows(t)

	var declared atomic.Int64
	d := NewDetector(&fakeReconnector{},
		func() bool { return false },
		func() bool { return true },
		func() { declared.Add(1) })

	d.Arm()
	d.Stop()
	time.Sleep(150 * time.Millisecond)
	if got := declared.Load(); got != 0 {
		t.Fatalf("declared %d times after stop, want 0", got)
	}
}

func TestDetectorPresenceAtGraceExpiryResets(t *testing.T) {
	shortDetectorWindows(t)

	var declared atomic.Int64
	d := NewDetector(&fakeReconnector{},
		func() bool { return true },
		func() bool { return true },
		func() { declared.Add(1) })

	d.Arm()
	time.Sleep(100 * time.Millisecond)
	if got := declared.Load(); got != 0 {
		t.Fatalf("declared %d times, want 0", got)
	}
	if d.currentPhase() != phasePresent {
		t.Fatalf("phase = %v, want present", d.currentPhase())
	}
}
