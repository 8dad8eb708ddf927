package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func TestSelectInterval(t *testing.T) {
	cases := []struct {
		agents int
		want   time.Duration
	}{
		{0, 15 * time.Second},
		{1, 5 * time.Second},
		{5, 5 * time.Second},
		{6, 3 * time.Second},
		{42, 3 * time.Second},
	}
	for _, tc := range cases {
		if got := SelectInterval(tc.agents); got != tc.want {
			t.Errorf("SelectInterval(%d) = %v, want %v", tc.agents, got, tc.want)
		}
	}
}

func TestHiddenSchedulerStaysPaused(t *testing.T) {
	var calls int64
	s := New(func() { atomic.AddInt64(&calls, 1) }, false)
	defer s.Stop()

	if got := s.State(); got != Paused {
		t.Fatalf("State() = %v, want %v", got, Paused)
	}
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt64(&calls); n != 0 {
		t.Fatalf("hidden scheduler fired %d refreshes", n)
	}
}

func TestBecomingVisibleFiresOneImmediateRefresh(t *testing.T) {
	var calls int64
	s := New(func() { atomic.AddInt64(&calls, 1) }, false)
	defer s.Stop()

	s.SetVisible(true)
	waitFor(t, func() bool { return atomic.LoadInt64(&calls) == 1 }, "immediate refresh")

	if got := s.State(); got != Polling {
		t.Fatalf("State() = %v, want %v", got, Polling)
	}

	// Redundant transitions are no-ops.
	s.SetVisible(true)
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("redundant SetVisible(true) fired extra refreshes: %d", n)
	}
}

func TestBecomingHiddenCancelsPendingTick(t *testing.T) {
	var calls int64
	s := New(func() { atomic.AddInt64(&calls, 1) }, true)
	defer s.Stop()

	s.SetVisible(false)
	if got := s.State(); got != Paused {
		t.Fatalf("State() = %v, want %v", got, Paused)
	}
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt64(&calls); n != 0 {
		t.Fatalf("cancelled timer still fired %d times", n)
	}
}

func TestOverlappingRefreshIsDropped(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls int64
	s := New(func() {
		atomic.AddInt64(&calls, 1)
		close(started)
		<-release
	}, false)
	defer s.Stop()

	s.SetVisible(true)
	<-started

	// A visibility-triggered refresh while the first is still running must be
	// dropped, not queued.
	s.SetVisible(false)
	s.SetVisible(true)
	time.Sleep(50 * time.Millisecond)
	close(release)
	time.Sleep(50 * time.Millisecond)

	if n := atomic.LoadInt64(&calls); n != 1 {
		t.Fatalf("overlapping refresh ran %d times, want 1", n)
	}
}

func TestSetActiveAgentsAdjustsInterval(t *testing.T) {
	s := New(func() {}, true)
	defer s.Stop()

	s.SetActiveAgents(6)
	s.mu.Lock()
	got := s.interval
	s.mu.Unlock()
	if got != 3*time.Second {
		t.Fatalf("interval = %v, want 3s", got)
	}

	s.SetActiveAgents(0)
	s.mu.Lock()
	got = s.interval
	s.mu.Unlock()
	if got != 15*time.Second {
		t.Fatalf("interval = %v, want 15s", got)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	var calls int64
	s := New(func() { atomic.AddInt64(&calls, 1) }, true)

	s.Stop()
	s.Stop()

	// A stopped scheduler ignores visibility changes.
	s.SetVisible(false)
	s.SetVisible(true)
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt64(&calls); n != 0 {
		t.Fatalf("stopped scheduler fired %d refreshes", n)
	}
	if got := s.State(); got != Paused {
		t.Fatalf("State() = %v, want %v", got, Paused)
	}
}
