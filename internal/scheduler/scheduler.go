// Package scheduler drives periodic dashboard refresh with adaptive pacing.
//
// The scheduler is a two-state machine, Polling and Paused, keyed off view
// visibility. While polling it invokes the refresh callback at an interval
// selected from the current active-agent count; a tick that fires while a
// previous refresh is still in flight is dropped, not queued, so refresh
// concurrency is bounded at one.
package scheduler

import (
	"sync"
	"time"
)

// State is the scheduler's current mode.
type State string

const (
	// Polling means the view is visible and the timer is armed.
	Polling State = "polling"
	// Paused means the view is hidden and no refreshes fire.
	Paused State = "paused"
)

// Refresh intervals by activity level.
const (
	intervalBusy   = 3 * time.Second
	intervalActive = 5 * time.Second
	intervalIdle   = 15 * time.Second
)

// SelectInterval picks the polling period for the given active-agent count.
// The busy tier starts strictly above five agents.
func SelectInterval(activeAgents int) time.Duration {
	switch {
	case activeAgents > 5:
		return intervalBusy
	case activeAgents >= 1:
		return intervalActive
	default:
		return intervalIdle
	}
}

// Scheduler re-runs a refresh callback while the view is visible.
type Scheduler struct {
	refresh func()

	mu       sync.Mutex
	interval time.Duration
	visible  bool
	stopped  bool
	inFlight bool
	timer    *time.Timer
}

// New creates a scheduler. The timer is armed immediately when the view
// starts out visible; otherwise the scheduler waits in Paused.
func New(refresh func(), visible bool) *Scheduler {
	s := &Scheduler{
		refresh:  refresh,
		interval: SelectInterval(0),
		visible:  visible,
	}
	if visible {
		s.mu.Lock()
		s.arm()
		s.mu.Unlock()
	}
	return s
}

// State reports Polling or Paused.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.visible && !s.stopped {
		return Polling
	}
	return Paused
}

// SetVisible transitions the state machine. Becoming hidden cancels the
// pending timer without firing. Becoming visible fires one immediate refresh
// and re-arms the recurring timer.
func (s *Scheduler) SetVisible(visible bool) {
	s.mu.Lock()
	if s.stopped || s.visible == visible {
		s.mu.Unlock()
		return
	}
	s.visible = visible

	if !visible {
		s.disarm()
		s.mu.Unlock()
		return
	}

	s.arm()
	s.mu.Unlock()
	go s.tryRefresh()
}

// SetActiveAgents recomputes the adaptive interval. A changed interval
// re-arms the pending timer with the new period rather than waiting out the
// old one.
func (s *Scheduler) SetActiveAgents(count int) {
	interval := SelectInterval(count)

	s.mu.Lock()
	defer s.mu.Unlock()
	if interval == s.interval {
		return
	}
	s.interval = interval
	if s.visible && !s.stopped && s.timer != nil {
		s.disarm()
		s.arm()
	}
}

// Stop tears the scheduler down. Safe to call repeatedly and before the
// timer was ever armed.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.disarm()
}

// arm schedules the next tick. Caller holds mu.
func (s *Scheduler) arm() {
	s.timer = time.AfterFunc(s.interval, s.tick)
}

// disarm cancels any pending tick. Caller holds mu.
func (s *Scheduler) disarm() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// tick re-arms first so a slow refresh never stalls the cadence, then runs
// the refresh unless one is already in flight.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.stopped || !s.visible {
		s.mu.Unlock()
		return
	}
	s.arm()
	s.mu.Unlock()

	s.tryRefresh()
}

// tryRefresh runs the callback with in-flight ticks dropped.
func (s *Scheduler) tryRefresh() {
	s.mu.Lock()
	if s.stopped || s.inFlight {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	s.refresh()

	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()
}
