// Package mission composes the store, fetchers, scheduler, and event bridge
// into the single read model consumed by the presentation layer.
package mission

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/mctl-dev/mctl/internal/backend"
	"github.com/mctl-dev/mctl/internal/bridge"
	"github.com/mctl-dev/mctl/internal/fetch"
	"github.com/mctl-dev/mctl/internal/models"
	"github.com/mctl-dev/mctl/internal/scheduler"
	"github.com/mctl-dev/mctl/internal/stats"
	"github.com/mctl-dev/mctl/internal/store"
)

// DefaultFeedLimit bounds the activity feed when no limit is configured.
const DefaultFeedLimit = 50

// Backend is the slice of the remote API the facade consumes.
type Backend interface {
	GetAllActiveAgents(ctx context.Context) ([]models.Agent, error)
	ListExecutionsWithDetails(ctx context.Context) ([]models.ExecutionInfo, error)
	GetActivityFeed(ctx context.Context, limit int) ([]models.ActivityEvent, error)
	PollCompleted(ctx context.Context) ([]string, error)
	CleanupStaleAgents(ctx context.Context) ([]string, error)
	Subscribe(event string, fn func(payload json.RawMessage)) (backend.Subscription, error)
}

// Snapshot is the immutable read model. Every refresh or store change
// replaces it wholesale; consumers may diff by identity.
type Snapshot struct {
	Stats          models.GlobalStats
	Projects       []models.ProjectStatus
	Agents         []models.ActiveAgentWithContext
	AgentsDegraded bool
	AgentsErr      error
	Feed           []models.ActivityEvent
	FeedErr        error
	UpdatedAt      time.Time
}

// Options tunes the facade.
type Options struct {
	FeedLimit int
	// Visible is the initial view visibility; the scheduler starts Polling
	// when true and Paused otherwise.
	Visible bool
}

// Control is the mission-control facade.
type Control struct {
	store     *store.Store
	backend   Backend
	agents    *fetch.AgentFetcher
	feed      *fetch.FeedFetcher
	sched     *scheduler.Scheduler
	bridge    *bridge.Bridge
	feedLimit int

	mu   sync.Mutex
	snap Snapshot

	cancelStoreSub func()
	done           chan struct{}
}

// New wires the facade together. notifier may be nil when there is no
// user-facing surface for warnings.
func New(st *store.Store, be Backend, notifier bridge.Notifier, opts Options) *Control {
	if opts.FeedLimit <= 0 {
		opts.FeedLimit = DefaultFeedLimit
	}

	c := &Control{
		store:     st,
		backend:   be,
		agents:    fetch.NewAgentFetcher(be, st),
		feed:      fetch.NewFeedFetcher(be),
		feedLimit: opts.FeedLimit,
		done:      make(chan struct{}),
	}

	c.sched = scheduler.New(c.refreshTick, opts.Visible)
	c.bridge = bridge.New(be, notifier, c.refreshTick)
	return c
}

// Start begins event subscriptions and store-change tracking. Refreshes are
// already scheduled if the view started visible.
func (c *Control) Start() {
	c.bridge.Start()

	changes, cancel := c.store.Subscribe()
	c.cancelStoreSub = cancel
	go func() {
		for {
			select {
			case <-c.done:
				return
			case <-changes:
				c.recomputeFromCache()
			}
		}
	}()
}

// Close tears everything down. Idempotent teardown is delegated to the
// scheduler and bridge.
func (c *Control) Close() {
	c.sched.Stop()
	c.bridge.Close()
	if c.cancelStoreSub != nil {
		c.cancelStoreSub()
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// SetVisible forwards view visibility to the refresh scheduler.
func (c *Control) SetVisible(visible bool) {
	c.sched.SetVisible(visible)
}

// Snapshot returns the current read model.
func (c *Control) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// refreshTick adapts RefreshAll to the parameterless callbacks the
// scheduler and bridge expect.
func (c *Control) refreshTick() {
	if err := c.RefreshAll(context.Background()); err != nil {
		log.Printf("refresh failed: %v", err)
	}
}

// RefreshAll reconciles with the backend and rebuilds the read model.
//
// The reap step is best-effort: poll_completed first, cleanup_stale_agents
// as its fallback, and neither failure blocks the refresh that follows. The
// live agents, activity feed, and execution list then refresh concurrently.
// Overlapping invocations are allowed; each runs to completion and the last
// to resolve wins.
func (c *Control) RefreshAll(ctx context.Context) error {
	c.reapFinished(ctx)

	var (
		wg        sync.WaitGroup
		agentsRes fetch.AgentsResult
		agentsErr error
		feedErr   error
		execs     []models.ExecutionInfo
		execErr   error
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		agentsRes, agentsErr = c.agents.FetchActiveAgents(ctx)
	}()
	go func() {
		defer wg.Done()
		feedErr = c.feed.Refresh(ctx, c.feedLimit)
	}()
	go func() {
		defer wg.Done()
		execs, execErr = c.backend.ListExecutionsWithDetails(ctx)
	}()
	wg.Wait()

	if agentsErr != nil {
		return agentsErr
	}

	// A successful authoritative fetch refreshes the fallback cache; a
	// degraded result came from the cache and must not be written back.
	if !agentsRes.Degraded {
		raw := make([]models.Agent, 0, len(agentsRes.Agents))
		for _, a := range agentsRes.Agents {
			raw = append(raw, a.Agent)
		}
		if err := c.store.ReplaceAgents(raw); err != nil {
			log.Printf("agent cache update failed: %v", err)
		}
	}

	snap, err := c.store.ReadSnapshot()
	if err != nil {
		return err
	}

	now := time.Now()
	gs := stats.ComputeGlobalStats(snap.Projects, snap.Sessions, snap.Agents, now)
	if execErr == nil {
		gs.RunningExecutions = countRunning(execs)
	}
	projects := stats.ComputeProjectStatuses(snap.Projects, snap.Sessions, snap.Agents, now)
	feed, feedSnapErr := c.feed.Snapshot()
	if feedErr == nil {
		feedErr = feedSnapErr
	}

	c.mu.Lock()
	c.snap = Snapshot{
		Stats:          gs,
		Projects:       projects,
		Agents:         agentsRes.Agents,
		AgentsDegraded: agentsRes.Degraded,
		AgentsErr:      agentsRes.Err,
		Feed:           feed,
		FeedErr:        feedErr,
		UpdatedAt:      now,
	}
	c.mu.Unlock()

	c.sched.SetActiveAgents(gs.ActiveAgents)
	return nil
}

// reapFinished runs the best-effort backend reconciliation. Failures are
// logged and never surfaced.
func (c *Control) reapFinished(ctx context.Context) {
	ids, err := c.backend.PollCompleted(ctx)
	if err != nil {
		ids, err = c.backend.CleanupStaleAgents(ctx)
	}
	if err != nil {
		log.Printf("agent reconciliation skipped: %v", err)
		return
	}
	if len(ids) == 0 {
		return
	}
	if err := c.store.MarkAgentsIdle(ids); err != nil {
		log.Printf("marking reaped agents idle failed: %v", err)
	}
}

// recomputeFromCache rebuilds the derived values after a store change
// without touching the network. Live agent and feed data are kept as-is.
func (c *Control) recomputeFromCache() {
	snap, err := c.store.ReadSnapshot()
	if err != nil {
		log.Printf("cache read failed: %v", err)
		return
	}

	now := time.Now()
	gs := stats.ComputeGlobalStats(snap.Projects, snap.Sessions, snap.Agents, now)
	projects := stats.ComputeProjectStatuses(snap.Projects, snap.Sessions, snap.Agents, now)

	c.mu.Lock()
	c.snap.Stats = gs
	c.snap.Projects = projects
	c.snap.UpdatedAt = now
	c.mu.Unlock()

	c.sched.SetActiveAgents(gs.ActiveAgents)
}

// countRunning counts executions the backend reports in a live state.
// Entries with a null state are skipped rather than failing the rollup.
func countRunning(execs []models.ExecutionInfo) int {
	n := 0
	for _, e := range execs {
		if e.State == nil {
			continue
		}
		switch *e.State {
		case "completed", "failed", "cancelled":
		default:
			n++
		}
	}
	return n
}
