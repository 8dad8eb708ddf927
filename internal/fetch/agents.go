// Package fetch retrieves and enriches live backend data for the dashboard.
package fetch

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/mctl-dev/mctl/internal/models"
)

// Display fallbacks used when context resolution comes up empty.
const (
	unknownProject = "Unknown Project"
	unknownSession = "Unknown Session"
	unknownTask    = "Unknown Task"
)

// AgentSource is the authoritative cross-session agent list.
type AgentSource interface {
	GetAllActiveAgents(ctx context.Context) ([]models.Agent, error)
}

// ContextStore resolves display context and serves as the fallback data
// source when the backend is unreachable.
type ContextStore interface {
	GetSession(id string) (*models.Session, error)
	GetProjectByPath(path string) (*models.Project, error)
	ListAgents() ([]models.Agent, error)
}

// AgentsResult is one resolved fetch. When Degraded is set the agents came
// from the local cache and Err carries the primary failure; the data is
// usable but durations may be approximate or zero.
type AgentsResult struct {
	Agents    []models.ActiveAgentWithContext
	Degraded  bool
	Err       error
	FetchedAt time.Time
}

// AgentFetcher retrieves the live agent list and enriches each entry with
// project, session, and task context.
//
// FetchActiveAgents is safe to call concurrently with itself; overlapping
// calls each run to completion and the snapshot reflects whichever call
// resolved last.
type AgentFetcher struct {
	source AgentSource
	store  ContextStore

	mu   sync.Mutex
	last AgentsResult
}

// NewAgentFetcher creates an agent fetcher.
func NewAgentFetcher(source AgentSource, store ContextStore) *AgentFetcher {
	return &AgentFetcher{source: source, store: store}
}

// FetchActiveAgents fetches and enriches the active agent list. On primary
// failure it falls back to the non-idle agents in the local cache; the
// returned result then carries both the cached data and the primary error.
// The returned error is non-nil only when the fallback fails too.
func (f *AgentFetcher) FetchActiveAgents(ctx context.Context) (AgentsResult, error) {
	now := time.Now()

	agents, primaryErr := f.source.GetAllActiveAgents(ctx)
	result := AgentsResult{FetchedAt: now}

	if primaryErr == nil {
		result.Agents = f.enrich(agents, now)
	} else {
		cached, cacheErr := f.store.ListAgents()
		if cacheErr != nil {
			return AgentsResult{}, cacheErr
		}
		var active []models.Agent
		for _, agent := range cached {
			if agent.Status != models.AgentStatusIdle {
				active = append(active, agent)
			}
		}
		result.Agents = f.enrich(active, now)
		result.Degraded = true
		result.Err = primaryErr
	}

	f.mu.Lock()
	f.last = result
	f.mu.Unlock()
	return result, nil
}

// Snapshot returns the most recently resolved result.
func (f *AgentFetcher) Snapshot() AgentsResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

// enrich resolves display context for each agent independently; a resolution
// failure degrades only that agent's fields to their unknown fallbacks.
func (f *AgentFetcher) enrich(agents []models.Agent, now time.Time) []models.ActiveAgentWithContext {
	out := make([]models.ActiveAgentWithContext, 0, len(agents))
	for _, agent := range agents {
		enriched := models.ActiveAgentWithContext{
			Agent:       agent,
			ProjectName: unknownProject,
			SessionName: unknownSession,
			TaskTitle:   unknownTask,
			Duration:    agentDuration(agent, now),
		}

		session, err := f.store.GetSession(agent.SessionID)
		if err == nil && session != nil {
			if session.Name != "" {
				enriched.SessionName = session.Name
			}
			enriched.ProjectPath = session.ProjectPath

			project, err := f.store.GetProjectByPath(session.ProjectPath)
			if err == nil && project != nil {
				enriched.ProjectName = project.DisplayName()
			} else if session.ProjectPath != "" {
				enriched.ProjectName = filepath.Base(session.ProjectPath)
			}

			for _, task := range session.Tasks {
				if task.ID == agent.TaskID && task.Title != "" {
					enriched.TaskTitle = task.Title
					break
				}
			}
		}

		out = append(out, enriched)
	}
	return out
}

// agentDuration is wall-clock time since the agent's earliest log entry,
// clamped to zero. Agents with no log history report zero.
func agentDuration(agent models.Agent, now time.Time) time.Duration {
	if len(agent.Logs) == 0 {
		return 0
	}
	earliest := agent.Logs[0].Timestamp
	for _, entry := range agent.Logs[1:] {
		if entry.Timestamp.Before(earliest) {
			earliest = entry.Timestamp
		}
	}
	d := now.Sub(earliest)
	if d < 0 {
		return 0
	}
	return d
}
