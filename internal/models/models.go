// Package models defines the core domain types for mctl.
package models

import (
	"path/filepath"
	"time"
)

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
)

// AgentStatus represents the current activity of an agent.
type AgentStatus string

const (
	AgentStatusIdle         AgentStatus = "idle"
	AgentStatusThinking     AgentStatus = "thinking"
	AgentStatusReading      AgentStatus = "reading"
	AgentStatusImplementing AgentStatus = "implementing"
	AgentStatusTesting      AgentStatus = "testing"
	AgentStatusCommitting   AgentStatus = "committing"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Health classifies a project's current activity state.
type Health string

const (
	HealthHealthy Health = "healthy"
	HealthWarning Health = "warning"
	HealthError   Health = "error"
	HealthIdle    Health = "idle"
)

// Project is a supervised codebase registered with mission control.
type Project struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Favorite   bool      `json:"favorite"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// DisplayName returns the project name, falling back to the last path segment.
func (p Project) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return filepath.Base(p.Path)
}

// Session is a unit of work scoped to one project. Sessions reference their
// project by path, not by pointer, so a session survives project renames.
type Session struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	ProjectPath   string        `json:"project_path"`
	Status        SessionStatus `json:"status"`
	Tasks         []Task        `json:"tasks"`
	CreatedAt     time.Time     `json:"created_at"`
	LastResumedAt *time.Time    `json:"last_resumed_at,omitempty"`
}

// LastActivity returns the session's most recent lifecycle timestamp.
func (s Session) LastActivity() time.Time {
	if s.LastResumedAt != nil {
		return *s.LastResumedAt
	}
	return s.CreatedAt
}

// Task is a unit of agent work inside a session.
type Task struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"session_id"`
	Title       string     `json:"title"`
	Status      TaskStatus `json:"status"`
	DependsOn   []string   `json:"depends_on,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// LogEntry is one timestamped line of agent output.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Agent is an autonomous execution unit working a task within a session.
// The remote backend is the source of truth; the local store holds a cache
// used as the fallback data source when the backend is unreachable.
type Agent struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	TaskID    string      `json:"task_id"`
	Status    AgentStatus `json:"status"`
	Tokens    int64       `json:"tokens"`
	Cost      float64     `json:"cost"`
	Logs      []LogEntry  `json:"logs,omitempty"`
}

// ExecutionInfo is the backend's view of one running execution.
type ExecutionInfo struct {
	ExecutionID string  `json:"execution_id"`
	ProjectPath *string `json:"project_path"`
	State       *string `json:"state"`
}

// GlobalStats is the derived cross-project summary. It is recomputed on every
// aggregation pass and never persisted.
type GlobalStats struct {
	ActiveAgents        int     `json:"active_agents"`
	RunningExecutions   int     `json:"running_executions"`
	TasksInProgress     int     `json:"tasks_in_progress"`
	TasksCompletedToday int     `json:"tasks_completed_today"`
	TotalCostToday      float64 `json:"total_cost_today"`
	ActiveProjects      int     `json:"active_projects"`
	TotalProjects       int     `json:"total_projects"`
}

// ProjectStatus is the derived per-project health row.
type ProjectStatus struct {
	Project        Project    `json:"project"`
	ActiveSessions []Session  `json:"active_sessions"`
	RunningAgents  int        `json:"running_agents"`
	TasksTotal     int        `json:"tasks_total"`
	TasksDone      int        `json:"tasks_done"`
	Health         Health     `json:"health"`
	LastActivity   *time.Time `json:"last_activity,omitempty"`
	TotalCost      float64    `json:"total_cost"`
}

// ActiveAgentWithContext is an agent enriched with resolved display context.
type ActiveAgentWithContext struct {
	Agent       Agent         `json:"agent"`
	ProjectPath string        `json:"project_path"`
	ProjectName string        `json:"project_name"`
	SessionName string        `json:"session_name"`
	TaskTitle   string        `json:"task_title"`
	Duration    time.Duration `json:"duration"`
}

// ActivityEventType tags the kind of a feed event.
type ActivityEventType string

const (
	EventTaskCompleted    ActivityEventType = "task_completed"
	EventTaskStarted      ActivityEventType = "task_started"
	EventTaskFailed       ActivityEventType = "task_failed"
	EventAgentSpawned     ActivityEventType = "agent_spawned"
	EventSessionStarted   ActivityEventType = "session_started"
	EventSessionCompleted ActivityEventType = "session_completed"
)

// ActivityEvent is one notable event from the backend feed. The feed is
// append-only and backend-ordered (most recent first).
type ActivityEvent struct {
	ID          string            `json:"id"`
	Type        ActivityEventType `json:"type"`
	ProjectPath string            `json:"project_path"`
	SessionID   string            `json:"session_id"`
	Description string            `json:"description"`
	Timestamp   time.Time         `json:"timestamp"`
}

// RateLimitEvent is the payload of an agent:rate_limit_detected push event.
type RateLimitEvent struct {
	AgentID    string     `json:"agent_id"`
	Provider   string     `json:"provider"`
	Message    string     `json:"message"`
	ResetsAt   *time.Time `json:"resets_at,omitempty"`
	DetectedAt time.Time  `json:"detected_at"`
}
