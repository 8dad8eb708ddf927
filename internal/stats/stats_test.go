package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mctl-dev/mctl/internal/models"
)

var now = time.Date(2025, 6, 12, 15, 30, 0, 0, time.Local)

func timePtr(t time.Time) *time.Time { return &t }

func TestComputeGlobalStatsCounts(t *testing.T) {
	projects := []models.Project{
		{ID: "p1", Path: "/a"},
		{ID: "p2", Path: "/b"},
		{ID: "p3", Path: "/c"},
	}
	sessions := []models.Session{
		{ID: "s1", ProjectPath: "/a", Status: models.SessionStatusActive, Tasks: []models.Task{
			{ID: "t1", Status: models.TaskStatusInProgress},
			{ID: "t2", Status: models.TaskStatusCompleted, CompletedAt: timePtr(now.Add(-time.Hour))},
			{ID: "t3", Status: models.TaskStatusCompleted, CompletedAt: timePtr(now.AddDate(0, 0, -1))},
		}},
		{ID: "s2", ProjectPath: "/a", Status: models.SessionStatusActive},
		{ID: "s3", ProjectPath: "/b", Status: models.SessionStatusPaused},
	}
	agents := []models.Agent{
		{ID: "a1", SessionID: "s1", Status: models.AgentStatusImplementing, Cost: 1.25},
		{ID: "a2", SessionID: "s1", Status: models.AgentStatusIdle, Cost: 0.50},
		{ID: "a3", SessionID: "s3", Status: models.AgentStatusThinking, Cost: 2.00},
	}

	gs := ComputeGlobalStats(projects, sessions, agents, now)

	assert.Equal(t, 3, gs.TotalProjects)
	assert.Equal(t, 1, gs.ActiveProjects, "only /a has an active session")
	assert.Equal(t, 2, gs.ActiveAgents)
	assert.Equal(t, 1, gs.TasksInProgress)
	assert.Equal(t, 1, gs.TasksCompletedToday, "yesterday's completion excluded")
	assert.InDelta(t, 3.25, gs.TotalCostToday, 1e-9, "idle agent without today's logs excluded")
}

func TestComputeGlobalStatsTotalProjectsInvariant(t *testing.T) {
	for _, n := range []int{0, 1, 7} {
		projects := make([]models.Project, n)
		gs := ComputeGlobalStats(projects, nil, nil, now)
		assert.Equal(t, n, gs.TotalProjects)
	}
}

func TestComputeGlobalStatsEmptyInputs(t *testing.T) {
	gs := ComputeGlobalStats(nil, nil, nil, now)
	assert.Equal(t, models.GlobalStats{}, gs)
}

func TestComputeGlobalStatsDanglingForeignKeys(t *testing.T) {
	// Sessions pointing at unknown projects and agents pointing at unknown
	// sessions must degrade gracefully, never panic.
	sessions := []models.Session{
		{ID: "s1", ProjectPath: "/nowhere", Status: models.SessionStatusActive},
	}
	agents := []models.Agent{
		{ID: "a1", SessionID: "ghost", Status: models.AgentStatusTesting, Cost: 1},
	}
	gs := ComputeGlobalStats(nil, sessions, agents, now)
	assert.Equal(t, 0, gs.TotalProjects)
	assert.Equal(t, 1, gs.ActiveProjects)
	assert.Equal(t, 1, gs.ActiveAgents)
}

func TestComputeGlobalStatsCostRollup(t *testing.T) {
	tests := []struct {
		name  string
		agent models.Agent
		want  float64
	}{
		{
			name:  "latest_log_today",
			agent: models.Agent{Status: models.AgentStatusIdle, Cost: 3, Logs: []models.LogEntry{{Timestamp: now.Add(-2 * time.Hour)}}},
			want:  3,
		},
		{
			name:  "latest_log_yesterday",
			agent: models.Agent{Status: models.AgentStatusIdle, Cost: 3, Logs: []models.LogEntry{{Timestamp: now.AddDate(0, 0, -1)}}},
			want:  0,
		},
		{
			name:  "no_logs_active",
			agent: models.Agent{Status: models.AgentStatusReading, Cost: 3},
			want:  3,
		},
		{
			name:  "no_logs_idle",
			agent: models.Agent{Status: models.AgentStatusIdle, Cost: 3},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gs := ComputeGlobalStats(nil, nil, []models.Agent{tt.agent}, now)
			assert.InDelta(t, tt.want, gs.TotalCostToday, 1e-9)
		})
	}
}

func TestComputeProjectStatusesHealth(t *testing.T) {
	project := models.Project{ID: "p1", Path: "/a"}

	tests := []struct {
		name     string
		sessions []models.Session
		want     models.Health
	}{
		{
			name: "active_session_no_tasks_is_warning",
			sessions: []models.Session{
				{ID: "s1", ProjectPath: "/a", Status: models.SessionStatusActive},
			},
			want: models.HealthWarning,
		},
		{
			name: "in_progress_task_is_healthy",
			sessions: []models.Session{
				{ID: "s1", ProjectPath: "/a", Status: models.SessionStatusActive, Tasks: []models.Task{
					{ID: "t1", Status: models.TaskStatusInProgress},
				}},
			},
			want: models.HealthHealthy,
		},
		{
			name: "failed_today_overrides_in_progress",
			sessions: []models.Session{
				{ID: "s1", ProjectPath: "/a", Status: models.SessionStatusActive, Tasks: []models.Task{
					{ID: "t1", Status: models.TaskStatusInProgress},
					{ID: "t2", Status: models.TaskStatusFailed, CompletedAt: timePtr(now.Add(-time.Minute))},
				}},
			},
			want: models.HealthError,
		},
		{
			name: "failure_yesterday_does_not_error",
			sessions: []models.Session{
				{ID: "s1", ProjectPath: "/a", Status: models.SessionStatusActive, Tasks: []models.Task{
					{ID: "t1", Status: models.TaskStatusInProgress},
					{ID: "t2", Status: models.TaskStatusFailed, CompletedAt: timePtr(now.AddDate(0, 0, -1))},
				}},
			},
			want: models.HealthHealthy,
		},
		{
			name:     "no_sessions_is_idle",
			sessions: nil,
			want:     models.HealthIdle,
		},
		{
			name: "paused_session_no_tasks_is_idle",
			sessions: []models.Session{
				{ID: "s1", ProjectPath: "/a", Status: models.SessionStatusPaused},
			},
			want: models.HealthIdle,
		},
		{
			name: "paused_session_with_in_progress_task_is_healthy",
			sessions: []models.Session{
				{ID: "s1", ProjectPath: "/a", Status: models.SessionStatusPaused, Tasks: []models.Task{
					{ID: "t1", Status: models.TaskStatusInProgress},
				}},
			},
			want: models.HealthHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			statuses := ComputeProjectStatuses([]models.Project{project}, tt.sessions, nil, now)
			require.Len(t, statuses, 1)
			assert.Equal(t, tt.want, statuses[0].Health)
		})
	}
}

func TestComputeProjectStatusesRollups(t *testing.T) {
	projects := []models.Project{{ID: "p1", Path: "/a"}, {ID: "p2", Path: "/b"}}
	created := now.Add(-3 * time.Hour)
	resumed := now.Add(-10 * time.Minute)
	sessions := []models.Session{
		{ID: "s1", ProjectPath: "/a", Status: models.SessionStatusActive, CreatedAt: created, Tasks: []models.Task{
			{ID: "t1", Status: models.TaskStatusCompleted},
			{ID: "t2", Status: models.TaskStatusInProgress},
		}},
		{ID: "s2", ProjectPath: "/a", Status: models.SessionStatusCompleted, CreatedAt: created, LastResumedAt: timePtr(resumed)},
	}
	agents := []models.Agent{
		{ID: "a1", SessionID: "s1", Status: models.AgentStatusCommitting, Cost: 0.75},
		{ID: "a2", SessionID: "s2", Status: models.AgentStatusIdle, Cost: 0.25},
		{ID: "a3", SessionID: "ghost", Status: models.AgentStatusTesting, Cost: 9.99},
	}

	statuses := ComputeProjectStatuses(projects, sessions, agents, now)
	require.Len(t, statuses, 2)

	a := statuses[0]
	assert.Equal(t, "p1", a.Project.ID)
	assert.Len(t, a.ActiveSessions, 1)
	assert.Equal(t, 1, a.RunningAgents, "idle agent not counted as running")
	assert.Equal(t, 2, a.TasksTotal)
	assert.Equal(t, 1, a.TasksDone)
	assert.InDelta(t, 1.0, a.TotalCost, 1e-9, "cost sums idle and running agents")
	require.NotNil(t, a.LastActivity)
	assert.True(t, a.LastActivity.Equal(resumed), "lastResumedAt wins over createdAt")

	b := statuses[1]
	assert.Equal(t, models.HealthIdle, b.Health)
	assert.Nil(t, b.LastActivity)
	assert.Zero(t, b.TotalCost)
}

func TestComputeIsIdempotent(t *testing.T) {
	projects := []models.Project{{ID: "p1", Path: "/a"}}
	sessions := []models.Session{
		{ID: "s1", ProjectPath: "/a", Status: models.SessionStatusActive, CreatedAt: now, Tasks: []models.Task{
			{ID: "t1", Status: models.TaskStatusInProgress},
		}},
	}
	agents := []models.Agent{{ID: "a1", SessionID: "s1", Status: models.AgentStatusThinking, Cost: 1}}

	gs1 := ComputeGlobalStats(projects, sessions, agents, now)
	gs2 := ComputeGlobalStats(projects, sessions, agents, now)
	assert.Equal(t, gs1, gs2)

	ps1 := ComputeProjectStatuses(projects, sessions, agents, now)
	ps2 := ComputeProjectStatuses(projects, sessions, agents, now)
	assert.Equal(t, ps1, ps2)
}
