// Package stats derives the dashboard summary values from store snapshots.
//
// Both entry points are pure: same inputs, same outputs, no I/O. They are
// cheap enough to run on every store-change tick, and every call builds a
// fresh value set so consumers can diff snapshots by identity.
package stats

import (
	"time"

	"github.com/mctl-dev/mctl/internal/models"
)

// ComputeGlobalStats combines store snapshots into the cross-project summary.
// now anchors the "today" rollups. Missing foreign keys degrade to zero
// contributions; this function cannot fail.
func ComputeGlobalStats(projects []models.Project, sessions []models.Session, agents []models.Agent, now time.Time) models.GlobalStats {
	gs := models.GlobalStats{
		TotalProjects: len(projects),
	}

	for _, agent := range agents {
		if agent.Status != models.AgentStatusIdle {
			gs.ActiveAgents++
		}
		if agentCostCountsToday(agent, now) {
			gs.TotalCostToday += agent.Cost
		}
	}
	// Without a dedicated execution feed the agent count stands in.
	gs.RunningExecutions = gs.ActiveAgents

	activePaths := make(map[string]struct{})
	for _, sess := range sessions {
		if sess.Status == models.SessionStatusActive {
			activePaths[sess.ProjectPath] = struct{}{}
		}
		for _, task := range sess.Tasks {
			switch task.Status {
			case models.TaskStatusInProgress:
				gs.TasksInProgress++
			case models.TaskStatusCompleted:
				if task.CompletedAt != nil && sameDay(*task.CompletedAt, now) {
					gs.TasksCompletedToday++
				}
			}
		}
	}
	gs.ActiveProjects = len(activePaths)

	return gs
}

// ComputeProjectStatuses derives one status row per project, in input order.
// Task state comes from the sessions' embedded task lists.
func ComputeProjectStatuses(projects []models.Project, sessions []models.Session, agents []models.Agent, now time.Time) []models.ProjectStatus {
	// Index sessions and agent rollups by project path once.
	sessionsByPath := make(map[string][]models.Session)
	for _, sess := range sessions {
		sessionsByPath[sess.ProjectPath] = append(sessionsByPath[sess.ProjectPath], sess)
	}

	sessionProject := make(map[string]string, len(sessions))
	for _, sess := range sessions {
		sessionProject[sess.ID] = sess.ProjectPath
	}

	runningByPath := make(map[string]int)
	costByPath := make(map[string]float64)
	for _, agent := range agents {
		path, ok := sessionProject[agent.SessionID]
		if !ok {
			continue
		}
		if agent.Status != models.AgentStatusIdle {
			runningByPath[path]++
		}
		costByPath[path] += agent.Cost
	}

	statuses := make([]models.ProjectStatus, 0, len(projects))
	for _, project := range projects {
		ps := models.ProjectStatus{
			Project:       project,
			RunningAgents: runningByPath[project.Path],
			TotalCost:     costByPath[project.Path],
		}

		var (
			lastActivity time.Time
			inProgress   int
			failedToday  bool
		)
		for _, sess := range sessionsByPath[project.Path] {
			if sess.Status == models.SessionStatusActive {
				ps.ActiveSessions = append(ps.ActiveSessions, sess)
			}
			if la := sess.LastActivity(); la.After(lastActivity) {
				lastActivity = la
			}
			for _, task := range sess.Tasks {
				ps.TasksTotal++
				switch task.Status {
				case models.TaskStatusCompleted:
					ps.TasksDone++
				case models.TaskStatusInProgress:
					inProgress++
				case models.TaskStatusFailed:
					if task.CompletedAt != nil && sameDay(*task.CompletedAt, now) {
						failedToday = true
					}
				}
			}
		}

		if !lastActivity.IsZero() {
			t := lastActivity
			ps.LastActivity = &t
		}
		ps.Health = deriveHealth(len(ps.ActiveSessions), inProgress, failedToday)
		statuses = append(statuses, ps)
	}

	return statuses
}

// deriveHealth applies the precedence error > idle > healthy > warning.
func deriveHealth(activeSessions, tasksInProgress int, failedToday bool) models.Health {
	switch {
	case failedToday:
		return models.HealthError
	case activeSessions == 0 && tasksInProgress == 0:
		return models.HealthIdle
	case tasksInProgress > 0:
		return models.HealthHealthy
	default:
		return models.HealthWarning
	}
}

// agentCostCountsToday reports whether an agent's accumulated cost belongs in
// the daily rollup: its most recent log entry is from today, or it has no
// logs but is currently active.
func agentCostCountsToday(agent models.Agent, now time.Time) bool {
	if len(agent.Logs) == 0 {
		return agent.Status != models.AgentStatusIdle
	}
	latest := agent.Logs[0].Timestamp
	for _, entry := range agent.Logs[1:] {
		if entry.Timestamp.After(latest) {
			latest = entry.Timestamp
		}
	}
	return sameDay(latest, now)
}

// sameDay compares local calendar dates. This is intentionally not robust
// across midnight or timezone changes; the rollup resets with the local date.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}
