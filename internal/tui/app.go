// Package tui provides the interactive mission-control dashboard.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mctl-dev/mctl/internal/mission"
	"github.com/mctl-dev/mctl/internal/models"
)

var (
	// Colors
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")
	fgColor      = lipgloss.Color("#F9FAFB")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	warnBannerStyle = lipgloss.NewStyle().
			Foreground(warningColor).
			Bold(true)

	degradedStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	healthStyles = map[models.Health]lipgloss.Style{
		models.HealthHealthy: lipgloss.NewStyle().Foreground(successColor).Bold(true),
		models.HealthWarning: lipgloss.NewStyle().Foreground(warningColor),
		models.HealthError:   lipgloss.NewStyle().Foreground(errorColor).Bold(true),
		models.HealthIdle:    lipgloss.NewStyle().Foreground(mutedColor),
	}
)

// uiTickMsg drives snapshot re-reads while the dashboard is on screen.
type uiTickMsg time.Time

// warnMsg carries a user-facing warning from the event bridge.
type warnMsg string

// refreshDoneMsg signals a manual refresh finished.
type refreshDoneMsg struct{ err error }

// App is the dashboard TUI model.
type App struct {
	control    *mission.Control
	notifier   *Notifier
	snap       mission.Snapshot
	spin       spinner.Model
	width      int
	height     int
	paused     bool
	refreshing bool
	warning    string
	warnedAt   time.Time
}

// New creates the dashboard model around a started facade. notifier is the
// same instance the event bridge warns through.
func New(control *mission.Control, notifier *Notifier) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return &App{
		control:  control,
		notifier: notifier,
		spin:     sp,
	}
}

// Run starts the dashboard.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	if a.notifier != nil {
		a.notifier.SetProgram(p)
	}
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spin.Tick, a.uiTick(), a.manualRefresh())
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return a, tea.Quit

		case "r":
			if !a.refreshing {
				a.refreshing = true
				return a, a.manualRefresh()
			}

		case "p":
			// The terminal has no reliable visibility signal, so pausing is
			// explicit; it maps straight onto scheduler visibility.
			a.paused = !a.paused
			a.control.SetVisible(!a.paused)
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case uiTickMsg:
		a.snap = a.control.Snapshot()
		if a.warning != "" && time.Since(a.warnedAt) > 30*time.Second {
			a.warning = ""
		}
		return a, a.uiTick()

	case warnMsg:
		a.warning = string(msg)
		a.warnedAt = time.Now()

	case refreshDoneMsg:
		a.refreshing = false
		a.snap = a.control.Snapshot()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd
	}

	return a, nil
}

func (a *App) uiTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return uiTickMsg(t)
	})
}

func (a *App) manualRefresh() tea.Cmd {
	return func() tea.Msg {
		return refreshDoneMsg{err: a.control.RefreshAll(context.Background())}
	}
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("mctl — mission control"))
	b.WriteString("\n")
	b.WriteString(a.statsLine())
	b.WriteString("\n\n")

	b.WriteString(panelStyle.Render(a.projectsPanel()))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(a.agentsPanel()))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(a.feedPanel()))
	b.WriteString("\n")

	if a.warning != "" {
		b.WriteString(warnBannerStyle.Render("⚠ " + a.warning))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("r refresh · p pause · q quit"))
	return b.String()
}

func (a *App) statsLine() string {
	gs := a.snap.Stats
	parts := []string{
		fmt.Sprintf("agents %d", gs.ActiveAgents),
		fmt.Sprintf("running %d", gs.RunningExecutions),
		fmt.Sprintf("tasks %d", gs.TasksInProgress),
		fmt.Sprintf("done today %d", gs.TasksCompletedToday),
		fmt.Sprintf("cost today $%.2f", gs.TotalCostToday),
		fmt.Sprintf("projects %d/%d", gs.ActiveProjects, gs.TotalProjects),
	}
	line := statusBarStyle.Render(strings.Join(parts, "  │  "))
	if a.refreshing {
		line += " " + a.spin.View()
	}
	if a.paused {
		line += " " + helpStyle.Render("(paused)")
	}
	return line
}

func (a *App) projectsPanel() string {
	if len(a.snap.Projects) == 0 {
		return helpStyle.Render("no projects")
	}

	var b strings.Builder
	for i, ps := range a.snap.Projects {
		if i > 0 {
			b.WriteString("\n")
		}
		health := healthStyles[ps.Health].Render(string(ps.Health))
		last := "never"
		if ps.LastActivity != nil {
			last = formatAge(time.Since(*ps.LastActivity))
		}
		b.WriteString(fmt.Sprintf("%-8s %-24s %d sessions  %d agents  %d/%d tasks  $%.2f  %s",
			health, ps.Project.DisplayName(), len(ps.ActiveSessions), ps.RunningAgents,
			ps.TasksDone, ps.TasksTotal, ps.TotalCost, last))
	}
	return b.String()
}

func (a *App) agentsPanel() string {
	if a.snap.AgentsErr != nil && !a.snap.AgentsDegraded {
		return degradedStyle.Render("agents unavailable: " + a.snap.AgentsErr.Error())
	}
	if len(a.snap.Agents) == 0 {
		return helpStyle.Render("no active agents")
	}

	var b strings.Builder
	if a.snap.AgentsDegraded {
		b.WriteString(degradedStyle.Render("⚠ backend unreachable — showing cached agents"))
		b.WriteString("\n")
	}
	for i, agent := range a.snap.Agents {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(fmt.Sprintf("%-12s %-20s %-24s %-28s %s",
			agent.Agent.Status, agent.ProjectName, agent.SessionName,
			truncate(agent.TaskTitle, 28), formatAge(agent.Duration)))
	}
	return b.String()
}

func (a *App) feedPanel() string {
	if len(a.snap.Feed) == 0 {
		if a.snap.FeedErr != nil {
			return degradedStyle.Render("activity unavailable: " + a.snap.FeedErr.Error())
		}
		return helpStyle.Render("no recent activity")
	}

	var b strings.Builder
	if a.snap.FeedErr != nil {
		b.WriteString(degradedStyle.Render("⚠ feed is stale: " + a.snap.FeedErr.Error()))
		b.WriteString("\n")
	}
	max := 8
	if len(a.snap.Feed) < max {
		max = len(a.snap.Feed)
	}
	for i := 0; i < max; i++ {
		if i > 0 {
			b.WriteString("\n")
		}
		ev := a.snap.Feed[i]
		b.WriteString(fmt.Sprintf("%s  %s", ev.Timestamp.Format("15:04:05"), truncate(ev.Description, 70)))
	}
	return b.String()
}

func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
