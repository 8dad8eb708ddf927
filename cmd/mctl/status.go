package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mctl-dev/mctl/internal/backend"
	"github.com/mctl-dev/mctl/internal/mission"
	"github.com/mctl-dev/mctl/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a one-shot status rollup",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	control, cleanup, err := oneShotControl()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := control.RefreshAll(context.Background()); err != nil {
		return fmt.Errorf("refresh failed: %w", err)
	}
	snap := control.Snapshot()

	gs := snap.Stats
	fmt.Printf("Agents: %d active, %d running executions\n", gs.ActiveAgents, gs.RunningExecutions)
	fmt.Printf("Tasks: %d in progress, %d completed today\n", gs.TasksInProgress, gs.TasksCompletedToday)
	fmt.Printf("Cost today: $%.2f\n", gs.TotalCostToday)
	fmt.Printf("Projects: %d active of %d\n\n", gs.ActiveProjects, gs.TotalProjects)

	if snap.AgentsDegraded {
		fmt.Println("warning: backend unreachable, agent data is from the local cache")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "HEALTH\tPROJECT\tSESSIONS\tAGENTS\tTASKS\tCOST\tLAST ACTIVITY")
	for _, ps := range snap.Projects {
		last := "never"
		if ps.LastActivity != nil {
			last = ps.LastActivity.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d/%d\t$%.2f\t%s\n",
			ps.Health, ps.Project.DisplayName(), len(ps.ActiveSessions),
			ps.RunningAgents, ps.TasksDone, ps.TasksTotal, ps.TotalCost, last)
	}
	return w.Flush()
}

// oneShotControl builds a facade for single-command use. The scheduler starts
// paused; the caller drives refresh explicitly.
func oneShotControl() (*mission.Control, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache: %w", err)
	}

	client := backend.NewClient(cfg.BackendURL, cfg.APIToken)
	control := mission.New(st, client, nil, mission.Options{
		FeedLimit: cfg.FeedLimit,
		Visible:   false,
	})

	cleanup := func() {
		control.Close()
		st.Close()
	}
	return control, cleanup, nil
}
