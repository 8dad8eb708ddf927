package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mctl-dev/mctl/internal/backend"
)

var feedLimitFlag int

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print recent activity across all projects",
	RunE:  runFeed,
}

func init() {
	feedCmd.Flags().IntVar(&feedLimitFlag, "limit", 0, "max events to show (defaults to config feed_limit)")
}

func runFeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	limit := cfg.FeedLimit
	if feedLimitFlag > 0 {
		limit = feedLimitFlag
	}

	client := backend.NewClient(cfg.BackendURL, cfg.APIToken)
	events, err := client.GetActivityFeed(context.Background(), limit)
	if err != nil {
		return fmt.Errorf("failed to fetch activity: %w", err)
	}
	if len(events) == 0 {
		fmt.Println("No recent activity.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tTYPE\tPROJECT\tDESCRIPTION")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			ev.Timestamp.Local().Format("15:04:05"), ev.Type, filepath.Base(ev.ProjectPath), ev.Description)
	}
	return w.Flush()
}
