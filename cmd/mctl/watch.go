package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mctl-dev/mctl/internal/backend"
	"github.com/mctl-dev/mctl/internal/mission"
	"github.com/mctl-dev/mctl/internal/store"
	"github.com/mctl-dev/mctl/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Launch the interactive dashboard",
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer st.Close()

	client := backend.NewClient(cfg.BackendURL, cfg.APIToken)
	notifier := tui.NewNotifier()

	control := mission.New(st, client, notifier, mission.Options{
		FeedLimit: cfg.FeedLimit,
		Visible:   true,
	})
	control.Start()
	defer control.Close()

	app := tui.New(control, notifier)
	if err := app.Run(); err != nil {
		return fmt.Errorf("dashboard error: %w", err)
	}
	return nil
}
