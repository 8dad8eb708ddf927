package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mctl-dev/mctl/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "mctl",
	Short: "mctl - mission control for coding agents",
	Long:  `mctl watches every project, session, and agent managed by the execution backend and rolls them up into one live status view.`,
	// No RunE - defaults to showing help when no subcommand is provided
}

var (
	apiAddr    string
	configPath string
	apiToken   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "api", "", "backend API address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "config file path")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "backend API token (overrides config)")

	// Add subcommands
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(feedCmd)
}

// loadConfig layers the persistent flags over the config file.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if apiAddr != "" {
		cfg.BackendURL = apiAddr
	}
	if apiToken != "" {
		cfg.APIToken = apiToken
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
