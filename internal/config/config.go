// Package config loads the mctl configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds user-tunable settings.
type Config struct {
	// BackendURL is the base URL of the agent execution backend.
	BackendURL string `yaml:"backend_url"`
	// APIToken is sent as a bearer token when set.
	APIToken string `yaml:"api_token"`
	// DBPath locates the local entity cache.
	DBPath string `yaml:"db_path"`
	// FeedLimit bounds the activity feed fetch.
	FeedLimit int `yaml:"feed_limit"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		BackendURL: "http://127.0.0.1:7381",
		DBPath:     filepath.Join(home, ".mctl", "cache.db"),
		FeedLimit:  50,
	}
}

// DefaultPath returns the standard config file location.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".mctl", "config.yaml")
}

// Load reads the config at path, layering it over the defaults. A missing
// file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.FeedLimit <= 0 {
		cfg.FeedLimit = 50
	}
	return cfg, nil
}
