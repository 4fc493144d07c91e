// Package config loads the rollout CLI configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config controls the rollout CLI's defaults. Flags override file values.
type Config struct {
	// SessionsDir is where rollout files live.
	SessionsDir string `yaml:"sessions_dir"`

	// PageSize is the number of records per reverse read.
	PageSize int `yaml:"page_size"`

	// MergeMaxUserMessageTokens budgets how much recovered user text
	// seeds a compacted base.
	MergeMaxUserMessageTokens int `yaml:"merge_max_user_message_tokens"`

	// MaterializeMaxTokens, when > 0, trims a materialized history to
	// this token budget before display.
	MaterializeMaxTokens int `yaml:"materialize_max_tokens"`
}

// Default returns the standard configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		SessionsDir:               filepath.Join(home, ".agent-rollout", "sessions"),
		PageSize:                  64,
		MergeMaxUserMessageTokens: 20_000,
	}
}

// Load reads a YAML config file over the defaults. A missing file is not
// an error; an unreadable or malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".agent-rollout", "config.yaml")
}
