// Package config loads the daemon's YAML configuration file the same
// way cmd/warren's apply command reads its manifests: os.ReadFile
// followed by yaml.Unmarshal, no env var or flag overlay.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level shape of spec §6's configuration file.
type Config struct {
	Common   CommonConfig   `yaml:"common"`
	Database DatabaseConfig `yaml:"database"`
}

// CommonConfig carries the one common.* key spec §6 names.
type CommonConfig struct {
	LogLevel string `yaml:"loglevel"`
}

// DatabaseConfig selects the catalog.Gateway backend and gates the
// optional native-library fallback: Backend "raft" pulls in
// hashicorp/raft for the HA-replicated gateway, "bolt" (the default)
// stays on the embedded, pure-Go bbolt gateway.
type DatabaseConfig struct {
	Backend string     `yaml:"backend"`
	Path    string     `yaml:"path"`
	Raft    RaftConfig `yaml:"raft"`
}

// RaftConfig configures catalog.RaftGatewayConfig when Backend == "raft".
type RaftConfig struct {
	NodeID   string `yaml:"node_id"`
	BindAddr string `yaml:"bind_addr"`
	DataDir  string `yaml:"data_dir"`
}

func (c Config) withDefaults() Config {
	if c.Common.LogLevel == "" {
		c.Common.LogLevel = "info"
	}
	if c.Database.Backend == "" {
		c.Database.Backend = "bolt"
	}
	if c.Database.Path == "" {
		c.Database.Path = "lattice.db"
	}
	return c
}

// Load reads and parses the YAML file at path, applying defaults for
// any key left unset.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg.withDefaults(), nil
}
