package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "lattice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "common:\n  loglevel: debug\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Common.LogLevel)
	assert.Equal(t, "bolt", cfg.Database.Backend)
	assert.Equal(t, "lattice.db", cfg.Database.Path)
}

func TestLoadParsesRaftSection(t *testing.T) {
	path := writeConfig(t, `
common:
  loglevel: warn
database:
  backend: raft
  path: /var/lib/lattice/catalog.db
  raft:
    node_id: node-1
    bind_addr: 10.0.0.1:7000
    data_dir: /var/lib/lattice/raft
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Common.LogLevel)
	assert.Equal(t, "raft", cfg.Database.Backend)
	assert.Equal(t, "node-1", cfg.Database.Raft.NodeID)
	assert.Equal(t, "10.0.0.1:7000", cfg.Database.Raft.BindAddr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "common: [unterminated\n")
	_, err := Load(path)
	assert.Error(t, err)
}
