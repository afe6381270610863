package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/lattice-dmcp/lattice/pkg/catalog"
	"github.com/lattice-dmcp/lattice/pkg/config"
	"github.com/lattice-dmcp/lattice/pkg/heartbeat"
	"github.com/lattice-dmcp/lattice/pkg/lmetrics"
	"github.com/lattice-dmcp/lattice/pkg/log"
	"github.com/lattice-dmcp/lattice/pkg/protocol"
)

// loadConfig reads --config if set, otherwise returns the all-defaults
// Config (an embedded single-process bolt gateway on lattice.db).
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Config{Database: config.DatabaseConfig{Backend: "bolt", Path: "lattice.db"}}, nil
	}
	return config.Load(path)
}

// openGateway constructs the catalog.Gateway named by cfg.Database,
// per spec §6's database section.
func openGateway(cfg config.Config) (catalog.Gateway, func() error, error) {
	switch cfg.Database.Backend {
	case "raft":
		gw, err := catalog.NewRaftGateway(catalog.RaftGatewayConfig{
			NodeID:   cfg.Database.Raft.NodeID,
			BindAddr: cfg.Database.Raft.BindAddr,
			DataDir:  cfg.Database.Raft.DataDir,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open raft gateway: %w", err)
		}
		return gw, func() error { return nil }, nil
	default:
		gw, err := catalog.OpenBoltGateway(cfg.Database.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt gateway: %w", err)
		}
		return gw, gw.Close, nil
	}
}

// openHeartbeats builds the Registry over the same backend class as the
// catalog gateway: bolt-backed when persistent, in-memory for raft (each
// raft node already replicates the catalog; heartbeat liveness is purely
// local to the process observing its own threads).
func openHeartbeats(cfg config.Config) (heartbeat.Service, func() error, error) {
	if cfg.Database.Backend == "raft" {
		return heartbeat.NewRegistry(heartbeat.NewMemStore()), func() error { return nil }, nil
	}
	store, err := heartbeat.OpenBoltStore(cfg.Database.Path + ".heartbeat")
	if err != nil {
		return nil, nil, fmt.Errorf("open heartbeat store: %w", err)
	}
	return heartbeat.NewRegistry(store), store.Close, nil
}

// defaultDriverRegistry registers the storage protocol drivers this
// daemon ships with. Additional (scheme, impl) pairs are wired here as
// new drivers are added; posix is the only one with no external
// dependency and so is always present.
func defaultDriverRegistry() *protocol.Registry {
	registry := protocol.NewRegistry()
	registry.Register("file", "posix", protocol.NewPosixDriver)
	registry.Register("srm", "posix", protocol.NewPosixDriver)
	return registry
}

// serveMetrics starts the Prometheus /metrics HTTP endpoint in the
// background, the way cmd/warren starts its own metrics listener.
func serveMetrics(addr string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", lmetrics.Handler())
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Logger.Warn().Err(err).Str("addr", addr).Msg("metrics server exited")
		}
	}()
	log.Logger.Info().Str("addr", addr).Msg("metrics endpoint listening")
}
