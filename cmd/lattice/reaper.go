package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lattice-dmcp/lattice/pkg/log"
	"github.com/lattice-dmcp/lattice/pkg/reaper"
	"github.com/lattice-dmcp/lattice/pkg/rsecheck"
	"github.com/lattice-dmcp/lattice/pkg/supervisor"
)

var reaperCmd = &cobra.Command{
	Use:   "reaper",
	Short: "Run reaper worker threads",
}

var reaperRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Delete expired unlocked replicas from assigned RSEs",
	RunE:  runReaper,
}

func init() {
	reaperRunCmd.Flags().Int("total-workers", 1, "number of worker threads to spawn")
	reaperRunCmd.Flags().Bool("run-once", false, "process one pass over the partition and exit")
	reaperRunCmd.Flags().Int("chunk-size", 100, "deletion batch size")
	reaperRunCmd.Flags().Bool("greedy", false, "ignore the usage budget and reap every unlocked reapable replica")
	reaperRunCmd.Flags().String("scheme", "", "force this protocol scheme instead of the RSE's first offered one")
	reaperRunCmd.Flags().String("rses", "", "comma-separated list of RSE ids to reap (required)")
	_ = reaperRunCmd.MarkFlagRequired("rses")
	reaperCmd.AddCommand(reaperRunCmd)
}

func runReaper(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	level := cfg.Common.LogLevel
	if flagLevel, _ := cmd.Flags().GetString("log-level"); flagLevel != "" {
		level = flagLevel
	}
	jsonOut, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})

	gateway, closeGateway, err := openGateway(cfg)
	if err != nil {
		return err
	}
	defer closeGateway()

	heartbeats, closeHeartbeats, err := openHeartbeats(cfg)
	if err != nil {
		return err
	}
	defer closeHeartbeats()

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	serveMetrics(metricsAddr)

	rsesFlag, _ := cmd.Flags().GetString("rses")
	rses := splitRSEs(rsesFlag)
	totalWorkers, _ := cmd.Flags().GetInt("total-workers")
	runOnce, _ := cmd.Flags().GetBool("run-once")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	greedy, _ := cmd.Flags().GetBool("greedy")
	scheme, _ := cmd.Flags().GetString("scheme")

	base := reaper.Config{
		Scheme:    scheme,
		Greedy:    greedy,
		ChunkSize: chunkSize,
		RunOnce:   runOnce,
	}
	fleet := supervisor.ReaperFleet{
		Gateway:    gateway,
		Heartbeats: heartbeats,
		Drivers:    defaultDriverRegistry(),
		Prober:     rsecheck.NewProber(),
	}

	ctx, cancel := supervisor.WithSignals(cmd.Context())
	defer cancel()

	fmt.Printf("reaper: starting %d worker thread(s) over %d RSE(s)\n", totalWorkers, len(rses))
	if err := supervisor.RunReapers(ctx, fleet, rses, totalWorkers, base); err != nil {
		return fmt.Errorf("reaper fleet exited with error: %w", err)
	}
	fmt.Println("reaper: graceful stop complete")
	return nil
}

func splitRSEs(raw string) []string {
	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
