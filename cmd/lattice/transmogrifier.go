package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lattice-dmcp/lattice/pkg/log"
	"github.com/lattice-dmcp/lattice/pkg/supervisor"
	"github.com/lattice-dmcp/lattice/pkg/transmogrifier"
)

var transmogrifierCmd = &cobra.Command{
	Use:   "transmogrifier",
	Short: "Run transmogrifier worker threads",
}

var transmogrifierRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Turn matching subscriptions into replication rules",
	RunE:  runTransmogrifier,
}

func init() {
	transmogrifierRunCmd.Flags().Int("threads", 1, "number of worker threads to spawn")
	transmogrifierRunCmd.Flags().Bool("run-once", false, "process one iteration per thread and exit")
	transmogrifierRunCmd.Flags().Int("chunk-size", 100, "SetNewDIDsFlag batch size")
	transmogrifierRunCmd.Flags().Int("bulk", 1000, "ListNewDIDs page size")
	transmogrifierCmd.AddCommand(transmogrifierRunCmd)
}

func runTransmogrifier(cmd *cobra.Command, args []string) error {
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

	threads, _ := cmd.Flags().GetInt("threads")
	runOnce, _ := cmd.Flags().GetBool("run-once")
	chunkSize, _ := cmd.Flags().GetInt("chunk-size")
	bulk, _ := cmd.Flags().GetInt("bulk")

	base := transmogrifier.Config{
		Bulk:      bulk,
		ChunkSize: chunkSize,
		RunOnce:   runOnce,
	}

	ctx, cancel := supervisor.WithSignals(cmd.Context())
	defer cancel()

	fmt.Printf("transmogrifier: starting %d worker thread(s)\n", threads)
	if err := supervisor.RunTransmogrifiers(ctx, gateway, heartbeats, threads, base); err != nil {
		return fmt.Errorf("transmogrifier fleet exited with error: %w", err)
	}
	fmt.Println("transmogrifier: graceful stop complete")
	return nil
}
