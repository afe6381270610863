package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lattice-dmcp/lattice/pkg/log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "lattice",
	Short: "Lattice data grid control plane daemons",
	Long: `Lattice places and garbage-collects replicas across a federation
of storage elements: the transmogrifier daemon turns subscriptions into
replication rules, the reaper daemon deletes expired unlocked replicas.`,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to the YAML config file")
	rootCmd.PersistentFlags().String("log-level", "", "override the config file's log level")
	rootCmd.PersistentFlags().Bool("log-json", false, "emit JSON logs instead of console output")
	rootCmd.PersistentFlags().String("metrics-addr", "127.0.0.1:9090", "address for the /metrics endpoint")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(transmogrifierCmd)
	rootCmd.AddCommand(reaperCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	if level == "" {
		level = "info"
	}
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}
