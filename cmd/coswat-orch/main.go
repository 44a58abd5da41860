package main

import (
	"fmt"
	"os"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool
	rootCmd    = &cobra.Command{
		Use:   "coswat-orch",
		Short: "CoSWAT orchestrator - runs SWAT+ regions in parallel",
		Long: `coswat-orch runs the SWAT+ model for the regions of a CoSWAT model setup.
It launches one process per region under a concurrency limit, tracks the
simulated day from the model output, detects crashes and stalls, and
reports every region's outcome when the batch is done.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(debug)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// setupLogging sends structured logs to stderr so progress output on
// stdout stays readable.
func setupLogging(debug bool) {
	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	log.DefaultLogger = log.Logger{
		Level:      level,
		TimeFormat: "15:04:05",
		Writer: &log.ConsoleWriter{
			Writer:      os.Stderr,
			ColorOutput: log.IsTerminal(os.Stderr.Fd()),
		},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
