// Package main implements the brainstem diagnostics CLI.
//
// The library is embedded in an agent runtime; this binary exists for
// offline work: replaying recorded session transcripts through a fresh brain
// and inspecting persisted snapshots and telemetry.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"brainstem/internal/config"
	"brainstem/internal/logging"
)

var (
	// Global flags
	configPath string
	stateDir   string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "brainstem",
	Short: "Adaptive session-brain diagnostics",
	Long: `brainstem is the adaptive control core used by the agent runtime:
implicit-feedback detection, habituation-filtered weights, outcome
plasticity, prediction, and goal tracking.

This CLI replays recorded transcripts and inspects persisted state.

Examples:
  brainstem replay session.jsonl --session demo
  brainstem inspect --session demo
  brainstem inspect --sessions`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if stateDir != "" {
			cfg.Persist.Dir = stateDir
		}

		settings := logging.Settings{
			Enabled:    cfg.Logging.Enabled || verbose,
			Level:      cfg.Logging.Level,
			Dir:        cfg.Logging.Dir,
			Categories: cfg.Logging.Categories,
		}
		if verbose {
			settings.Level = "debug"
		}
		if settings.Enabled && settings.Dir == "" {
			settings.Dir = cfg.Persist.Dir + "/logs"
		}
		return logging.Initialize(settings)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "brainstem.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "", "override persistence directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
