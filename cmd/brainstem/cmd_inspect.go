package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"brainstem/internal/telemetry"
	"brainstem/internal/weights"
)

var (
	inspectSessionID string
	inspectLimit     int
	listSessions     bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Inspect a session's persisted snapshot and telemetry",
	Long: `Prints the persisted weight snapshot for a session together with its
recent plasticity events, resolved predictions, and goal history.

Examples:
  brainstem inspect --session demo
  brainstem inspect --session demo --limit 50
  brainstem inspect --sessions`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := telemetry.NewStore(cfg.Persist.Dir, inspectSessionID)
		if err != nil {
			return err
		}
		defer store.Close()

		if listSessions {
			ids, err := store.Sessions()
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("No sessions recorded.")
				return nil
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		}

		if err := printSnapshot(); err != nil {
			return err
		}
		return printTelemetry(store)
	},
}

func printSnapshot() error {
	path := filepath.Join(cfg.Persist.Dir, fmt.Sprintf(cfg.Persist.SnapshotFile, inspectSessionID))
	snap, err := weights.LoadSnapshot(path)
	if err != nil {
		return err
	}

	fmt.Printf("# Session %s\n\n## Weights (%s)\n", inspectSessionID, path)
	if len(snap) == 0 {
		fmt.Println("(no snapshot)")
		return nil
	}

	categories := make([]string, 0, len(snap))
	for c := range snap {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)

	for _, c := range categories {
		entries := snap[weights.Category(c)]
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		fmt.Printf("\n%s:\n", c)
		for _, k := range keys {
			w := entries[k]
			fmt.Printf("  %-40s %+.3f  (a=%.0f b=%.0f n=%d)\n", k, w.Value, w.Alpha, w.Beta, w.UpdateCount)
		}
	}
	return nil
}

func printTelemetry(store *telemetry.Store) error {
	events, err := store.GetRecentPlasticityEvents(inspectSessionID, inspectLimit)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		fmt.Printf("\n## Plasticity events (newest first)\n")
		for _, ev := range events {
			fmt.Printf("  step %-4d %-12s %+.4f  %v\n", ev.SessionStep, ev.Rule, ev.Magnitude, ev.AffectedKeys)
		}
	}

	recs, err := store.GetRecentPredictions(inspectSessionID, inspectLimit)
	if err != nil {
		return err
	}
	if len(recs) > 0 {
		fmt.Printf("\n## Predictions (newest first)\n")
		for _, r := range recs {
			fmt.Printf("  %-40s surprise=%.3f conf=%.2f q=%.2f->%.2f success=%v\n",
				r.Key, r.Surprise, r.Confidence, r.PredictedQuality, r.ActualQuality, r.ActualSuccess)
		}
	}

	states, err := store.GetGoalHistory(inspectSessionID, inspectLimit)
	if err != nil {
		return err
	}
	if len(states) > 0 {
		fmt.Printf("\n## Goal history (newest first)\n")
		for _, st := range states {
			fmt.Printf("  step %-4d progress=%.2f drift=%.2f stall=%d loop=%v action=%s phase=%s\n",
				st.Step, st.Progress, st.DriftScore, st.StallTurns, st.LoopDetected,
				st.RecommendedAction, st.Phase)
		}
	}
	return nil
}

func init() {
	inspectCmd.Flags().StringVar(&inspectSessionID, "session", "default", "session ID to inspect")
	inspectCmd.Flags().IntVar(&inspectLimit, "limit", 20, "max telemetry rows per section")
	inspectCmd.Flags().BoolVar(&listSessions, "sessions", false, "list recorded session IDs")
	rootCmd.AddCommand(inspectCmd)
}
