package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"brainstem/internal/brain"
	"brainstem/internal/plasticity"
	"brainstem/internal/telemetry"
)

var replaySessionID string

// replayEvent is one line of a recorded transcript.
type replayEvent struct {
	Type string `json:"type"`

	// message / goal / step
	Text        string `json:"text,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`

	// plan
	Steps []string `json:"steps,omitempty"`

	// subgoal_done
	Index int `json:"index,omitempty"`

	// outcome
	Kind      string  `json:"kind,omitempty"` // tool or model
	Entity    string  `json:"entity,omitempty"`
	Task      string  `json:"task,omitempty"`
	Success   bool    `json:"success,omitempty"`
	Quality   float64 `json:"quality,omitempty"`
	LatencyMS float64 `json:"latency_ms,omitempty"`
}

var replayCmd = &cobra.Command{
	Use:   "replay <transcript.jsonl>",
	Short: "Replay a recorded transcript through a fresh session brain",
	Long: `Feeds a JSONL transcript through a new session brain and persists the
resulting weight snapshot and telemetry under the state directory.

Each line is one event:
  {"type":"goal","text":"fix the flaky auth test"}
  {"type":"plan","steps":["reproduce","isolate","fix","verify"]}
  {"type":"message","text":"still failing, again??"}
  {"type":"outcome","kind":"tool","entity":"pytest","task":"test","success":false,"quality":0.2,"latency_ms":900}
  {"type":"step","text":"rerun the test suite","fingerprint":"pytest:auth"}
  {"type":"subgoal_done","index":0}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		store, err := telemetry.NewStore(cfg.Persist.Dir, replaySessionID)
		if err != nil {
			return err
		}
		defer store.Close()

		b, err := brain.New(cfg, replaySessionID, brain.WithTelemetry(store))
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open transcript: %w", err)
		}
		defer f.Close()

		counts := map[string]int{}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		line := 0
		for scanner.Scan() {
			line++
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}
			var ev replayEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			if err := applyEvent(ctx, b, ev); err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			counts[ev.Type]++
		}
		if err := scanner.Err(); err != nil {
			return err
		}

		if err := b.Close(ctx); err != nil {
			return err
		}

		fmt.Printf("Replayed %d events for session %q:\n", line, replaySessionID)
		for _, t := range []string{"goal", "plan", "message", "outcome", "step", "subgoal_done"} {
			if counts[t] > 0 {
				fmt.Printf("  %-12s %d\n", t, counts[t])
			}
		}
		fmt.Println()
		fmt.Print(b.BehavioralHints().Render())
		return nil
	},
}

func applyEvent(ctx context.Context, b *brain.Brain, ev replayEvent) error {
	switch ev.Type {
	case "goal":
		return b.SetGoal(ev.Text)
	case "plan":
		b.SetPlan(ev.Steps)
	case "message":
		b.OnUserMessage(ev.Text)
	case "outcome":
		kind := plasticity.KindTool
		if ev.Kind == "model" {
			kind = plasticity.KindModel
		}
		rec := b.PredictAction(ev.Entity, ev.Task)
		b.OnActionOutcome(rec, kind, ev.Entity, ev.Task, ev.Success, ev.Quality, ev.LatencyMS)
	case "step":
		b.VerifyStep(ctx, ev.Text, ev.Fingerprint)
	case "subgoal_done":
		b.CompleteSubgoal(ev.Index)
	default:
		return fmt.Errorf("unknown event type %q", ev.Type)
	}
	return nil
}

func init() {
	replayCmd.Flags().StringVar(&replaySessionID, "session", "replay", "session ID to record under")
	rootCmd.AddCommand(replayCmd)
}
