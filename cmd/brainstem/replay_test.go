package main

import (
	"context"
	"testing"

	"brainstem/internal/brain"
	"brainstem/internal/config"
	"brainstem/internal/weights"
)

func newReplayBrain(t *testing.T) *brain.Brain {
	t.Helper()
	c := config.DefaultConfig()
	c.Persist.Dir = t.TempDir()
	b, err := brain.New(c, "replay-test")
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return b
}

// =============================================================================
// TRANSCRIPT EVENT TESTS
// =============================================================================

func TestApplyEvent_DrivesFullSession(t *testing.T) {
	t.Parallel()

	b := newReplayBrain(t)
	ctx := context.Background()

	events := []replayEvent{
		{Type: "goal", Text: "fix the flaky auth test"},
		{Type: "plan", Steps: []string{"reproduce", "fix", "verify"}},
		{Type: "message", Text: "this is still broken, again"},
		{Type: "outcome", Kind: "tool", Entity: "pytest", Task: "test", Success: false, Quality: 0.2, LatencyMS: 900},
		{Type: "step", Text: "rerun the flaky auth test", Fingerprint: "pytest:auth"},
		{Type: "subgoal_done", Index: 0},
	}
	for i, ev := range events {
		if err := applyEvent(ctx, b, ev); err != nil {
			t.Fatalf("event %d (%s): %v", i, ev.Type, err)
		}
	}

	if got := b.GoalState(); got.GoalText == "" || got.Progress == 0 {
		t.Errorf("transcript should set goal and progress, got %+v", got)
	}
	if got := b.Weights().Get(weights.CategoryToolPreference, "pytest+test").Value; got >= 0 {
		t.Errorf("failed outcome should lower the tool weight, got %f", got)
	}
}

func TestApplyEvent_ModelOutcome(t *testing.T) {
	t.Parallel()

	b := newReplayBrain(t)

	ev := replayEvent{Type: "outcome", Kind: "model", Entity: "fast-model", Task: "summarize", Success: true, Quality: 0.9, LatencyMS: 200}
	if err := applyEvent(context.Background(), b, ev); err != nil {
		t.Fatalf("applyEvent error: %v", err)
	}

	if got := b.Weights().Get(weights.CategoryModelPreference, "fast-model+summarize").Value; got <= 0 {
		t.Errorf("model outcome should land in the model category, got %f", got)
	}
}

func TestApplyEvent_RejectsUnknownType(t *testing.T) {
	t.Parallel()

	b := newReplayBrain(t)

	if err := applyEvent(context.Background(), b, replayEvent{Type: "telepathy"}); err == nil {
		t.Fatal("unknown event type should error")
	}
}

func TestApplyEvent_DuplicateGoalFails(t *testing.T) {
	t.Parallel()

	b := newReplayBrain(t)
	ctx := context.Background()

	if err := applyEvent(ctx, b, replayEvent{Type: "goal", Text: "first"}); err != nil {
		t.Fatalf("first goal error: %v", err)
	}
	if err := applyEvent(ctx, b, replayEvent{Type: "goal", Text: "second"}); err == nil {
		t.Fatal("second goal event should surface the rejection")
	}
}
