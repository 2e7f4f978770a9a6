// Package goals tracks whether the agent is still making progress toward its
// crystallized goal: progress estimation, drift scoring, loop detection over
// step fingerprints, and stall detection, all independent of the weight
// pipeline.
package goals

import (
	"context"
	"strings"
	"sync"

	"brainstem/internal/config"
	"brainstem/internal/logging"
	"brainstem/internal/types"
)

// RecommendedAction is what the tracker suggests the orchestrator do next.
type RecommendedAction string

const (
	ActionContinue RecommendedAction = "continue"
	ActionAdjust   RecommendedAction = "adjust"
	ActionReplan   RecommendedAction = "replan"
)

// Phase is the tracker's state machine position.
type Phase string

const (
	PhaseTracking   Phase = "tracking"
	PhaseDrifting   Phase = "drifting"
	PhaseReplanning Phase = "replanning"
)

// State is the tracker's observable state after a verification step.
type State struct {
	GoalText          string            `json:"goal_text"`
	Progress          float64           `json:"progress"`
	DriftScore        float64           `json:"drift_score"`
	StallTurns        int               `json:"stall_turns"`
	LoopDetected      bool              `json:"loop_detected"`
	RecommendedAction RecommendedAction `json:"recommended_action"`
	Phase             Phase             `json:"phase"`
	Step              int               `json:"step"`
}

// DriftVerifier is the optional external collaborator that refines the
// heuristic drift score. It must answer within the configured timeout or the
// heuristic value is used.
type DriftVerifier interface {
	VerifyDrift(ctx context.Context, goalText, stepDescription string) (float64, error)
}

// planStep is one declared sub-goal.
type planStep struct {
	text string
	done bool
}

// Tracker tracks one session's goal.
type Tracker struct {
	cfg      config.GoalsConfig
	verifier DriftVerifier

	mu              sync.Mutex
	goalText        string
	goalTokens      map[string]struct{}
	plan            []planStep
	progress        float64
	drift           float64
	phase           Phase
	step            int
	fingerprints    []string // bounded FIFO
	loopDetected    bool
	lastProgress    float64
	flatStreak      int
	stallTurns      int
	sinceVerifyCall int
}

// NewTracker creates a goal tracker. verifier may be nil.
func NewTracker(cfg config.GoalsConfig, verifier DriftVerifier) *Tracker {
	return &Tracker{
		cfg:      cfg,
		verifier: verifier,
		phase:    PhaseTracking,
	}
}

// SetGoal crystallizes the session goal. It can be set exactly once; the
// goal is the immutable reference everything else is measured against.
func (t *Tracker) SetGoal(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return &types.ValidationError{Field: "goal", Value: "", Reason: "goal text must not be empty"}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.goalText != "" {
		return &types.ValidationError{Field: "goal", Value: text, Reason: "goal already set"}
	}
	t.goalText = text
	t.goalTokens = tokenize(text)

	logging.Get(logging.CategoryGoals).Infow("goal set", "goal", text)
	return nil
}

// SetPlan declares the sub-goals progress is measured against. Setting a plan
// exits Replanning, clears stall accounting and the loop window, and
// preserves cumulative progress.
func (t *Tracker) SetPlan(steps []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.plan = make([]planStep, len(steps))
	for i, s := range steps {
		t.plan[i] = planStep{text: s}
	}
	t.stallTurns = 0
	t.flatStreak = 0
	t.fingerprints = t.fingerprints[:0]
	t.loopDetected = false
	t.phase = PhaseTracking

	logging.Get(logging.CategoryGoals).Infow("plan set", "steps", len(steps))
}

// CompleteSubgoal marks plan step i done. Progress only moves forward.
func (t *Tracker) CompleteSubgoal(i int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.plan) {
		return
	}
	t.plan[i].done = true
	t.recomputeProgressLocked()
}

// Verify runs once per step: it updates progress, drift, loop and stall
// state, and returns the full goal state with a recommended action.
func (t *Tracker) Verify(ctx context.Context, stepDescription, stepFingerprint string) State {
	t.mu.Lock()
	t.step++
	t.recomputeProgressLocked()

	// Without a plan, completion phrasing in the step itself is the only
	// progress proxy; it is monotone and capped below 1.
	if len(t.plan) == 0 && containsCompletionMarker(stepDescription) && t.progress < 0.95 {
		t.progress += 0.05
		if t.progress > 0.95 {
			t.progress = 0.95
		}
	}

	heuristic := t.heuristicDriftLocked(stepDescription)
	goal := t.goalText
	needExternal := t.verifier != nil &&
		heuristic >= t.cfg.DriftWarn && heuristic < t.cfg.DriftCritical &&
		t.sinceVerifyCall >= t.cfg.VerifyEvery
	if needExternal {
		t.sinceVerifyCall = 0
	} else {
		t.sinceVerifyCall++
	}
	t.mu.Unlock()

	drift := heuristic
	if needExternal {
		if refined, err := t.callVerifier(ctx, goal, stepDescription); err == nil {
			drift = refined
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.drift = clamp01(drift)
	t.pushFingerprintLocked(stepFingerprint)
	t.updateStallLocked()
	t.updatePhaseLocked()

	state := t.stateLocked()
	logging.Get(logging.CategoryGoals).Debugw("step verified",
		"step", state.Step, "progress", state.Progress, "drift", state.DriftScore,
		"loop", state.LoopDetected, "stall_turns", state.StallTurns,
		"action", state.RecommendedAction)
	return state
}

// CurrentState returns the tracker state without advancing a step.
func (t *Tracker) CurrentState() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stateLocked()
}

// =============================================================================
// INTERNAL
// =============================================================================

func (t *Tracker) stateLocked() State {
	return State{
		GoalText:          t.goalText,
		Progress:          t.progress,
		DriftScore:        t.drift,
		StallTurns:        t.stallTurns,
		LoopDetected:      t.loopDetected,
		RecommendedAction: t.recommendLocked(),
		Phase:             t.phase,
		Step:              t.step,
	}
}

func (t *Tracker) recommendLocked() RecommendedAction {
	switch {
	case t.loopDetected || t.drift >= t.cfg.DriftCritical:
		return ActionReplan
	case t.drift >= t.cfg.DriftWarn || t.stallTurns > 0:
		return ActionAdjust
	default:
		return ActionContinue
	}
}

func (t *Tracker) updatePhaseLocked() {
	if t.phase == PhaseReplanning {
		return // exited only via SetPlan
	}
	switch t.recommendLocked() {
	case ActionReplan:
		t.phase = PhaseReplanning
	case ActionAdjust:
		t.phase = PhaseDrifting
	default:
		t.phase = PhaseTracking
	}
}

func (t *Tracker) recomputeProgressLocked() {
	if len(t.plan) == 0 {
		return
	}
	done := 0
	for _, s := range t.plan {
		if s.done {
			done++
		}
	}
	p := float64(done) / float64(len(t.plan))
	if p > t.progress {
		t.progress = p
	}
}

// pushFingerprintLocked appends to the bounded FIFO and flags a loop when the
// same fingerprint occurs LoopThreshold times within the window.
func (t *Tracker) pushFingerprintLocked(fp string) {
	if fp == "" {
		return
	}
	t.fingerprints = append(t.fingerprints, fp)
	if len(t.fingerprints) > t.cfg.LoopWindow {
		t.fingerprints = t.fingerprints[1:]
	}

	count := 0
	for _, f := range t.fingerprints {
		if f == fp {
			count++
		}
	}
	if count >= t.cfg.LoopThreshold {
		t.loopDetected = true
		logging.Get(logging.CategoryGoals).Warnw("loop detected",
			"fingerprint", fp, "occurrences", count)
	}
}

func (t *Tracker) updateStallLocked() {
	if t.progress > t.lastProgress {
		t.lastProgress = t.progress
		t.flatStreak = 0
		t.stallTurns = 0
		return
	}
	t.flatStreak++
	if t.flatStreak >= t.cfg.StallThreshold {
		t.stallTurns++
	}
}

// heuristicDriftLocked estimates semantic divergence lexically: how little of
// the goal vocabulary the step shares. Smoothed against the previous score so
// one oddly-worded step does not spike drift.
func (t *Tracker) heuristicDriftLocked(stepDescription string) float64 {
	if t.goalText == "" {
		return 0
	}
	stepTokens := tokenize(stepDescription)
	if len(stepTokens) == 0 {
		return t.drift
	}

	shared := 0
	for tok := range stepTokens {
		if _, ok := t.goalTokens[tok]; ok {
			shared++
		}
	}
	denom := len(t.goalTokens)
	if len(stepTokens) < denom {
		denom = len(stepTokens)
	}
	if denom == 0 {
		return t.drift
	}
	instant := 1 - float64(shared)/float64(denom)
	return clamp01(0.6*t.drift + 0.4*instant)
}

func (t *Tracker) callVerifier(ctx context.Context, goal, step string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.VerifyTimeout)
	defer cancel()

	type result struct {
		drift float64
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		d, err := t.verifier.VerifyDrift(ctx, goal, step)
		ch <- result{d, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return 0, r.err
		}
		return clamp01(r.drift), nil
	case <-ctx.Done():
		logging.Get(logging.CategoryGoals).Debugw("drift verifier timed out",
			"timeout", t.cfg.VerifyTimeout)
		return 0, &types.TimeoutError{Op: "drift verification", Timeout: t.cfg.VerifyTimeout.String()}
	}
}

// =============================================================================
// TEXT HELPERS
// =============================================================================

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "of": {}, "to": {},
	"in": {}, "on": {}, "for": {}, "with": {}, "is": {}, "are": {}, "be": {},
	"this": {}, "that": {}, "it": {}, "as": {}, "at": {}, "by": {}, "from": {},
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if len(tok) < 2 {
			continue
		}
		if _, ok := stopwords[tok]; ok {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

var completionMarkers = []string{
	"completed", "finished", "done", "passed", "implemented", "fixed", "merged",
}

func containsCompletionMarker(s string) bool {
	s = strings.ToLower(s)
	for _, m := range completionMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
