// Package brain assembles the adaptive control core for one session: signal
// detection, habituation filtering, the weight store, outcome plasticity,
// prediction, and goal tracking behind a single facade. The orchestrator
// talks to this package only.
package brain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"brainstem/internal/adaptation"
	"brainstem/internal/config"
	"brainstem/internal/goals"
	"brainstem/internal/logging"
	"brainstem/internal/plasticity"
	"brainstem/internal/prediction"
	"brainstem/internal/signals"
	"brainstem/internal/weights"
)

// Telemetry receives the observable event streams. Implementations must not
// block; the core never reads telemetry back for decisions.
type Telemetry interface {
	RecordPlasticityEvent(plasticity.Event)
	RecordPrediction(prediction.Record)
	RecordGoalState(goals.State)
}

// recentMessageWindow bounds the history kept for the brevity baseline.
const recentMessageWindow = 10

// signalGain scales detected signal strength ([0,1]) down to weight-delta
// magnitude. Single messages nudge; only sustained evidence moves behavior.
const signalGain = 0.1

// route maps a signal type onto one weight it should move.
type route struct {
	category weights.Category
	key      string
	sign     float64
}

var signalRoutes = map[signals.SignalType][]route{
	signals.SignalFrustration: {
		{weights.CategoryBehavioral, "verbosity", -1},
		{weights.CategoryUserInsight, "frustration_tendency", 1},
	},
	signals.SignalSatisfaction: {
		{weights.CategoryBehavioral, "current_approach", 1},
	},
	signals.SignalCorrection: {
		{weights.CategoryBehavioral, "assumption_confidence", -1},
	},
	signals.SignalBrevityShift: {
		{weights.CategoryBehavioral, "verbosity", -1},
	},
	signals.SignalSpeedPreference: {
		{weights.CategoryBehavioral, "thoroughness", -1},
		{weights.CategoryUserInsight, "prefers_speed", 1},
	},
	signals.SignalDetailRequest: {
		{weights.CategoryBehavioral, "verbosity", 1},
		{weights.CategoryUserInsight, "prefers_detail", 1},
	},
}

// Brain is the per-session adaptive core.
type Brain struct {
	cfg       *config.Config
	sessionID string

	store      *weights.Store
	detector   *signals.Detector
	filter     *adaptation.Filter
	plasticity *plasticity.Engine
	prediction *prediction.Engine
	goals      *goals.Tracker

	telemetry Telemetry
	global    *weights.GlobalTier

	mu     sync.Mutex
	recent []string
	closed bool
}

// Option configures optional collaborators.
type Option func(*options)

type options struct {
	telemetry Telemetry
	global    *weights.GlobalTier
	verifier  goals.DriftVerifier
}

// WithTelemetry attaches an observability sink for plasticity events,
// resolved predictions, and goal snapshots.
func WithTelemetry(t Telemetry) Option {
	return func(o *options) { o.telemetry = t }
}

// WithGlobalTier attaches the cross-session update queue.
func WithGlobalTier(g *weights.GlobalTier) Option {
	return func(o *options) { o.global = g }
}

// WithDriftVerifier attaches an external goal-drift verifier.
func WithDriftVerifier(v goals.DriftVerifier) Option {
	return func(o *options) { o.verifier = v }
}

// New creates a session brain. A prior snapshot for the session, if one
// exists under the persistence directory, is restored into the weight store.
func New(cfg *config.Config, sessionID string, opts ...Option) (*Brain, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	store := weights.NewStore(cfg.Weights)
	filter := adaptation.NewFilter(cfg.Adaptation)

	var sink plasticity.Sink
	var observer prediction.Observer
	if o.telemetry != nil {
		sink = o.telemetry
		observer = o.telemetry
	}

	b := &Brain{
		cfg:        cfg,
		sessionID:  sessionID,
		store:      store,
		detector:   signals.NewDetector(),
		filter:     filter,
		plasticity: plasticity.NewEngine(cfg.Plasticity, store, filter, sink),
		prediction: prediction.NewEngine(cfg.Prediction, observer),
		goals:      goals.NewTracker(cfg.Goals, o.verifier),
		telemetry:  o.telemetry,
		global:     o.global,
	}

	if err := os.MkdirAll(cfg.Persist.Dir, 0755); err != nil {
		return nil, err
	}
	snap, err := weights.LoadSnapshot(b.snapshotPath())
	if err != nil {
		logging.Get(logging.CategorySession).Warnw("snapshot restore skipped",
			"session", sessionID, "error", err)
	} else if len(snap) > 0 {
		store.Restore(snap)
		logging.Get(logging.CategorySession).Infow("snapshot restored",
			"session", sessionID, "categories", len(snap))
	}

	logging.Get(logging.CategorySession).Infow("session brain created", "session", sessionID)
	return b, nil
}

// SessionID returns the session identifier.
func (b *Brain) SessionID() string { return b.sessionID }

// Weights exposes the weight store for read-side consumers.
func (b *Brain) Weights() *weights.Store { return b.store }

// =============================================================================
// TURN LIFECYCLE
// =============================================================================

// OnUserMessage runs signal detection against the session's own baseline,
// routes each detected signal through the habituation filter into the weight
// store, and advances the turn clock. It returns the detected signals.
func (b *Brain) OnUserMessage(message string) []signals.Signal {
	b.mu.Lock()
	recent := make([]string, len(b.recent))
	copy(recent, b.recent)
	b.mu.Unlock()

	detected := b.detector.Detect(message, recent)

	for _, sig := range detected {
		for _, r := range signalRoutes[sig.Type] {
			eff := b.filter.Apply(sig, r.key)
			if eff == 0 {
				continue
			}
			delta := eff * signalGain * r.sign
			if _, err := b.store.ApplyDelta(r.category, r.key, delta, "signal:"+string(sig.Type)); err != nil {
				logging.Get(logging.CategorySession).Warnw("signal delta rejected",
					"signal", sig.Type, "key", r.key, "error", err)
			}
		}
	}

	b.mu.Lock()
	b.recent = append(b.recent, message)
	if len(b.recent) > recentMessageWindow {
		b.recent = b.recent[1:]
	}
	b.mu.Unlock()

	b.store.TickTurn()

	if len(detected) > 0 {
		logging.Get(logging.CategorySession).Debugw("signals detected",
			"session", b.sessionID, "count", len(detected))
	}
	return detected
}

// PredictAction opens a prediction record for the entity/task pairing about
// to run. The returned record must be passed back to OnActionOutcome or
// CancelTurn.
func (b *Brain) PredictAction(entity, taskType string) *prediction.Record {
	return b.prediction.Predict(entity, taskType)
}

// SelectEntity picks among candidates by Thompson sampling the pairing
// weights, so strong candidates win most trials while weak ones still get
// occasional exploration.
func (b *Brain) SelectEntity(kind plasticity.EntityKind, candidates []string, taskType string) string {
	if len(candidates) == 0 {
		return ""
	}
	category := weights.CategoryToolPreference
	if kind == plasticity.KindModel {
		category = weights.CategoryModelPreference
	}

	best := candidates[0]
	bestSample := -1.0
	for _, c := range candidates {
		s := b.store.SampleThompson(category, fmt.Sprintf("%s+%s", c, taskType))
		if s > bestSample {
			bestSample = s
			best = c
		}
	}
	return best
}

// OnActionOutcome closes the loop for one executed action: the prediction is
// resolved into a surprise magnitude, Beta pseudo-counts are updated, and
// plasticity applies the surprise-scaled learning delta. rec may be nil
// (degraded mode: no prediction was opened; learning proceeds with zero
// surprise). Errors in the learning path are logged, never propagated; an
// outcome must not abort a turn.
func (b *Brain) OnActionOutcome(rec *prediction.Record, kind plasticity.EntityKind, entity, taskType string, success bool, quality, latencyMS float64) {
	surprise := 0.0
	if rec != nil {
		s, err := b.prediction.Resolve(rec, quality, latencyMS, success)
		if err != nil {
			logging.Get(logging.CategorySession).Warnw("prediction resolve failed",
				"session", b.sessionID, "error", err)
		} else {
			surprise = s
		}
	}

	category := weights.CategoryToolPreference
	if kind == plasticity.KindModel {
		category = weights.CategoryModelPreference
	}
	key := fmt.Sprintf("%s+%s", entity, taskType)

	if entity != "" && taskType != "" {
		if _, err := b.store.RecordOutcome(category, key, success); err != nil {
			logging.Get(logging.CategorySession).Warnw("outcome record failed",
				"key", key, "error", err)
		}
	}

	b.plasticity.OnOutcome(kind, entity, taskType, success, quality, surprise)

	if b.global != nil && entity != "" && taskType != "" {
		b.global.Enqueue(weights.GlobalUpdate{
			SessionID: b.sessionID,
			Key:       key,
			Delta:     (clamp01(quality) - 0.5) * b.cfg.Plasticity.BaseRate,
			Reason:    "outcome",
			At:        time.Now(),
		})
	}
}

// CancelTurn abandons the in-flight action: the open prediction record is
// discarded and no weights move.
func (b *Brain) CancelTurn() {
	if rec := b.prediction.Open(); rec != nil {
		b.prediction.Discard(rec)
		logging.Get(logging.CategorySession).Debugw("turn cancelled", "record", rec.ID)
	}
}

// =============================================================================
// GOALS
// =============================================================================

// SetGoal crystallizes the session goal (once per session).
func (b *Brain) SetGoal(text string) error {
	return b.goals.SetGoal(text)
}

// SetPlan declares the sub-goals progress is measured against.
func (b *Brain) SetPlan(steps []string) {
	b.goals.SetPlan(steps)
}

// CompleteSubgoal marks plan step i done.
func (b *Brain) CompleteSubgoal(i int) {
	b.goals.CompleteSubgoal(i)
}

// VerifyStep checks one agent step against the goal and returns the goal
// state with a recommended action. Drift also feeds the goal-alignment
// weight so downstream consumers see alignment as a scalar.
func (b *Brain) VerifyStep(ctx context.Context, stepDescription, stepFingerprint string) goals.State {
	state := b.goals.Verify(ctx, stepDescription, stepFingerprint)

	delta := (0.5 - state.DriftScore) * signalGain
	if _, err := b.store.ApplyDelta(weights.CategoryGoalAlignment, "on_track", delta, "drift"); err != nil {
		logging.Get(logging.CategorySession).Warnw("alignment delta rejected", "error", err)
	}

	if b.telemetry != nil {
		b.telemetry.RecordGoalState(state)
	}
	return state
}

// GoalState returns the tracker state without advancing a step.
func (b *Brain) GoalState() goals.State {
	return b.goals.CurrentState()
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Close ends the session: noise weights are consolidated, the prediction
// engine is expired, the weight snapshot is persisted, and the global queue
// is flushed. Close is idempotent.
func (b *Brain) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	pruned := b.plasticity.Consolidate()
	b.prediction.CloseSession()

	var firstErr error
	if err := b.store.SaveSnapshot(b.snapshotPath()); err != nil {
		logging.Get(logging.CategorySession).Errorw("snapshot save failed",
			"session", b.sessionID, "error", err)
		firstErr = err
	}

	if b.global != nil {
		if err := b.global.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	logging.Get(logging.CategorySession).Infow("session brain closed",
		"session", b.sessionID, "pruned", pruned)
	return firstErr
}

func (b *Brain) snapshotPath() string {
	return filepath.Join(b.cfg.Persist.Dir, fmt.Sprintf(b.cfg.Persist.SnapshotFile, b.sessionID))
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
