// Package plasticity converts tool/model execution outcomes into weight
// deltas: Hebbian association between an entity and a task type, LTP/LTD
// streak compounding, surprise-scaled learning rate, and an early-session
// critical period of elevated plasticity.
package plasticity

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"brainstem/internal/adaptation"
	"brainstem/internal/config"
	"brainstem/internal/logging"
	"brainstem/internal/weights"
)

// Rule names which learning rule produced an event.
type Rule string

const (
	RuleHebbian     Rule = "hebbian"
	RuleLTP         Rule = "ltp"
	RuleLTD         Rule = "ltd"
	RuleHomeostasis Rule = "homeostasis"
)

// EntityKind distinguishes tool outcomes from model outcomes.
type EntityKind string

const (
	KindTool  EntityKind = "tool"
	KindModel EntityKind = "model"
)

// Event is one append-only plasticity log entry. Events feed observability
// collaborators only; the core never reads them back for decisions.
type Event struct {
	ID           string    `json:"id"`
	Rule         Rule      `json:"rule"`
	AffectedKeys []string  `json:"affected_keys"`
	Magnitude    float64   `json:"magnitude"`
	SessionStep  uint64    `json:"session_step"`
	At           time.Time `json:"at"`
}

// Sink receives the plasticity event stream (read-only observability).
type Sink interface {
	RecordPlasticityEvent(Event)
}

// Engine applies outcome-driven learning against the weight store, gated by
// the adaptation filter.
type Engine struct {
	cfg    config.PlasticityConfig
	store  *weights.Store
	filter *adaptation.Filter
	sink   Sink

	mu      sync.Mutex
	step    uint64
	streaks map[string]int // >0 consecutive successes, <0 consecutive failures
	log     []Event
}

// NewEngine creates a plasticity engine. sink may be nil.
func NewEngine(cfg config.PlasticityConfig, store *weights.Store, filter *adaptation.Filter, sink Sink) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   store,
		filter:  filter,
		sink:    sink,
		streaks: make(map[string]int),
	}
}

// OnOutcome applies one execution outcome. Invalid identifiers produce no
// events and are logged; plasticity never aborts a turn.
func (e *Engine) OnOutcome(kind EntityKind, entity, taskType string, success bool, quality, surprise float64) []Event {
	if entity == "" || taskType == "" {
		logging.Get(logging.CategoryPlasticity).Warnw("outcome dropped",
			"entity", entity, "task_type", taskType, "reason", "empty identifier")
		return nil
	}

	category := weights.CategoryToolPreference
	if kind == KindModel {
		category = weights.CategoryModelPreference
	}
	key := fmt.Sprintf("%s+%s", entity, taskType)
	quality = clamp01(quality)
	surprise = clamp01(surprise)

	e.mu.Lock()
	e.step++
	step := e.step

	// Hebbian base: how well did this pairing perform?
	base := (quality - 0.5) * e.cfg.BaseRate

	// LTP/LTD: sustained success compounds faster than isolated success, and
	// sustained failure erodes faster than isolated failure.
	streak := e.streaks[key]
	if success {
		if streak > 0 {
			streak++
		} else {
			streak = 1
		}
	} else {
		if streak < 0 {
			streak--
		} else {
			streak = -1
		}
	}
	e.streaks[key] = streak
	streakLen := streak
	if streakLen < 0 {
		streakLen = -streakLen
	}
	mult := 1.0
	if streakLen > 1 {
		mult = math.Min(e.cfg.StreakCap, 1+e.cfg.StreakStep*float64(streakLen))
	}

	critical := e.criticalFactorLocked(step)
	e.mu.Unlock()

	// Surprise-scaled learning: a wrong prediction teaches more than a
	// confirmed one.
	raw := base * mult * (1 + surprise) * critical

	eff := e.filter.ApplyOutcome(string(category), key, raw)
	var applied weights.Weight
	if eff != 0 {
		var err error
		applied, err = e.store.ApplyDelta(category, key, eff, "plasticity")
		if err != nil {
			logging.Get(logging.CategoryPlasticity).Warnw("delta rejected",
				"key", key, "error", err)
			return nil
		}
	}

	events := []Event{e.emit(RuleHebbian, []string{key}, eff, step)}
	if mult > 1 {
		rule := RuleLTP
		if streak < 0 {
			rule = RuleLTD
		}
		events = append(events, e.emit(rule, []string{key}, mult, step))
	}

	logging.Get(logging.CategoryPlasticity).Debugw("outcome applied",
		"key", key, "success", success, "quality", quality, "surprise", surprise,
		"raw", raw, "effective", eff, "streak", streak, "value", applied.Value)
	return events
}

// Consolidate prunes noise weights at session close and emits a homeostasis
// event recording how many keys were reset.
func (e *Engine) Consolidate() int {
	pruned := e.store.Consolidate(e.cfg.ConsolidateEpsilon, e.cfg.ConsolidateMinUses)

	e.mu.Lock()
	step := e.step
	e.mu.Unlock()
	e.emit(RuleHomeostasis, nil, float64(pruned), step)
	return pruned
}

// SessionStep returns the number of outcomes processed.
func (e *Engine) SessionStep() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step
}

// Events returns a copy of the append-only event log.
func (e *Engine) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Event, len(e.log))
	copy(out, e.log)
	return out
}

// criticalFactorLocked returns the critical-period multiplier: starts at the
// configured boost and decays linearly to 1.0 by the configured step.
func (e *Engine) criticalFactorLocked(step uint64) float64 {
	k := e.cfg.CriticalPeriodSteps
	if k <= 1 || step >= k {
		return 1.0
	}
	boost := e.cfg.CriticalPeriodBoost
	return boost - (boost-1)*float64(step-1)/float64(k-1)
}

func (e *Engine) emit(rule Rule, keys []string, magnitude float64, step uint64) Event {
	ev := Event{
		ID:           uuid.NewString(),
		Rule:         rule,
		AffectedKeys: keys,
		Magnitude:    magnitude,
		SessionStep:  step,
		At:           time.Now(),
	}
	e.mu.Lock()
	e.log = append(e.log, ev)
	e.mu.Unlock()
	if e.sink != nil {
		e.sink.RecordPlasticityEvent(ev)
	}
	return ev
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
