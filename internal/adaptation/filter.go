// Package adaptation gates how much of a raw signal's strength reaches the
// weight store. Repetitive signals habituate toward zero effect; genuinely
// novel ones are amplified. The governing principle: react to change, not to
// steady state.
package adaptation

import (
	"math"
	"sync"
	"time"

	"brainstem/internal/config"
	"brainstem/internal/logging"
	"brainstem/internal/signals"
)

// Phase is the habituation state for one signal key.
type Phase string

const (
	PhaseFresh         Phase = "fresh"
	PhaseHabituating   Phase = "habituating"
	PhaseHabituated    Phase = "habituated"
	PhaseDishabituated Phase = "dishabituated"
)

// State is the observable habituation state for one key.
type State struct {
	Phase            Phase
	RepeatCount      int
	HabituationLevel float64
	LastSeen         time.Time
	Observations     int
}

// keyState tracks one (signal type, target key) pair. Owned exclusively by
// the filter; mutated once per observation.
type keyState struct {
	recent      []float64 // fixed-capacity ring, FIFO eviction
	next        int
	filled      int
	repeatCount int
	habituation float64
	phase       Phase
	lastSeen    time.Time
	seen        int
}

// Filter is the stateful gate between signal/outcome events and the weight
// store.
type Filter struct {
	cfg    config.AdaptationConfig
	mu     sync.Mutex
	states map[string]*keyState
}

// NewFilter creates an adaptation filter.
func NewFilter(cfg config.AdaptationConfig) *Filter {
	return &Filter{
		cfg:    cfg,
		states: make(map[string]*keyState),
	}
}

// Apply returns the effective strength (possibly 0) a signal should carry
// toward targetKey.
func (f *Filter) Apply(sig signals.Signal, targetKey string) float64 {
	return f.observe(string(sig.Type)+"|"+targetKey, sig.Strength)
}

// ApplyOutcome runs plasticity-driven deltas through the same machinery, so a
// tool that always succeeds stops inflating its preference: the success
// becomes expected and its marginal reward shrinks. The delta's sign is
// preserved; habituation acts on magnitude.
func (f *Filter) ApplyOutcome(category, key string, rawDelta float64) float64 {
	if rawDelta == 0 {
		return 0
	}
	eff := f.observe("outcome|"+category+"|"+key, math.Abs(rawDelta))
	return math.Copysign(eff, rawDelta)
}

// State returns a copy of the habituation state for a signal key, if any.
func (f *Filter) State(sigType signals.SignalType, targetKey string) (State, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.states[string(sigType)+"|"+targetKey]
	if !ok {
		return State{}, false
	}
	return State{
		Phase:            st.phase,
		RepeatCount:      st.repeatCount,
		HabituationLevel: st.habituation,
		LastSeen:         st.lastSeen,
		Observations:     st.seen,
	}, true
}

// observe runs one value through the state machine for key and returns the
// effective strength.
func (f *Filter) observe(key string, value float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, ok := f.states[key]
	if !ok {
		st = &keyState{
			recent: make([]float64, f.cfg.RingCapacity),
			phase:  PhaseFresh,
		}
		f.states[key] = st
	}

	var eff float64
	switch {
	case st.filled == 0:
		// First occurrence always applies in full.
		st.phase = PhaseHabituating
		st.repeatCount = 1
		eff = value

	case math.Abs(value-st.mean()) > f.cfg.ChangeThreshold:
		// Dishabituation: a genuine change restores full response
		// immediately, boosted for this single occurrence.
		st.habituation = 0
		st.repeatCount = 0
		st.phase = PhaseDishabituated
		eff = math.Min(1, value*f.cfg.NoveltyBoost)
		logging.Get(logging.CategoryAdaptation).Debugw("dishabituated",
			"key", key, "value", value)

	case math.Abs(value-st.mean()) <= f.cfg.Tolerance:
		// Same as before: the streak deepens habituation once it clears
		// the repeat threshold.
		st.repeatCount++
		if st.repeatCount > f.cfg.RepeatThreshold {
			st.phase = PhaseHabituated
			st.habituation += (1 - st.habituation) * f.cfg.HabituationRate
		} else if st.phase != PhaseHabituated {
			st.phase = PhaseHabituating
		}
		eff = value * (1 - st.habituation)

	default:
		// Moderate deviation: breaks the streak without the novelty boost.
		st.repeatCount = 0
		st.phase = PhaseHabituating
		eff = value * (1 - st.habituation)
	}

	st.push(value)
	st.lastSeen = time.Now()
	st.seen++
	return eff
}

func (st *keyState) push(v float64) {
	st.recent[st.next] = v
	st.next = (st.next + 1) % len(st.recent)
	if st.filled < len(st.recent) {
		st.filled++
	}
}

func (st *keyState) mean() float64 {
	if st.filled == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < st.filled; i++ {
		sum += st.recent[i]
	}
	return sum / float64(st.filled)
}
