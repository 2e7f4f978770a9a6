// Package weights owns all adaptive scalar weights for a session, grouped by
// category. Values are bounded to [-1,1] on every write, success/failure
// categories carry Beta pseudo-counts for Thompson sampling, and periodic
// homeostatic regulation pulls every value back toward neutral so repeated
// same-direction updates cannot run away.
package weights

import (
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"brainstem/internal/config"
	"brainstem/internal/logging"
	"brainstem/internal/types"
)

// Category identifies a weight namespace.
type Category string

const (
	CategoryBehavioral      Category = "behavioral"
	CategoryToolPreference  Category = "tool_preference"
	CategoryModelPreference Category = "model_preference"
	CategoryGoalAlignment   Category = "goal_alignment"
	CategoryUserInsight     Category = "user_insight"
	CategoryEnterprise      Category = "enterprise"
	CategoryGlobal          Category = "global"
)

// Categories lists all valid weight categories.
var Categories = []Category{
	CategoryBehavioral,
	CategoryToolPreference,
	CategoryModelPreference,
	CategoryGoalAlignment,
	CategoryUserInsight,
	CategoryEnterprise,
	CategoryGlobal,
}

// ValidCategory reports whether c is a known category.
func ValidCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Weight is one adaptive scalar. Value is the point estimate used for
// behavior; Alpha/Beta are Beta-distribution pseudo-counts maintained only
// for success/failure categories (tool/model preference).
type Weight struct {
	Value       float64   `json:"value"`
	Alpha       float64   `json:"alpha"`
	Beta        float64   `json:"beta"`
	UpdatedAt   time.Time `json:"updated_at"`
	UpdateCount uint64    `json:"update_count"`
}

// DefaultWeight is the smoothed default returned for absent keys.
func DefaultWeight() Weight {
	return Weight{Value: 0, Alpha: 1, Beta: 1}
}

const maxKeyLen = 256

// Store holds all weights for one session. All methods are safe for
// concurrent use, though per the session model a single writer is expected.
type Store struct {
	mu         sync.Mutex
	cfg        config.WeightsConfig
	weights    map[Category]map[string]*Weight
	deltaCount map[Category]int
	overrides  map[string]*readOverride
	rng        *rand.Rand
}

// NewStore creates an empty weight store.
func NewStore(cfg config.WeightsConfig) *Store {
	return &Store{
		cfg:        cfg,
		weights:    make(map[Category]map[string]*Weight),
		deltaCount: make(map[Category]int),
		overrides:  make(map[string]*readOverride),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRandSource replaces the sampling source. Tests use this for determinism.
func (s *Store) SetRandSource(src rand.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(src)
}

// Get returns the weight for (category, key). It never fails: absent keys and
// unknown categories return the smoothed default. Read-side overrides on
// tool_preference are applied here.
func (s *Store) Get(category Category, key string) Weight {
	s.mu.Lock()
	defer s.mu.Unlock()

	if category == CategoryToolPreference {
		if ov, ok := s.overrides[key]; ok && ov.turns > 0 {
			w := s.peek(category, key)
			if ov.activate {
				w.Value = 1
			} else {
				w.Value = -1
			}
			return w
		}
	}
	return s.peek(category, key)
}

// ApplyDelta adds delta to the weight's value, clamped to [-1,1], and returns
// the post-update weight. Malformed identifiers are rejected with a
// ValidationError; domain input never fails.
func (s *Store) ApplyDelta(category Category, key string, delta float64, reason string) (Weight, error) {
	if err := validate(category, key); err != nil {
		return Weight{}, err
	}
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return Weight{}, &types.ValidationError{Field: "delta", Value: key, Reason: "delta must be finite"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.ensure(category, key)
	next := clamp(w.Value + delta)
	if next < -1 || next > 1 {
		return Weight{}, &types.InvariantViolation{Component: "weights", Detail: "clamp produced out-of-range value"}
	}
	w.Value = next
	w.UpdatedAt = time.Now()
	w.UpdateCount++

	logging.Get(logging.CategoryWeights).Debugw("delta applied",
		"category", category, "key", key, "delta", delta, "value", w.Value, "reason", reason)

	s.countDeltaLocked(category)
	return *w, nil
}

// RecordOutcome updates the Beta pseudo-counts for (category, key) and
// recomputes the point value with loss-averse weighting: failures move the
// value by LossAversion times the magnitude of an equal-sized success.
func (s *Store) RecordOutcome(category Category, key string, success bool) (Weight, error) {
	if err := validate(category, key); err != nil {
		return Weight{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.ensure(category, key)
	if success {
		w.Alpha++
	} else {
		w.Beta++
	}

	// Prospect-theory value from observed counts (pseudo-counts minus the
	// Laplace prior), failures amplified by the loss-aversion coefficient.
	succ := w.Alpha - 1
	fail := (w.Beta - 1) * s.cfg.LossAversion
	w.Value = clamp((succ - fail) / (succ + fail + 1))
	w.UpdatedAt = time.Now()
	w.UpdateCount++

	logging.Get(logging.CategoryWeights).Debugw("outcome recorded",
		"category", category, "key", key, "success", success,
		"alpha", w.Alpha, "beta", w.Beta, "value", w.Value)

	s.countDeltaLocked(category)
	return *w, nil
}

// Keys returns the keys present in a category.
func (s *Store) Keys(category Category) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.weights[category]))
	for k := range s.weights[category] {
		keys = append(keys, k)
	}
	return keys
}

// Consolidate resets near-zero, rarely-updated weights to the default,
// removing noise before persistence. Returns the number of pruned keys.
func (s *Store) Consolidate(epsilon float64, minUses uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	pruned := 0
	for _, byKey := range s.weights {
		for key, w := range byKey {
			if math.Abs(w.Value) < epsilon && w.UpdateCount < minUses {
				delete(byKey, key)
				pruned++
			}
		}
	}
	if pruned > 0 {
		logging.Get(logging.CategoryWeights).Infow("consolidated", "pruned", pruned)
	}
	return pruned
}

// =============================================================================
// HOMEOSTATIC REGULATION
// =============================================================================

// countDeltaLocked advances the per-category write counter and triggers
// regulation every HomeostasisInterval writes. Regulation runs
// unconditionally; no caller can disable it.
func (s *Store) countDeltaLocked(category Category) {
	s.deltaCount[category]++
	if s.deltaCount[category]%s.cfg.HomeostasisInterval == 0 {
		s.regulateLocked(category)
	}
}

func (s *Store) regulateLocked(category Category) {
	for _, w := range s.weights[category] {
		w.Value -= w.Value * s.cfg.HomeostasisRate
	}
	logging.Get(logging.CategoryWeights).Debugw("homeostasis pass",
		"category", category, "rate", s.cfg.HomeostasisRate)
}

// =============================================================================
// INTERNAL
// =============================================================================

// peek returns a copy without creating an entry.
func (s *Store) peek(category Category, key string) Weight {
	if byKey, ok := s.weights[category]; ok {
		if w, ok := byKey[key]; ok {
			return *w
		}
	}
	return DefaultWeight()
}

func (s *Store) ensure(category Category, key string) *Weight {
	byKey, ok := s.weights[category]
	if !ok {
		byKey = make(map[string]*Weight)
		s.weights[category] = byKey
	}
	w, ok := byKey[key]
	if !ok {
		def := DefaultWeight()
		w = &def
		byKey[key] = w
	}
	return w
}

func validate(category Category, key string) error {
	if !ValidCategory(category) {
		return &types.ValidationError{Field: "category", Value: string(category), Reason: "unknown category"}
	}
	if key == "" {
		return &types.ValidationError{Field: "key", Value: key, Reason: "key must not be empty"}
	}
	if len(key) > maxKeyLen {
		return &types.ValidationError{Field: "key", Value: key[:32] + "...", Reason: "key too long"}
	}
	if strings.ContainsAny(key, "\x00\n\r") {
		return &types.ValidationError{Field: "key", Value: key, Reason: "key contains control characters"}
	}
	return nil
}

func clamp(v float64) float64 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
