package weights

import (
	"brainstem/internal/logging"
	"brainstem/internal/types"
)

// readOverride is a time-bounded override applied to tool_preference reads
// only. The stored value/alpha/beta are never touched.
type readOverride struct {
	activate bool // true = forced on, false = silenced
	turns    int
}

// OverrideWeight sets a weight's value directly, bypassing the normal update
// flow. The write is clamped like every other write and logged distinctly so
// downstream consumers can tell manual overrides from learned values.
func (s *Store) OverrideWeight(category Category, key string, value float64) (Weight, error) {
	if err := validate(category, key); err != nil {
		return Weight{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w := s.ensure(category, key)
	w.Value = clamp(value)
	w.UpdateCount++

	logging.Get(logging.CategoryWeights).Infow("manual override",
		"category", category, "key", key, "value", w.Value)
	return *w, nil
}

// ForceActivate makes tool_preference reads for key report full preference
// for the given number of turns.
func (s *Store) ForceActivate(key string, turns int) error {
	return s.setOverride(key, turns, true)
}

// ForceSilence makes tool_preference reads for key report full aversion for
// the given number of turns.
func (s *Store) ForceSilence(key string, turns int) error {
	return s.setOverride(key, turns, false)
}

func (s *Store) setOverride(key string, turns int, activate bool) error {
	if err := validate(CategoryToolPreference, key); err != nil {
		return err
	}
	if turns <= 0 {
		return &types.ValidationError{Field: "turns", Value: key, Reason: "turns must be positive"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[key] = &readOverride{activate: activate, turns: turns}

	logging.Get(logging.CategoryWeights).Infow("read override set",
		"key", key, "activate", activate, "turns", turns)
	return nil
}

// TickTurn advances override expiry by one turn. The session calls this once
// per agent turn.
func (s *Store) TickTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, ov := range s.overrides {
		ov.turns--
		if ov.turns <= 0 {
			delete(s.overrides, key)
			logging.Get(logging.CategoryWeights).Debugw("read override expired", "key", key)
		}
	}
}
