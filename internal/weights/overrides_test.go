package weights

import (
	"testing"

	"brainstem/internal/types"
)

// =============================================================================
// READ OVERRIDE TESTS
// =============================================================================

func TestForceActivate_AppliesOnReadsAndExpires(t *testing.T) {
	t.Parallel()

	s := NewStore(testConfig())
	s.RecordOutcome(CategoryToolPreference, "grep+search", false)
	stored := s.Get(CategoryToolPreference, "grep+search")

	if err := s.ForceActivate("grep+search", 2); err != nil {
		t.Fatalf("ForceActivate error: %v", err)
	}

	if got := s.Get(CategoryToolPreference, "grep+search").Value; got != 1 {
		t.Errorf("forced read should report 1, got %f", got)
	}
	if got := s.SampleThompson(CategoryToolPreference, "grep+search"); got != 1 {
		t.Errorf("forced sample should report 1, got %f", got)
	}

	s.TickTurn()
	s.TickTurn()

	got := s.Get(CategoryToolPreference, "grep+search")
	if got.Value == 1 {
		t.Error("override should expire after its turns")
	}
	if got.Value != stored.Value {
		t.Errorf("stored value changed: want %f, got %f", stored.Value, got.Value)
	}
}

func TestForceSilence_AppliesOnReads(t *testing.T) {
	t.Parallel()

	s := NewStore(testConfig())
	s.RecordOutcome(CategoryToolPreference, "rm+cleanup", true)

	if err := s.ForceSilence("rm+cleanup", 1); err != nil {
		t.Fatalf("ForceSilence error: %v", err)
	}

	if got := s.Get(CategoryToolPreference, "rm+cleanup").Value; got != -1 {
		t.Errorf("silenced read should report -1, got %f", got)
	}
	if got := s.SampleThompson(CategoryToolPreference, "rm+cleanup"); got != 0 {
		t.Errorf("silenced sample should report 0, got %f", got)
	}
}

func TestSetOverride_RejectsNonPositiveTurns(t *testing.T) {
	t.Parallel()

	s := NewStore(testConfig())

	if err := s.ForceActivate("grep+search", 0); !types.IsValidation(err) {
		t.Errorf("expected validation error for 0 turns, got %v", err)
	}
	if err := s.ForceSilence("grep+search", -3); !types.IsValidation(err) {
		t.Errorf("expected validation error for negative turns, got %v", err)
	}
}

func TestOverrides_OnlyAffectToolPreferenceReads(t *testing.T) {
	t.Parallel()

	s := NewStore(testConfig())
	s.ApplyDelta(CategoryBehavioral, "grep+search", 0.2, "test")

	if err := s.ForceActivate("grep+search", 5); err != nil {
		t.Fatalf("ForceActivate error: %v", err)
	}

	if got := s.Get(CategoryBehavioral, "grep+search").Value; got != 0.2 {
		t.Errorf("override leaked into behavioral category: %f", got)
	}
}

func TestOverrideWeight_ClampsAndCounts(t *testing.T) {
	t.Parallel()

	s := NewStore(testConfig())

	w, err := s.OverrideWeight(CategoryBehavioral, "verbosity", 3.5)
	if err != nil {
		t.Fatalf("OverrideWeight error: %v", err)
	}
	if w.Value != 1 {
		t.Errorf("expected clamp to 1, got %f", w.Value)
	}
	if w.UpdateCount != 1 {
		t.Errorf("expected update count 1, got %d", w.UpdateCount)
	}
}
