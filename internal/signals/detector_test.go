package signals

import (
	"strings"
	"testing"
)

func findSignal(sigs []Signal, t SignalType) (Signal, bool) {
	for _, s := range sigs {
		if s.Type == t {
			return s, true
		}
	}
	return Signal{}, false
}

// =============================================================================
// MARKER DETECTION TESTS
// =============================================================================

func TestDetect_Frustration(t *testing.T) {
	t.Parallel()

	d := NewDetector()
	sigs := d.Detect("this still doesn't work, again??", nil)

	sig, ok := findSignal(sigs, SignalFrustration)
	if !ok {
		t.Fatal("expected frustration signal")
	}
	if sig.Strength <= 0 || sig.Strength > 1 {
		t.Errorf("strength out of range: %f", sig.Strength)
	}
	if sig.Evidence == "" {
		t.Error("expected evidence naming the matched marker")
	}
}

func TestDetect_StrengthGrowsWithMarkerCount(t *testing.T) {
	t.Parallel()

	d := NewDetector()

	one, _ := findSignal(d.Detect("thanks", nil), SignalSatisfaction)
	many, _ := findSignal(d.Detect("thanks, perfect, that works great", nil), SignalSatisfaction)

	if many.Strength <= one.Strength {
		t.Errorf("more markers should raise strength: one=%f many=%f", one.Strength, many.Strength)
	}
	if many.Strength > 1 {
		t.Errorf("strength must cap at 1, got %f", many.Strength)
	}
}

func TestDetect_MessageMayCarrySeveralSignals(t *testing.T) {
	t.Parallel()

	d := NewDetector()
	sigs := d.Detect("no, that's wrong again, I meant the other file", nil)

	if _, ok := findSignal(sigs, SignalCorrection); !ok {
		t.Error("expected correction signal")
	}
	if _, ok := findSignal(sigs, SignalFrustration); !ok {
		t.Error("expected frustration signal")
	}
}

func TestDetect_SpeedAndDetailPreferences(t *testing.T) {
	t.Parallel()

	d := NewDetector()

	if _, ok := findSignal(d.Detect("just do it quickly, skip the explanation", nil), SignalSpeedPreference); !ok {
		t.Error("expected speed preference signal")
	}
	if _, ok := findSignal(d.Detect("walk me through this step by step", nil), SignalDetailRequest); !ok {
		t.Error("expected detail request signal")
	}
}

func TestDetect_EmptyAndNeutralInput(t *testing.T) {
	t.Parallel()

	d := NewDetector()

	if sigs := d.Detect("", nil); sigs != nil {
		t.Errorf("empty message should yield no signals, got %v", sigs)
	}
	if sigs := d.Detect("   \t  ", nil); sigs != nil {
		t.Errorf("whitespace message should yield no signals, got %v", sigs)
	}
	if sigs := d.Detect("please rename the helper in parser.go", nil); len(sigs) != 0 {
		t.Errorf("neutral message should yield no signals, got %v", sigs)
	}
}

func TestDetect_Deterministic(t *testing.T) {
	t.Parallel()

	d := NewDetector()
	recent := []string{"some earlier message with reasonable length", "another one here"}

	first := d.Detect("ugh, broken again", recent)
	second := d.Detect("ugh, broken again", recent)

	if len(first) != len(second) {
		t.Fatalf("detection not deterministic: %d vs %d signals", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("signal %d differs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

// =============================================================================
// BREVITY BASELINE TESTS
// =============================================================================

func TestDetect_BrevityShiftNeedsHistory(t *testing.T) {
	t.Parallel()

	d := NewDetector()

	if _, ok := findSignal(d.Detect("ok", []string{"one prior message"}), SignalBrevityShift); ok {
		t.Error("brevity shift should not fire with under three prior messages")
	}
}

func TestDetect_BrevityShiftAgainstVerboseBaseline(t *testing.T) {
	t.Parallel()

	d := NewDetector()
	long := strings.Repeat("a detailed sentence about the ongoing refactor ", 3)
	recent := []string{long, long, long}

	sig, ok := findSignal(d.Detect("ok", recent), SignalBrevityShift)
	if !ok {
		t.Fatal("expected brevity shift against verbose baseline")
	}
	if sig.Strength <= 0 || sig.Strength > 1 {
		t.Errorf("strength out of range: %f", sig.Strength)
	}
	if sig.Source != "length_baseline" {
		t.Errorf("unexpected source %q", sig.Source)
	}
}

func TestDetect_NoBrevityShiftForTerseBaseline(t *testing.T) {
	t.Parallel()

	d := NewDetector()
	recent := []string{"ok", "yes", "do it", "sure"}

	if _, ok := findSignal(d.Detect("ok", recent), SignalBrevityShift); ok {
		t.Error("a habitually terse user has a baseline, not a preference shift")
	}
}
