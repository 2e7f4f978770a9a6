package prediction

import (
	"sync"
	"testing"

	"brainstem/internal/config"
	"brainstem/internal/types"
)

type captureObserver struct {
	mu      sync.Mutex
	records []Record
}

func (c *captureObserver) RecordPrediction(rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, rec)
}

func testConfig() config.PredictionConfig {
	return config.DefaultConfig().Prediction
}

// =============================================================================
// PREDICTION TESTS
// =============================================================================

func TestPredict_ColdStartIsNeutral(t *testing.T) {
	t.Parallel()

	e := NewEngine(testConfig(), nil)
	rec := e.Predict("grep", "search")

	if rec.ID == "" {
		t.Error("record missing ID")
	}
	if rec.Key != "grep+search" {
		t.Errorf("unexpected key %q", rec.Key)
	}
	if rec.PredictedQuality != 0.5 || rec.Confidence != 0.5 {
		t.Errorf("cold start should be neutral, got quality=%f confidence=%f",
			rec.PredictedQuality, rec.Confidence)
	}
	if e.Open() != rec {
		t.Error("predict should leave the record open")
	}
}

func TestPredict_UsesKeyHistory(t *testing.T) {
	t.Parallel()

	e := NewEngine(testConfig(), nil)

	rec := e.Predict("grep", "search")
	if _, err := e.Resolve(rec, 0.9, 200, true); err != nil {
		t.Fatalf("Resolve error: %v", err)
	}

	next := e.Predict("grep", "search")
	if next.PredictedQuality != 0.9 {
		t.Errorf("expected history-based quality 0.9, got %f", next.PredictedQuality)
	}
	if next.PredictedLatencyMS != 200 {
		t.Errorf("expected history-based latency 200, got %f", next.PredictedLatencyMS)
	}
	if !next.PredictedSuccess {
		t.Error("all-success history should predict success")
	}
}

func TestPredict_FallsBackToCrossKeyAverage(t *testing.T) {
	t.Parallel()

	e := NewEngine(testConfig(), nil)

	rec := e.Predict("grep", "search")
	e.Resolve(rec, 0.8, 100, true)

	// A never-seen pairing borrows the average rather than the neutral prior.
	unseen := e.Predict("sed", "edit")
	if unseen.PredictedQuality != 0.8 {
		t.Errorf("expected cross-key average 0.8, got %f", unseen.PredictedQuality)
	}
}

// =============================================================================
// RESOLUTION AND SURPRISE TESTS
// =============================================================================

func TestResolve_ExactMatchIsZeroSurprise(t *testing.T) {
	t.Parallel()

	e := NewEngine(testConfig(), nil)
	rec := e.Predict("grep", "search")

	surprise, err := e.Resolve(rec, rec.PredictedQuality, rec.PredictedLatencyMS, rec.PredictedSuccess)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if surprise != 0 {
		t.Errorf("exact match must yield zero surprise, got %f", surprise)
	}
	if !rec.Resolved {
		t.Error("record should be marked resolved")
	}
	if e.Open() != nil {
		t.Error("resolution should clear the open record")
	}
}

func TestResolve_SurpriseStaysBounded(t *testing.T) {
	t.Parallel()

	e := NewEngine(testConfig(), nil)
	rec := e.Predict("grep", "search")

	// Everything wrong at once, with a wild latency overshoot.
	surprise, err := e.Resolve(rec, 1.0, 50000, false)
	if err != nil {
		t.Fatalf("Resolve error: %v", err)
	}
	if surprise <= 0 || surprise > 1 {
		t.Errorf("surprise out of (0,1]: %f", surprise)
	}
}

func TestResolve_NilAndDoubleResolutionRejected(t *testing.T) {
	t.Parallel()

	e := NewEngine(testConfig(), nil)

	if _, err := e.Resolve(nil, 0.5, 0, true); !types.IsValidation(err) {
		t.Errorf("nil record: expected validation error, got %v", err)
	}

	rec := e.Predict("grep", "search")
	if _, err := e.Resolve(rec, 0.5, 0, true); err != nil {
		t.Fatalf("first Resolve error: %v", err)
	}
	if _, err := e.Resolve(rec, 0.5, 0, true); !types.IsValidation(err) {
		t.Errorf("double resolution: expected validation error, got %v", err)
	}
}

func TestResolve_AfterCloseIsNoOp(t *testing.T) {
	t.Parallel()

	e := NewEngine(testConfig(), nil)
	rec := e.Predict("grep", "search")

	e.CloseSession()

	surprise, err := e.Resolve(rec, 0.9, 100, true)
	if err != nil {
		t.Errorf("post-close resolve should be silent, got %v", err)
	}
	if surprise != 0 {
		t.Errorf("post-close resolve should yield zero, got %f", surprise)
	}
	if rec.Resolved {
		t.Error("post-close resolve must not mutate the record")
	}
}

func TestDiscard_DropsOpenRecordWithoutLearning(t *testing.T) {
	t.Parallel()

	observer := &captureObserver{}
	e := NewEngine(testConfig(), observer)

	rec := e.Predict("grep", "search")
	e.Discard(rec)

	if e.Open() != nil {
		t.Error("discard should clear the open record")
	}

	// History must be untouched: the next prediction is still cold.
	next := e.Predict("grep", "search")
	if next.PredictedQuality != 0.5 {
		t.Errorf("discarded record leaked into history: %f", next.PredictedQuality)
	}

	observer.mu.Lock()
	defer observer.mu.Unlock()
	if len(observer.records) != 0 {
		t.Errorf("discarded record reached the observer: %d", len(observer.records))
	}
}

func TestResolve_NotifiesObserver(t *testing.T) {
	t.Parallel()

	observer := &captureObserver{}
	e := NewEngine(testConfig(), observer)

	rec := e.Predict("grep", "search")
	e.Resolve(rec, 0.7, 150, true)

	observer.mu.Lock()
	defer observer.mu.Unlock()
	if len(observer.records) != 1 {
		t.Fatalf("expected 1 observed record, got %d", len(observer.records))
	}
	got := observer.records[0]
	if got.ID != rec.ID || !got.Resolved || got.ActualQuality != 0.7 {
		t.Errorf("observer saw wrong record: %+v", got)
	}
}

// =============================================================================
// CALIBRATION TESTS
// =============================================================================

func TestCalibration_MeasuresConfidenceGap(t *testing.T) {
	t.Parallel()

	e := NewEngine(testConfig(), nil)

	if got := e.Calibration(); got != 0 {
		t.Errorf("no resolutions yet, expected 0, got %f", got)
	}

	// One cold-start prediction (confidence 0.5) that succeeds: the gap
	// between stated confidence and the empirical hit rate is 0.5.
	rec := e.Predict("grep", "search")
	e.Resolve(rec, 0.9, 100, true)

	if got := e.Calibration(); got != 0.5 {
		t.Errorf("expected calibration gap 0.5, got %f", got)
	}
}

func TestCalibration_WindowIsBounded(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.CalibrationWindow = 5
	e := NewEngine(cfg, nil)

	for i := 0; i < 20; i++ {
		rec := e.Predict("grep", "search")
		e.Resolve(rec, 0.9, 100, true)
	}

	// With a saturated all-success history the window holds confident hits,
	// so the gap shrinks toward zero instead of averaging in cold starts.
	if got := e.Calibration(); got > 0.2 {
		t.Errorf("expected small calibration gap over recent window, got %f", got)
	}
}
