// Package prediction implements the predict-then-compare loop: a record is
// opened with point estimates before an action runs, resolved with the actual
// outcome afterward, and the normalized divergence between the two becomes
// the surprise magnitude that modulates learning speed.
package prediction

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"brainstem/internal/config"
	"brainstem/internal/logging"
	"brainstem/internal/types"
)

// Record is one prediction. Created before an action, completed after it;
// exactly one open record exists per in-flight action.
type Record struct {
	ID  string `json:"id"`
	Key string `json:"key"`

	PredictedQuality   float64 `json:"predicted_quality"`
	PredictedLatencyMS float64 `json:"predicted_latency_ms"`
	PredictedSuccess   bool    `json:"predicted_success"`
	Confidence         float64 `json:"confidence"` // predicted-success probability

	ActualQuality   float64 `json:"actual_quality"`
	ActualLatencyMS float64 `json:"actual_latency_ms"`
	ActualSuccess   bool    `json:"actual_success"`

	Surprise   float64   `json:"surprise"`
	OpenedAt   time.Time `json:"opened_at"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
	Resolved   bool      `json:"resolved"`
}

// Observer receives resolved records (read-only observability).
type Observer interface {
	RecordPrediction(Record)
}

// keyHistory holds per-key running statistics.
type keyHistory struct {
	count       int
	quality     float64 // running mean
	latencyMS   float64 // running mean
	latSpreadMS float64 // running mean absolute deviation
	successRate float64
}

// minLatencySpreadMS floors the latency-error denominator so a key with no
// observed spread does not turn every millisecond of jitter into maximal
// surprise.
const minLatencySpreadMS = 100

// Engine predicts action outcomes and scores surprise on resolution.
type Engine struct {
	cfg      config.PredictionConfig
	observer Observer

	mu     sync.Mutex
	open   *Record
	hist   map[string]*keyHistory
	calib  []calibEntry // ring of the last CalibrationWindow predictions
	closed bool
}

type calibEntry struct {
	confidence float64
	hit        float64
}

// NewEngine creates a prediction engine. observer may be nil.
func NewEngine(cfg config.PredictionConfig, observer Observer) *Engine {
	return &Engine{
		cfg:      cfg,
		observer: observer,
		hist:     make(map[string]*keyHistory),
	}
}

// Predict opens a record for the given entity/task pairing, estimating from
// per-key history, falling back to the average across all known keys, and
// finally to a neutral midpoint when no history exists at all.
func (e *Engine) Predict(entity, taskType string) *Record {
	key := fmt.Sprintf("%s+%s", entity, taskType)

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := &Record{
		ID:       uuid.NewString(),
		Key:      key,
		OpenedAt: time.Now(),
	}

	if h, ok := e.hist[key]; ok && h.count > 0 {
		rec.PredictedQuality = h.quality
		rec.PredictedLatencyMS = h.latencyMS
		rec.Confidence = h.successRate
	} else if avg, ok := e.averageLocked(); ok {
		rec.PredictedQuality = avg.quality
		rec.PredictedLatencyMS = avg.latencyMS
		rec.Confidence = avg.successRate
	} else {
		// Cold start: neutral midpoint with low confidence.
		rec.PredictedQuality = 0.5
		rec.PredictedLatencyMS = 0
		rec.Confidence = 0.5
	}
	rec.PredictedSuccess = rec.Confidence >= 0.5

	if e.open != nil {
		logging.Get(logging.CategoryPrediction).Warnw("previous record still open, discarding",
			"id", e.open.ID, "key", e.open.Key)
	}
	e.open = rec
	return rec
}

// Resolve closes the record and returns surprise in [0,1]: the weighted
// average of the clipped quality error, the latency error relative to the
// historical spread, and a binary success mismatch. A prediction exactly
// matching the actual outcome yields 0. Resolving the same record twice is
// rejected; resolving after session close is a no-op returning 0.
func (e *Engine) Resolve(rec *Record, actualQuality, actualLatencyMS float64, actualSuccess bool) (float64, error) {
	if rec == nil {
		return 0, &types.ValidationError{Field: "record", Value: "", Reason: "nil record"}
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return 0, nil
	}
	if rec.Resolved {
		e.mu.Unlock()
		return 0, &types.ValidationError{Field: "record", Value: rec.ID, Reason: "already resolved"}
	}

	actualQuality = clamp01(actualQuality)

	qErr := clamp01(math.Abs(actualQuality - rec.PredictedQuality))

	spread := minLatencySpreadMS
	if h, ok := e.hist[rec.Key]; ok && h.latSpreadMS > float64(spread) {
		spread = int(h.latSpreadMS)
	}
	latErr := clamp01(math.Abs(actualLatencyMS-rec.PredictedLatencyMS) / float64(spread))

	sErr := 0.0
	if actualSuccess != rec.PredictedSuccess {
		sErr = 1.0
	}

	wq, wl, ws := e.cfg.QualityWeight, e.cfg.LatencyWeight, e.cfg.SuccessWeight
	surprise := clamp01((wq*qErr + wl*latErr + ws*sErr) / (wq + wl + ws))

	rec.ActualQuality = actualQuality
	rec.ActualLatencyMS = actualLatencyMS
	rec.ActualSuccess = actualSuccess
	rec.Surprise = surprise
	rec.Resolved = true
	rec.ResolvedAt = time.Now()
	if e.open == rec {
		e.open = nil
	}

	e.updateHistoryLocked(rec.Key, actualQuality, actualLatencyMS, actualSuccess)
	e.pushCalibrationLocked(rec.Confidence, actualSuccess)
	e.mu.Unlock()

	logging.Get(logging.CategoryPrediction).Debugw("resolved",
		"key", rec.Key, "surprise", surprise,
		"q_err", qErr, "lat_err", latErr, "s_err", sErr)

	if e.observer != nil {
		e.observer.RecordPrediction(*rec)
	}
	return surprise, nil
}

// Discard drops the open record without resolving it. Used on turn
// cancellation: no weight update occurs for the abandoned action.
func (e *Engine) Discard(rec *Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec != nil && e.open == rec {
		e.open = nil
		logging.Get(logging.CategoryPrediction).Debugw("record discarded", "id", rec.ID)
	}
}

// Open returns the currently open record, if any.
func (e *Engine) Open() *Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// CloseSession expires the engine: any later Resolve is a no-op.
func (e *Engine) CloseSession() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.open = nil
}

// Calibration returns the absolute difference between the mean
// predicted-success confidence and the empirical hit rate over the last
// CalibrationWindow predictions. Exposed read-only; never fed back into the
// prediction formula.
func (e *Engine) Calibration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.calib) == 0 {
		return 0
	}
	var conf, hits float64
	for _, c := range e.calib {
		conf += c.confidence
		hits += c.hit
	}
	n := float64(len(e.calib))
	return math.Abs(conf/n - hits/n)
}

func (e *Engine) updateHistoryLocked(key string, quality, latencyMS float64, success bool) {
	h, ok := e.hist[key]
	if !ok {
		h = &keyHistory{}
		e.hist[key] = h
	}

	h.count++
	n := float64(h.count)
	h.quality += (quality - h.quality) / n
	prevLat := h.latencyMS
	h.latencyMS += (latencyMS - h.latencyMS) / n
	h.latSpreadMS += (math.Abs(latencyMS-prevLat) - h.latSpreadMS) / n
	hit := 0.0
	if success {
		hit = 1.0
	}
	h.successRate += (hit - h.successRate) / n
}

func (e *Engine) pushCalibrationLocked(confidence float64, success bool) {
	hit := 0.0
	if success {
		hit = 1.0
	}
	e.calib = append(e.calib, calibEntry{confidence: confidence, hit: hit})
	if len(e.calib) > e.cfg.CalibrationWindow {
		e.calib = e.calib[1:]
	}
}

// averageLocked returns the mean statistics across all known keys.
func (e *Engine) averageLocked() (keyHistory, bool) {
	if len(e.hist) == 0 {
		return keyHistory{}, false
	}
	var avg keyHistory
	for _, h := range e.hist {
		avg.quality += h.quality
		avg.latencyMS += h.latencyMS
		avg.successRate += h.successRate
	}
	n := float64(len(e.hist))
	avg.quality /= n
	avg.latencyMS /= n
	avg.successRate /= n
	return avg, true
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
