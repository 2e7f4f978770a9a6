// Package telemetry persists the observable event streams (plasticity events,
// resolved predictions, goal snapshots) to SQLite. The store is write-mostly:
// the control core pushes into it and never reads it back for decisions; the
// read side exists for the diagnostics CLI.
package telemetry

import (
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"brainstem/internal/goals"
	"brainstem/internal/logging"
	"brainstem/internal/plasticity"
	"brainstem/internal/prediction"
	"brainstem/internal/types"
)

// Store manages the telemetry database for one or more sessions.
type Store struct {
	db        *sql.DB
	dbPath    string
	sessionID string
	mu        sync.RWMutex
}

// NewStore creates or opens the telemetry store under dir.
func NewStore(dir, sessionID string) (*Store, error) {
	dbPath := filepath.Join(dir, "telemetry.db")

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &types.PersistenceError{Op: "create telemetry dir", Path: dir, Err: err}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, &types.PersistenceError{Op: "open telemetry db", Path: dbPath, Err: err}
	}

	store := &Store{
		db:        db,
		dbPath:    dbPath,
		sessionID: sessionID,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, &types.PersistenceError{Op: "init telemetry schema", Path: dbPath, Err: err}
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS plasticity_events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		rule TEXT NOT NULL,
		affected_keys_json TEXT,
		magnitude REAL NOT NULL,
		session_step INTEGER NOT NULL,
		at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_plasticity_session ON plasticity_events(session_id);
	CREATE INDEX IF NOT EXISTS idx_plasticity_at ON plasticity_events(at);

	CREATE TABLE IF NOT EXISTS predictions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		key TEXT NOT NULL,
		predicted_quality REAL NOT NULL,
		predicted_latency_ms REAL NOT NULL,
		predicted_success INTEGER NOT NULL,
		confidence REAL NOT NULL,
		actual_quality REAL NOT NULL,
		actual_latency_ms REAL NOT NULL,
		actual_success INTEGER NOT NULL,
		surprise REAL NOT NULL,
		opened_at DATETIME NOT NULL,
		resolved_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_session ON predictions(session_id);
	CREATE INDEX IF NOT EXISTS idx_predictions_key ON predictions(key);

	CREATE TABLE IF NOT EXISTS goal_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		goal_text TEXT NOT NULL,
		progress REAL NOT NULL,
		drift_score REAL NOT NULL,
		stall_turns INTEGER NOT NULL,
		loop_detected INTEGER NOT NULL,
		recommended_action TEXT NOT NULL,
		phase TEXT NOT NULL,
		at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_goal_session ON goal_snapshots(session_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WRITE SIDE
// =============================================================================

// RecordPlasticityEvent stores one plasticity event. Failures are logged, not
// returned: telemetry must never abort a turn.
func (s *Store) RecordPlasticityEvent(ev plasticity.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keysJSON, _ := json.Marshal(ev.AffectedKeys)

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO plasticity_events (id, session_id, rule, affected_keys_json,
			magnitude, session_step, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.ID, s.sessionID, string(ev.Rule), keysJSON, ev.Magnitude, ev.SessionStep, ev.At)

	if err != nil {
		logging.Get(logging.CategoryTelemetry).Warnw("plasticity event write failed",
			"id", ev.ID, "error", err)
	}
}

// RecordPrediction stores one resolved prediction record.
func (s *Store) RecordPrediction(rec prediction.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO predictions (id, session_id, key,
			predicted_quality, predicted_latency_ms, predicted_success, confidence,
			actual_quality, actual_latency_ms, actual_success,
			surprise, opened_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, s.sessionID, rec.Key,
		rec.PredictedQuality, rec.PredictedLatencyMS, boolInt(rec.PredictedSuccess), rec.Confidence,
		rec.ActualQuality, rec.ActualLatencyMS, boolInt(rec.ActualSuccess),
		rec.Surprise, rec.OpenedAt, rec.ResolvedAt)

	if err != nil {
		logging.Get(logging.CategoryTelemetry).Warnw("prediction write failed",
			"id", rec.ID, "error", err)
	}
}

// RecordGoalState stores a goal tracker snapshot.
func (s *Store) RecordGoalState(st goals.State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO goal_snapshots (session_id, step, goal_text, progress, drift_score,
			stall_turns, loop_detected, recommended_action, phase, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.sessionID, st.Step, st.GoalText, st.Progress, st.DriftScore,
		st.StallTurns, boolInt(st.LoopDetected), string(st.RecommendedAction),
		string(st.Phase), time.Now())

	if err != nil {
		logging.Get(logging.CategoryTelemetry).Warnw("goal snapshot write failed",
			"step", st.Step, "error", err)
	}
}

// =============================================================================
// READ SIDE (diagnostics only)
// =============================================================================

// GetRecentPlasticityEvents returns the newest events for a session.
func (s *Store) GetRecentPlasticityEvents(sessionID string, limit int) ([]plasticity.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, rule, affected_keys_json, magnitude, session_step, at
		FROM plasticity_events
		WHERE session_id = ?
		ORDER BY at DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []plasticity.Event
	for rows.Next() {
		var ev plasticity.Event
		var rule string
		var keysJSON sql.NullString
		if err := rows.Scan(&ev.ID, &rule, &keysJSON, &ev.Magnitude, &ev.SessionStep, &ev.At); err != nil {
			continue
		}
		ev.Rule = plasticity.Rule(rule)
		if keysJSON.Valid {
			json.Unmarshal([]byte(keysJSON.String), &ev.AffectedKeys)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetRecentPredictions returns the newest resolved predictions for a session.
func (s *Store) GetRecentPredictions(sessionID string, limit int) ([]prediction.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, key, predicted_quality, predicted_latency_ms, predicted_success,
			confidence, actual_quality, actual_latency_ms, actual_success,
			surprise, opened_at, resolved_at
		FROM predictions
		WHERE session_id = ?
		ORDER BY resolved_at DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []prediction.Record
	for rows.Next() {
		var rec prediction.Record
		var predSucc, actSucc int
		if err := rows.Scan(&rec.ID, &rec.Key, &rec.PredictedQuality, &rec.PredictedLatencyMS,
			&predSucc, &rec.Confidence, &rec.ActualQuality, &rec.ActualLatencyMS,
			&actSucc, &rec.Surprise, &rec.OpenedAt, &rec.ResolvedAt); err != nil {
			continue
		}
		rec.PredictedSuccess = predSucc != 0
		rec.ActualSuccess = actSucc != 0
		rec.Resolved = true
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetGoalHistory returns the newest goal snapshots for a session.
func (s *Store) GetGoalHistory(sessionID string, limit int) ([]goals.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT step, goal_text, progress, drift_score, stall_turns, loop_detected,
			recommended_action, phase
		FROM goal_snapshots
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []goals.State
	for rows.Next() {
		var st goals.State
		var looped int
		var action, phase string
		if err := rows.Scan(&st.Step, &st.GoalText, &st.Progress, &st.DriftScore,
			&st.StallTurns, &looped, &action, &phase); err != nil {
			continue
		}
		st.LoopDetected = looped != 0
		st.RecommendedAction = goals.RecommendedAction(action)
		st.Phase = goals.Phase(phase)
		states = append(states, st)
	}
	return states, rows.Err()
}

// Sessions lists the distinct session IDs present in the store.
func (s *Store) Sessions() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT DISTINCT session_id FROM (
			SELECT session_id FROM plasticity_events
			UNION SELECT session_id FROM predictions
			UNION SELECT session_id FROM goal_snapshots
		) ORDER BY session_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
