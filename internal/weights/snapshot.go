package weights

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"

	"brainstem/internal/logging"
	"brainstem/internal/types"
)

// SnapshotWeight is the persisted form of a weight.
type SnapshotWeight struct {
	Value       float64 `json:"value"`
	Alpha       float64 `json:"alpha"`
	Beta        float64 `json:"beta"`
	UpdateCount uint64  `json:"update_count"`
}

// Snapshot is one JSON document per session: category -> key -> weight.
type Snapshot map[Category]map[string]SnapshotWeight

// Snapshot returns a deep copy of the store's current weights.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := make(Snapshot, len(s.weights))
	for category, byKey := range s.weights {
		if len(byKey) == 0 {
			continue
		}
		out := make(map[string]SnapshotWeight, len(byKey))
		for key, w := range byKey {
			out[key] = SnapshotWeight{
				Value:       w.Value,
				Alpha:       w.Alpha,
				Beta:        w.Beta,
				UpdateCount: w.UpdateCount,
			}
		}
		snap[category] = out
	}
	return snap
}

// Restore replaces the store's weights from a snapshot. Unknown categories
// are ignored, values are re-clamped, and pseudo-counts are floored at 1, so
// a snapshot from an older or corrupted file can never violate invariants.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.weights = make(map[Category]map[string]*Weight)
	for category, byKey := range snap {
		if !ValidCategory(category) {
			continue
		}
		for key, sw := range byKey {
			if validate(category, key) != nil {
				continue
			}
			w := s.ensure(category, key)
			w.Value = clamp(sw.Value)
			w.Alpha = math.Max(1, sw.Alpha)
			w.Beta = math.Max(1, sw.Beta)
			w.UpdateCount = sw.UpdateCount
		}
	}
}

// SaveSnapshot serializes the snapshot to path atomically: write to a
// temporary file in the same directory, then rename over the target. A crash
// can never leave a partial file behind. The write is retried once before a
// PersistenceError is surfaced; in-memory state is unaffected either way.
func (s *Store) SaveSnapshot(path string) error {
	snap := s.Snapshot()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return &types.PersistenceError{Op: "save", Path: path, Err: err}
	}

	if err := writeAtomic(path, data); err != nil {
		logging.Get(logging.CategoryPersistence).Warnw("snapshot write failed, retrying",
			"path", path, "error", err)
		if err = writeAtomic(path, data); err != nil {
			return &types.PersistenceError{Op: "save", Path: path, Err: err}
		}
	}

	logging.Get(logging.CategoryPersistence).Infow("snapshot saved", "path", path)
	return nil
}

// LoadSnapshot reads a snapshot from path. A missing file returns an empty
// snapshot; a corrupt file is a PersistenceError.
func LoadSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}, nil
		}
		return nil, &types.PersistenceError{Op: "load", Path: path, Err: err}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, &types.PersistenceError{Op: "load", Path: path, Err: err}
	}
	return snap, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}
