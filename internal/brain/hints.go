package brain

import (
	"fmt"
	"sort"
	"strings"

	"brainstem/internal/goals"
	"brainstem/internal/weights"
)

// KeyValue is one ranked preference entry.
type KeyValue struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// Hints is a prompt-ready snapshot of the session's learned state. It is a
// read-only view; rendering it has no side effects on any weight.
type Hints struct {
	Verbosity       float64     `json:"verbosity"`
	Thoroughness    float64     `json:"thoroughness"`
	CurrentApproach float64     `json:"current_approach"`
	TopTools        []KeyValue  `json:"top_tools"`
	TopModels       []KeyValue  `json:"top_models"`
	Calibration     float64     `json:"calibration"`
	Goal            goals.State `json:"goal"`
}

const hintTopN = 3

// BehavioralHints assembles the current learned state for prompt injection.
func (b *Brain) BehavioralHints() Hints {
	return Hints{
		Verbosity:       b.store.Get(weights.CategoryBehavioral, "verbosity").Value,
		Thoroughness:    b.store.Get(weights.CategoryBehavioral, "thoroughness").Value,
		CurrentApproach: b.store.Get(weights.CategoryBehavioral, "current_approach").Value,
		TopTools:        b.topWeights(weights.CategoryToolPreference, hintTopN),
		TopModels:       b.topWeights(weights.CategoryModelPreference, hintTopN),
		Calibration:     b.prediction.Calibration(),
		Goal:            b.goals.CurrentState(),
	}
}

func (b *Brain) topWeights(category weights.Category, n int) []KeyValue {
	var out []KeyValue
	for _, key := range b.store.Keys(category) {
		out = append(out, KeyValue{Key: key, Value: b.store.Get(category, key).Value})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Key < out[j].Key
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// Render formats the hints as a compact text block suitable for inclusion in
// a system prompt. Neutral weights produce no lines; an untrained session
// renders empty.
func (h Hints) Render() string {
	var sb strings.Builder

	writeTendency(&sb, "verbosity", h.Verbosity)
	writeTendency(&sb, "thoroughness", h.Thoroughness)

	if len(h.TopTools) > 0 {
		sb.WriteString("preferred tools: ")
		sb.WriteString(joinRanked(h.TopTools))
		sb.WriteByte('\n')
	}
	if len(h.TopModels) > 0 {
		sb.WriteString("preferred models: ")
		sb.WriteString(joinRanked(h.TopModels))
		sb.WriteByte('\n')
	}
	if h.Goal.GoalText != "" {
		fmt.Fprintf(&sb, "goal: %s (progress %.0f%%, drift %.2f, action: %s)\n",
			h.Goal.GoalText, h.Goal.Progress*100, h.Goal.DriftScore, h.Goal.RecommendedAction)
	}
	return sb.String()
}

// writeTendency renders one behavioral scalar as a direction, skipping the
// neutral band where the session has learned nothing meaningful.
func writeTendency(sb *strings.Builder, name string, v float64) {
	const neutralBand = 0.1
	switch {
	case v > neutralBand:
		fmt.Fprintf(sb, "lean higher %s (%.2f)\n", name, v)
	case v < -neutralBand:
		fmt.Fprintf(sb, "lean lower %s (%.2f)\n", name, v)
	}
}

func joinRanked(kvs []KeyValue) string {
	parts := make([]string, len(kvs))
	for i, kv := range kvs {
		parts[i] = fmt.Sprintf("%s (%.2f)", kv.Key, kv.Value)
	}
	return strings.Join(parts, ", ")
}
