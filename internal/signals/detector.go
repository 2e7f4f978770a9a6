package signals

import (
	"strings"
)

// Detector classifies user messages. It carries no state; the session history
// needed for baselines is passed in per call.
type Detector struct{}

// NewDetector creates a detector.
func NewDetector() *Detector {
	return &Detector{}
}

// marker tables. Each match contributes to the signal's strength; strength is
// capped at 1.0.
var (
	frustrationMarkers = []string{
		"again", "still wrong", "still not", "doesn't work", "does not work",
		"not working", "why is", "why does", "ugh", "come on", "seriously",
		"frustrat", "annoying", "broken", "!!",
	}
	satisfactionMarkers = []string{
		"thanks", "thank you", "perfect", "great", "nice", "exactly",
		"that works", "awesome", "well done", "love it",
	}
	correctionMarkers = []string{
		"no,", "no.", "not that", "i meant", "i said", "actually", "instead",
		"that's wrong", "thats wrong", "incorrect", "you misunderstood",
		"don't", "do not", "stop",
	}
	speedMarkers = []string{
		"quick", "quickly", "fast", "faster", "asap", "hurry", "just do",
		"skip the", "no need to explain", "tl;dr", "tldr",
	}
	detailMarkers = []string{
		"explain", "in detail", "more detail", "elaborate", "walk me through",
		"why did you", "step by step", "what does",
	}
)

// Detect classifies message against the recent history. It returns zero or
// more signals; a message may carry several at once (a correction is often
// also frustrated). Empty input degrades to no signals, never an error.
func (d *Detector) Detect(message string, recent []string) []Signal {
	msg := strings.ToLower(strings.TrimSpace(message))
	if msg == "" {
		return nil
	}

	var out []Signal

	if sig, ok := d.scanMarkers(msg, SignalFrustration, frustrationMarkers, 0.4, 0.2); ok {
		out = append(out, sig)
	}
	if sig, ok := d.scanMarkers(msg, SignalSatisfaction, satisfactionMarkers, 0.5, 0.2); ok {
		out = append(out, sig)
	}
	if sig, ok := d.scanMarkers(msg, SignalCorrection, correctionMarkers, 0.5, 0.25); ok {
		out = append(out, sig)
	}
	if sig, ok := d.scanMarkers(msg, SignalSpeedPreference, speedMarkers, 0.4, 0.2); ok {
		out = append(out, sig)
	}
	if sig, ok := d.scanMarkers(msg, SignalDetailRequest, detailMarkers, 0.4, 0.2); ok {
		out = append(out, sig)
	}
	if sig, ok := d.detectBrevityShift(msg, recent); ok {
		out = append(out, sig)
	}

	return out
}

// scanMarkers builds a signal from marker hits: base strength for the first
// hit, step for each additional, capped at 1.
func (d *Detector) scanMarkers(msg string, t SignalType, markers []string, base, step float64) (Signal, bool) {
	hits := 0
	first := ""
	for _, m := range markers {
		if strings.Contains(msg, m) {
			if first == "" {
				first = m
			}
			hits++
		}
	}
	if hits == 0 {
		return Signal{}, false
	}

	strength := base + step*float64(hits-1)
	if strength > 1 {
		strength = 1
	}
	return Signal{
		Type:     t,
		Strength: strength,
		Source:   "marker_scan",
		Evidence: first,
	}, true
}

// detectBrevityShift fires only when the message is sharply shorter than the
// user's own running average. A user who always writes short messages has a
// baseline style, not a brevity preference; that distinction needs history,
// so fewer than three prior messages produce nothing.
func (d *Detector) detectBrevityShift(msg string, recent []string) (Signal, bool) {
	if len(recent) < 3 {
		return Signal{}, false
	}

	total := 0
	for _, r := range recent {
		total += len(r)
	}
	avg := float64(total) / float64(len(recent))
	if avg < 40 {
		// Baseline is already terse; a short message is not a shift.
		return Signal{}, false
	}

	ratio := float64(len(msg)) / avg
	if ratio > 0.4 {
		return Signal{}, false
	}

	// Shorter relative to baseline = stronger signal.
	strength := 1 - ratio/0.4
	return Signal{
		Type:     SignalBrevityShift,
		Strength: strength,
		Source:   "length_baseline",
		Evidence: "message far below running average length",
	}, true
}
