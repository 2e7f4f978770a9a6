// Package signals classifies raw user messages into typed implicit-feedback
// signals. Detection is pure and deterministic: the same message and history
// always yield the same signals, and a message is always judged against the
// session's own baseline, never an absolute style assumption.
package signals

// SignalType is the closed set of implicit feedback kinds.
type SignalType string

const (
	SignalFrustration     SignalType = "frustration"
	SignalSatisfaction    SignalType = "satisfaction"
	SignalCorrection      SignalType = "correction"
	SignalBrevityShift    SignalType = "brevity_shift"
	SignalSpeedPreference SignalType = "speed_preference"
	SignalDetailRequest   SignalType = "detail_request"
)

// Signal is one detected feedback signal. Immutable once created.
type Signal struct {
	Type     SignalType `json:"signal_type"`
	Strength float64    `json:"strength"` // [0,1]
	Source   string     `json:"source"`   // detector that produced it
	Evidence string     `json:"evidence"` // the matched surface feature
}
