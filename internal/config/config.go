// Package config holds all brainstem configuration.
// Configuration is loaded from a single YAML file; every knob has a default so
// a missing file yields a fully working session.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all brainstem configuration.
type Config struct {
	Weights    WeightsConfig    `yaml:"weights"`
	Adaptation AdaptationConfig `yaml:"adaptation"`
	Plasticity PlasticityConfig `yaml:"plasticity"`
	Prediction PredictionConfig `yaml:"prediction"`
	Goals      GoalsConfig      `yaml:"goals"`
	GlobalTier GlobalTierConfig `yaml:"global_tier"`
	Persist    PersistConfig    `yaml:"persistence"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// WeightsConfig configures the weight store.
type WeightsConfig struct {
	// Homeostasis runs every HomeostasisInterval applied deltas per category.
	HomeostasisInterval int `yaml:"homeostasis_interval"`

	// Fraction of the distance to zero removed per homeostasis pass.
	HomeostasisRate float64 `yaml:"homeostasis_rate"`

	// Multiplier on failure magnitude when recomputing value from Beta
	// pseudo-counts. One failure erodes trust faster than one success builds it.
	LossAversion float64 `yaml:"loss_aversion"`
}

// AdaptationConfig configures the habituation filter.
type AdaptationConfig struct {
	RingCapacity    int     `yaml:"ring_capacity"`    // recent-value window per key
	Tolerance       float64 `yaml:"tolerance"`        // "same" band around the recent mean
	RepeatThreshold int     `yaml:"repeat_threshold"` // consecutive sames before habituation
	HabituationRate float64 `yaml:"habituation_rate"` // approach rate toward full habituation
	ChangeThreshold float64 `yaml:"change_threshold"` // deviation that dishabituates
	NoveltyBoost    float64 `yaml:"novelty_boost"`    // multiplier on a dishabituating signal
}

// PlasticityConfig configures outcome-driven learning.
type PlasticityConfig struct {
	BaseRate            float64 `yaml:"base_rate"`
	StreakStep          float64 `yaml:"streak_step"`           // per-streak-length increment
	StreakCap           float64 `yaml:"streak_cap"`            // LTP/LTD multiplier ceiling
	CriticalPeriodSteps uint64  `yaml:"critical_period_steps"` // elevated-rate window
	CriticalPeriodBoost float64 `yaml:"critical_period_boost"` // starting multiplier, decays to 1.0
	ConsolidateEpsilon  float64 `yaml:"consolidate_epsilon"`   // |value| below this is noise
	ConsolidateMinUses  uint64  `yaml:"consolidate_min_uses"`  // update_count below this is noise
}

// PredictionConfig configures the predict-then-compare engine.
type PredictionConfig struct {
	CalibrationWindow int     `yaml:"calibration_window"`
	QualityWeight     float64 `yaml:"quality_weight"`
	LatencyWeight     float64 `yaml:"latency_weight"`
	SuccessWeight     float64 `yaml:"success_weight"`
}

// GoalsConfig configures goal/drift/loop tracking.
type GoalsConfig struct {
	LoopWindow     int           `yaml:"loop_window"`     // fingerprint FIFO capacity
	LoopThreshold  int           `yaml:"loop_threshold"`  // occurrences within window
	StallThreshold int           `yaml:"stall_threshold"` // flat-progress steps before stall
	DriftWarn      float64       `yaml:"drift_warn"`
	DriftCritical  float64       `yaml:"drift_critical"`
	VerifyEvery    int           `yaml:"verify_every"`   // min steps between external verifications
	VerifyTimeout  time.Duration `yaml:"verify_timeout"` // external verifier budget
}

// GlobalTierConfig configures the cross-session weight queue.
type GlobalTierConfig struct {
	Enabled       bool          `yaml:"enabled"`
	QueueCapacity int           `yaml:"queue_capacity"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

// PersistConfig configures snapshot and telemetry storage.
type PersistConfig struct {
	Dir          string `yaml:"dir"`           // state directory (snapshots + telemetry db)
	SnapshotFile string `yaml:"snapshot_file"` // per-session snapshot filename pattern
}

// LoggingConfig configures category file logging.
type LoggingConfig struct {
	Enabled    bool            `yaml:"enabled"`
	Level      string          `yaml:"level"` // debug, info, warn, error
	Dir        string          `yaml:"dir"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Weights: WeightsConfig{
			HomeostasisInterval: 50,
			HomeostasisRate:     0.02,
			LossAversion:        2.0,
		},
		Adaptation: AdaptationConfig{
			RingCapacity:    20,
			Tolerance:       0.1,
			RepeatThreshold: 8,
			HabituationRate: 0.3,
			ChangeThreshold: 0.3,
			NoveltyBoost:    2.0,
		},
		Plasticity: PlasticityConfig{
			BaseRate:            0.05,
			StreakStep:          0.1,
			StreakCap:           2.0,
			CriticalPeriodSteps: 10,
			CriticalPeriodBoost: 1.5,
			ConsolidateEpsilon:  0.02,
			ConsolidateMinUses:  3,
		},
		Prediction: PredictionConfig{
			CalibrationWindow: 50,
			QualityWeight:     1.0 / 3.0,
			LatencyWeight:     1.0 / 3.0,
			SuccessWeight:     1.0 / 3.0,
		},
		Goals: GoalsConfig{
			LoopWindow:     20,
			LoopThreshold:  3,
			StallThreshold: 5,
			DriftWarn:      0.3,
			DriftCritical:  0.6,
			VerifyEvery:    5,
			VerifyTimeout:  2 * time.Second,
		},
		GlobalTier: GlobalTierConfig{
			Enabled:       false,
			QueueCapacity: 1000,
			FlushInterval: 5 * time.Second,
			BatchSize:     100,
		},
		Persist: PersistConfig{
			Dir:          ".brainstem",
			SnapshotFile: "weights_%s.json",
		},
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
			Dir:     ".brainstem/logs",
		},
	}
}

// Load reads configuration from a YAML file, overlaying it on defaults.
// A missing file returns defaults without error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration bounds.
func (c *Config) Validate() error {
	if c.Weights.HomeostasisInterval <= 0 {
		return fmt.Errorf("weights.homeostasis_interval must be positive, got %d", c.Weights.HomeostasisInterval)
	}
	if c.Weights.HomeostasisRate < 0 || c.Weights.HomeostasisRate > 1 {
		return fmt.Errorf("weights.homeostasis_rate must be in [0,1], got %f", c.Weights.HomeostasisRate)
	}
	if c.Weights.LossAversion < 1 {
		return fmt.Errorf("weights.loss_aversion must be >= 1, got %f", c.Weights.LossAversion)
	}
	if c.Adaptation.RingCapacity <= 0 {
		return fmt.Errorf("adaptation.ring_capacity must be positive, got %d", c.Adaptation.RingCapacity)
	}
	if c.Adaptation.ChangeThreshold <= c.Adaptation.Tolerance {
		return fmt.Errorf("adaptation.change_threshold (%f) must exceed tolerance (%f)",
			c.Adaptation.ChangeThreshold, c.Adaptation.Tolerance)
	}
	if c.Plasticity.BaseRate <= 0 {
		return fmt.Errorf("plasticity.base_rate must be positive, got %f", c.Plasticity.BaseRate)
	}
	if c.Plasticity.StreakCap < 1 {
		return fmt.Errorf("plasticity.streak_cap must be >= 1, got %f", c.Plasticity.StreakCap)
	}
	if c.Goals.LoopThreshold < 2 {
		return fmt.Errorf("goals.loop_threshold must be >= 2, got %d", c.Goals.LoopThreshold)
	}
	if c.Goals.DriftCritical <= c.Goals.DriftWarn {
		return fmt.Errorf("goals.drift_critical (%f) must exceed drift_warn (%f)",
			c.Goals.DriftCritical, c.Goals.DriftWarn)
	}
	if c.GlobalTier.QueueCapacity <= 0 {
		return fmt.Errorf("global_tier.queue_capacity must be positive, got %d", c.GlobalTier.QueueCapacity)
	}
	sum := c.Prediction.QualityWeight + c.Prediction.LatencyWeight + c.Prediction.SuccessWeight
	if sum <= 0 {
		return fmt.Errorf("prediction surprise weights must sum to a positive value, got %f", sum)
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
