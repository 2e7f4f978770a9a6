// Package logging provides config-driven categorized file logging for brainstem.
// Each category writes to its own file under the configured log directory.
// When logging is disabled every call is a silent no-op, so the core can log
// unconditionally without guarding call sites.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategorySession     Category = "session"     // Session lifecycle, turn orchestration
	CategoryWeights     Category = "weights"     // Weight store updates, homeostasis
	CategorySignals     Category = "signals"     // Implicit feedback detection
	CategoryAdaptation  Category = "adaptation"  // Habituation filter decisions
	CategoryPlasticity  Category = "plasticity"  // Outcome-driven learning
	CategoryPrediction  Category = "prediction"  // Predict/resolve, calibration
	CategoryGoals       Category = "goals"       // Progress, drift, loops
	CategoryPersistence Category = "persistence" // Snapshot save/load
	CategoryTelemetry   Category = "telemetry"   // Observability store
)

// Settings mirrors config.LoggingConfig to avoid an import cycle.
type Settings struct {
	Enabled    bool
	Level      string
	Dir        string
	Categories map[string]bool
}

var (
	mu       sync.RWMutex
	settings Settings
	loggers  = make(map[Category]*zap.SugaredLogger)
	nop      = zap.NewNop().Sugar()
)

// Initialize configures the logging system. Call once at startup; safe to call
// again to apply reloaded settings (existing loggers are dropped and rebuilt
// lazily).
func Initialize(s Settings) error {
	mu.Lock()
	defer mu.Unlock()

	if s.Enabled && s.Dir == "" {
		return fmt.Errorf("log directory required when logging is enabled")
	}

	flushLocked()
	loggers = make(map[Category]*zap.SugaredLogger)
	settings = s

	if !s.Enabled {
		return nil
	}
	return os.MkdirAll(s.Dir, 0755)
}

// Get returns the logger for a category, or a no-op logger when the category
// (or logging as a whole) is disabled.
func Get(category Category) *zap.SugaredLogger {
	mu.RLock()
	if !enabledLocked(category) {
		mu.RUnlock()
		return nop
	}
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}
	l, err := build(category)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open log for %s: %v\n", category, err)
		return nop
	}
	loggers[category] = l
	return l
}

// CloseAll flushes and drops all open loggers. Call at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()
	flushLocked()
	loggers = make(map[Category]*zap.SugaredLogger)
}

func flushLocked() {
	for _, l := range loggers {
		_ = l.Sync()
	}
}

func enabledLocked(category Category) bool {
	if !settings.Enabled {
		return false
	}
	if settings.Categories == nil {
		return true
	}
	enabled, ok := settings.Categories[string(category)]
	if !ok {
		return true
	}
	return enabled
}

func build(category Category) (*zap.SugaredLogger, error) {
	date := time.Now().Format("2006-01-02")
	path := filepath.Join(settings.Dir, fmt.Sprintf("%s_%s.log", date, category))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(file),
		parseLevel(settings.Level),
	)
	return zap.New(core).Sugar().With("cat", string(category)), nil
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
