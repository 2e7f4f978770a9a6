package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DEFAULTS AND LOADING TESTS
// =============================================================================

func TestDefaultConfig_IsValid(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_PartialFileOverlaysDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "brainstem.yaml")
	content := `
weights:
  loss_aversion: 3.0
goals:
  verify_timeout: 500ms
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 3.0, cfg.Weights.LossAversion)
	assert.Equal(t, 500*time.Millisecond, cfg.Goals.VerifyTimeout)
	// Untouched knobs keep their defaults.
	assert.Equal(t, 50, cfg.Weights.HomeostasisInterval)
	assert.Equal(t, 20, cfg.Adaptation.RingCapacity)
}

func TestLoad_RejectsMalformedYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "brainstem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("weights: [not a map"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "brainstem.yaml")
	content := `
weights:
  homeostasis_interval: -1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "homeostasis_interval")
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Weights.LossAversion = 2.5
	cfg.GlobalTier.Enabled = true
	cfg.Logging.Categories = map[string]bool{"weights": true}

	path := filepath.Join(t.TempDir(), "brainstem.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestValidate_RejectsBadBounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero homeostasis interval", func(c *Config) { c.Weights.HomeostasisInterval = 0 }},
		{"homeostasis rate above one", func(c *Config) { c.Weights.HomeostasisRate = 1.5 }},
		{"loss aversion below one", func(c *Config) { c.Weights.LossAversion = 0.5 }},
		{"zero ring capacity", func(c *Config) { c.Adaptation.RingCapacity = 0 }},
		{"change threshold below tolerance", func(c *Config) { c.Adaptation.ChangeThreshold = 0.05 }},
		{"zero base rate", func(c *Config) { c.Plasticity.BaseRate = 0 }},
		{"streak cap below one", func(c *Config) { c.Plasticity.StreakCap = 0.5 }},
		{"loop threshold below two", func(c *Config) { c.Goals.LoopThreshold = 1 }},
		{"critical drift below warning", func(c *Config) { c.Goals.DriftCritical = 0.1 }},
		{"zero queue capacity", func(c *Config) { c.GlobalTier.QueueCapacity = 0 }},
		{"zero surprise weights", func(c *Config) {
			c.Prediction.QualityWeight = 0
			c.Prediction.LatencyWeight = 0
			c.Prediction.SuccessWeight = 0
		}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "brainstem.yaml")
	require.NoError(t, DefaultConfig().Save(path))

	changed := make(chan *Config, 1)
	w, err := NewWatcher(path, func(c *Config) {
		select {
		case changed <- c:
		default:
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	updated := DefaultConfig()
	updated.Weights.LossAversion = 4.0
	require.NoError(t, updated.Save(path))

	select {
	case c := <-changed:
		assert.Equal(t, 4.0, c.Weights.LossAversion)
		assert.Equal(t, 4.0, w.Current().Weights.LossAversion)
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not observe the rewrite")
	}
}

func TestWatcher_KeepsLastGoodConfigOnBrokenWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "brainstem.yaml")
	cfg := DefaultConfig()
	cfg.Weights.LossAversion = 2.5
	require.NoError(t, cfg.Save(path))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	require.NoError(t, os.WriteFile(path, []byte("weights: [broken"), 0644))

	// The watcher may take a moment to see the event; either way the broken
	// file must never replace the last good config.
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 2.5, w.Current().Weights.LossAversion)
}
