package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emmett/earworm/internal/recognition"
	"github.com/emmett/earworm/internal/strategy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	rc, err := cfg.RecognitionConfig()
	require.NoError(t, err)
	assert.Equal(t, "3s, 6s(S), 8s, 12s(S), 15s, 30s, +total", rc.Strategy.String())
	assert.Equal(t, recognition.DefaultFallbackPolicy(), rc.Policy)
	assert.Equal(t, recognition.DefaultSliceTimeout, rc.SliceTimeout)

	capture := cfg.CaptureConfig()
	assert.Equal(t, uint32(16000), capture.SampleRate)
	assert.Equal(t, uint32(1600), capture.PeriodFrames)
	assert.Equal(t, "localhost:50051", cfg.Address())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
recognizer:
  api_token: secret
  timeout: 5s
strategy:
  steps:
    - at: 4s
    - at: 8s
      splitter: true
    - at: 14s
  send_total_at_end: false
fallback:
  no_matches: save_and_launch
recognition:
  slice_timeout: 7s
  silence_threshold: 0.02
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Recognizer.APIToken)
	assert.Equal(t, 5*time.Second, cfg.Recognizer.Timeout)
	assert.Equal(t, "https://api.audd.io/", cfg.Recognizer.Endpoint, "unset keys keep defaults")

	rc, err := cfg.RecognitionConfig()
	require.NoError(t, err)
	assert.Equal(t, []strategy.Step{
		{At: 4 * time.Second},
		{At: 8 * time.Second, Splitter: true},
		{At: 14 * time.Second},
	}, rc.Strategy.Steps())
	assert.False(t, rc.Strategy.SendTotalAtEnd())
	assert.Equal(t, recognition.SaveAndLaunch, rc.Policy.NoMatches)
	assert.Equal(t, recognition.Save, rc.Policy.BadConnection)
	assert.Equal(t, 7*time.Second, rc.SliceTimeout)
	assert.InDelta(t, 0.02, rc.SilenceThreshold, 1e-9)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"unknown action":  "fallback:\n  bad_connection: retry\n",
		"unordered steps": "strategy:\n  steps:\n    - at: 6s\n    - at: 3s\n",
		"unknown preset":  "strategy:\n  preset: marathon\n",
		"bad port":        "server:\n  port: 0\n",
		"bad sample rate": "audio:\n  sample_rate: 12345\n",
		"bad service":     "recognizer:\n  return_services: [vinyl]\n",
		"extra try":       "strategy:\n  steps:\n    - at: 3s\n  extra_try: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy.Preset = "quick"
	cfg.Fallback.NoMatches = "save"
	path := filepath.Join(t.TempDir(), "nested", "earworm.yaml")

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadWithFallbackUsesExplicitPath(t *testing.T) {
	path := writeConfig(t, "output:\n  format: json\n")
	cfg, err := LoadWithFallback(path)
	require.NoError(t, err)
	assert.Equal(t, "json", cfg.Output.Format)

	_, err = LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.Dir = "/var/lib/earworm"
	dir, err := cfg.DataDir()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/earworm", dir)
}
