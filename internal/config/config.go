package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/emmett/earworm/internal/audio"
	"github.com/emmett/earworm/internal/recognition"
	"github.com/emmett/earworm/internal/strategy"
)

// Config represents the application configuration
type Config struct {
	// Recognition service settings
	Recognizer struct {
		Provider       string        `yaml:"provider" validate:"oneof=audd"`
		APIToken       string        `yaml:"api_token"`
		Endpoint       string        `yaml:"endpoint" validate:"required,url"`
		Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
		ReturnServices []string      `yaml:"return_services" validate:"dive,oneof=apple_music spotify deezer napster musicbrainz"`
	} `yaml:"recognizer"`

	// Sampling schedule, either a named preset or explicit steps
	Strategy struct {
		Preset         string          `yaml:"preset"`
		Steps          []strategy.Step `yaml:"steps,omitempty" validate:"dive"`
		SendTotalAtEnd *bool           `yaml:"send_total_at_end,omitempty"`
		ExtraTry       *int            `yaml:"extra_try,omitempty" validate:"omitempty,gte=0"`
	} `yaml:"strategy"`

	// What happens to failed attempts, per failure category
	Fallback struct {
		NoMatches      string `yaml:"no_matches" validate:"oneof=ignore save save_and_launch"`
		BadConnection  string `yaml:"bad_connection" validate:"oneof=ignore save save_and_launch"`
		AnotherFailure string `yaml:"another_failure" validate:"oneof=ignore save save_and_launch"`
	} `yaml:"fallback"`

	// Session settings
	Recognition struct {
		SliceTimeout     time.Duration `yaml:"slice_timeout" validate:"gt=0"`
		SilenceThreshold float64       `yaml:"silence_threshold" validate:"gte=0,lt=1"`
	} `yaml:"recognition"`

	// Audio settings
	Audio struct {
		Device     string `yaml:"device"`
		SampleRate uint32 `yaml:"sample_rate" validate:"oneof=8000 16000 22050 44100 48000"`
		Channels   uint32 `yaml:"channels" validate:"oneof=1 2"`
	} `yaml:"audio"`

	// Local queue and library
	Storage struct {
		Dir string `yaml:"dir"`
	} `yaml:"storage"`

	// Link and artwork enrichment
	Enhancer struct {
		Enabled        bool          `yaml:"enabled"`
		OdesliEndpoint string        `yaml:"odesli_endpoint" validate:"omitempty,url"`
		DeezerEndpoint string        `yaml:"deezer_endpoint" validate:"omitempty,url"`
		UserCountry    string        `yaml:"user_country" validate:"omitempty,len=2"`
		Timeout        time.Duration `yaml:"timeout" validate:"gte=0"`
	} `yaml:"enhancer"`

	// Log settings
	Log struct {
		Level      string `yaml:"level" validate:"oneof=debug info warn error"`
		Format     string `yaml:"format" validate:"oneof=console json"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
		MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	} `yaml:"log"`

	// Output settings
	Output struct {
		Format string `yaml:"format" validate:"oneof=console json text"`
		File   string `yaml:"file"`
	} `yaml:"output"`

	// Server settings
	Server struct {
		Host string `yaml:"host" validate:"required"`
		Port int    `yaml:"port" validate:"min=1,max=65535"`
	} `yaml:"server"`

	// Hotkey settings
	Hotkey struct {
		Combo string `yaml:"combo" validate:"required"`
	} `yaml:"hotkey"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Recognizer defaults
	cfg.Recognizer.Provider = "audd"
	cfg.Recognizer.Endpoint = "https://api.audd.io/"
	cfg.Recognizer.Timeout = 20 * time.Second
	cfg.Recognizer.ReturnServices = []string{"apple_music", "spotify", "deezer", "musicbrainz"}

	// Strategy defaults
	cfg.Strategy.Preset = strategy.DefaultPresetName

	// Fallback defaults
	policy := recognition.DefaultFallbackPolicy()
	cfg.Fallback.NoMatches = policy.NoMatches.String()
	cfg.Fallback.BadConnection = policy.BadConnection.String()
	cfg.Fallback.AnotherFailure = policy.AnotherFailure.String()

	// Recognition defaults
	cfg.Recognition.SliceTimeout = recognition.DefaultSliceTimeout
	cfg.Recognition.SilenceThreshold = 0

	// Audio defaults
	capture := audio.DefaultConfig()
	cfg.Audio.Device = ""
	cfg.Audio.SampleRate = capture.SampleRate
	cfg.Audio.Channels = capture.Channels

	// Storage defaults
	cfg.Storage.Dir = ""

	// Enhancer defaults
	cfg.Enhancer.Enabled = true
	cfg.Enhancer.OdesliEndpoint = "https://api.song.link/v1-alpha.1/"
	cfg.Enhancer.DeezerEndpoint = "https://api.deezer.com/"
	cfg.Enhancer.Timeout = 10 * time.Second

	// Log defaults
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	cfg.Log.MaxSizeMB = 10
	cfg.Log.MaxBackups = 3

	// Output defaults
	cfg.Output.Format = "console"

	// Server defaults
	cfg.Server.Host = "localhost"
	cfg.Server.Port = 50051

	// Hotkey defaults
	cfg.Hotkey.Combo = "ctrl+shift+m"

	return cfg
}

// Load loads configuration from file
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// LoadWithFallback attempts to load configuration from multiple locations
// Priority: explicit path > ~/.earwormrc > /etc/earworm/config.yaml
func LoadWithFallback(explicitPath string) (*Config, error) {
	if explicitPath != "" {
		return Load(explicitPath)
	}

	for _, path := range searchPaths() {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return Load(path)
	}

	// No config file found, return defaults
	return DefaultConfig(), nil
}

func searchPaths() []string {
	var paths []string
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".earwormrc"))
	}
	return append(paths, "/etc/earworm/config.yaml")
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks field constraints and that the strategy can be built
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s: failed on %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}
	if _, err := c.BuildStrategy(); err != nil {
		return err
	}
	return nil
}

// BuildStrategy returns the configured sampling schedule. Explicit steps
// take precedence over the preset name.
func (c *Config) BuildStrategy() (*strategy.Strategy, error) {
	if len(c.Strategy.Steps) == 0 {
		return strategy.Lookup(c.Strategy.Preset)
	}

	var opts []strategy.Option
	if c.Strategy.SendTotalAtEnd != nil {
		opts = append(opts, strategy.WithTotalAtEnd(*c.Strategy.SendTotalAtEnd))
	}
	if c.Strategy.ExtraTry != nil {
		opts = append(opts, strategy.WithExtraTry(*c.Strategy.ExtraTry))
	}

	s, err := strategy.New(c.Strategy.Steps, opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid strategy steps: %w", err)
	}
	return s, nil
}

// FallbackPolicy converts the fallback section
func (c *Config) FallbackPolicy() (recognition.FallbackPolicy, error) {
	var policy recognition.FallbackPolicy
	var err error

	if policy.NoMatches, err = recognition.ParseFallbackAction(c.Fallback.NoMatches); err != nil {
		return policy, fmt.Errorf("fallback.no_matches: %w", err)
	}
	if policy.BadConnection, err = recognition.ParseFallbackAction(c.Fallback.BadConnection); err != nil {
		return policy, fmt.Errorf("fallback.bad_connection: %w", err)
	}
	if policy.AnotherFailure, err = recognition.ParseFallbackAction(c.Fallback.AnotherFailure); err != nil {
		return policy, fmt.Errorf("fallback.another_failure: %w", err)
	}
	return policy, nil
}

// RecognitionConfig assembles the orchestrator settings
func (c *Config) RecognitionConfig() (recognition.Config, error) {
	s, err := c.BuildStrategy()
	if err != nil {
		return recognition.Config{}, err
	}
	policy, err := c.FallbackPolicy()
	if err != nil {
		return recognition.Config{}, err
	}
	return recognition.Config{
		Strategy:         s,
		Policy:           policy,
		SliceTimeout:     c.Recognition.SliceTimeout,
		SilenceThreshold: c.Recognition.SilenceThreshold,
	}, nil
}

// CaptureConfig returns the microphone settings
func (c *Config) CaptureConfig() audio.CaptureConfig {
	capture := audio.DefaultConfig()
	capture.Device = c.Audio.Device
	capture.SampleRate = c.Audio.SampleRate
	capture.Channels = c.Audio.Channels
	capture.PeriodFrames = c.Audio.SampleRate / 10 // 100ms periods
	return capture
}

// DataDir returns the storage directory, defaulting to ~/.local/share/earworm
func (c *Config) DataDir() (string, error) {
	if c.Storage.Dir != "" {
		return c.Storage.Dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "earworm"), nil
}

// Address returns the host:port the server listens on
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
