package strategy

import (
	"fmt"
	"time"
)

// Preset is a named strategy shipped with the application.
type Preset struct {
	Name        string
	Description string
	Strategy    *Strategy
}

// DefaultPresetName is used when the configuration names no strategy.
const DefaultPresetName = "default"

var presets = []Preset{
	{
		Name:        DefaultPresetName,
		Description: "Short samples first, then longer windows, whole recording at the end",
		Strategy: mustBuild(NewBuilder().
			AddStep(3 * time.Second).
			AddStep(6 * time.Second).AddSplitter(false).
			AddStep(8 * time.Second).
			AddStep(12 * time.Second).AddSplitter(false).
			AddStep(15 * time.Second).
			AddStep(30 * time.Second).
			SendTotalAtEnd(true)),
	},
	{
		Name:        "extended",
		Description: "Default schedule with a clean second attempt from the 12s splitter",
		Strategy: mustBuild(NewBuilder().
			AddStep(3 * time.Second).
			AddStep(6 * time.Second).AddSplitter(false).
			AddStep(8 * time.Second).
			AddStep(12 * time.Second).AddSplitter(true).
			AddStep(15 * time.Second).
			AddStep(20 * time.Second).
			AddStep(30 * time.Second).
			SendTotalAtEnd(true)),
	},
	{
		Name:        "quick",
		Description: "Three growing samples, no total at the end",
		Strategy: mustBuild(NewBuilder().
			AddStep(4 * time.Second).
			AddStep(8 * time.Second).
			AddStep(12 * time.Second).
			SendTotalAtEnd(false)),
	},
}

// Presets returns the built-in strategies.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// Lookup returns the preset strategy with the given name.
func Lookup(name string) (*Strategy, error) {
	if name == "" {
		name = DefaultPresetName
	}
	for _, p := range presets {
		if p.Name == name {
			return p.Strategy, nil
		}
	}
	return nil, fmt.Errorf("unknown strategy preset: %s", name)
}

// ForClip returns a single-step strategy that emits a pre-recorded clip of
// the given length once it has been read completely.
func ForClip(length time.Duration) (*Strategy, error) {
	return New([]Step{{At: length}}, WithTotalAtEnd(false))
}

func mustBuild(b *Builder) *Strategy {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}
