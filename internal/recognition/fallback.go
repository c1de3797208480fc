package recognition

import (
	"fmt"
	"strings"
)

// Category groups the ways an attempt can fail
type Category int

const (
	// NoMatches means every sample was heard but none matched
	NoMatches Category = iota
	// BadConnection means the recognition service was unreachable or too slow
	BadConnection
	// AnotherFailure covers unexpected errors
	AnotherFailure
)

func (c Category) String() string {
	switch c {
	case NoMatches:
		return "no_matches"
	case BadConnection:
		return "bad_connection"
	case AnotherFailure:
		return "another_failure"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// MarshalText encodes the category by name
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category name
func (c *Category) UnmarshalText(text []byte) error {
	switch string(text) {
	case "no_matches":
		*c = NoMatches
	case "bad_connection":
		*c = BadConnection
	case "another_failure":
		*c = AnotherFailure
	default:
		return fmt.Errorf("unknown failure category: %s", text)
	}
	return nil
}

// FallbackAction decides what happens to a failed attempt
type FallbackAction int

const (
	// Ignore drops the attempt
	Ignore FallbackAction = iota
	// Save keeps the recording in the queue for a later retry
	Save
	// SaveAndLaunch saves the recording and retries it right away
	SaveAndLaunch
)

// Save reports whether the failed attempt is persisted
func (a FallbackAction) Save() bool {
	return a == Save || a == SaveAndLaunch
}

// Launch reports whether a retry is started immediately
func (a FallbackAction) Launch() bool {
	return a == SaveAndLaunch
}

func (a FallbackAction) String() string {
	switch a {
	case Ignore:
		return "ignore"
	case Save:
		return "save"
	case SaveAndLaunch:
		return "save_and_launch"
	default:
		return fmt.Sprintf("FallbackAction(%d)", int(a))
	}
}

// ParseFallbackAction reads an action name as written in the config file
func ParseFallbackAction(s string) (FallbackAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ignore":
		return Ignore, nil
	case "save":
		return Save, nil
	case "save_and_launch", "save-and-launch":
		return SaveAndLaunch, nil
	default:
		return Ignore, fmt.Errorf("unknown fallback action: %q", s)
	}
}

// FallbackPolicy maps each failure category to an action
type FallbackPolicy struct {
	NoMatches      FallbackAction
	BadConnection  FallbackAction
	AnotherFailure FallbackAction
}

// DefaultFallbackPolicy keeps attempts that failed for reasons other than an
// honest miss
func DefaultFallbackPolicy() FallbackPolicy {
	return FallbackPolicy{
		NoMatches:      Ignore,
		BadConnection:  Save,
		AnotherFailure: Save,
	}
}

// For returns the action for a category
func (p FallbackPolicy) For(c Category) FallbackAction {
	switch c {
	case NoMatches:
		return p.NoMatches
	case BadConnection:
		return p.BadConnection
	default:
		return p.AnotherFailure
	}
}

func (p FallbackPolicy) needsPersistence() bool {
	return p.NoMatches.Save() || p.BadConnection.Save() || p.AnotherFailure.Save()
}

func (p FallbackPolicy) needsLauncher() bool {
	return p.NoMatches.Launch() || p.BadConnection.Launch() || p.AnotherFailure.Launch()
}
