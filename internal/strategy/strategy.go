// Package strategy describes when audio is sliced off during a recognition
// session and tracks a session's progress through that schedule.
//
// Below is the default strategy: 3, 6(S), 8, 12(S), 15, 30.
//
//	                              S           S
//	                  |-----|-----|-----|-----|-----|-----|
//	timeline          0     3     6     8    12    15    30
//	recorded audio          3     6     2     6     3    18    30 (total at end)
//
// Samples are emitted 3, 6, 8, 12, 15 and 30 seconds after the recording
// starts. A splitter (S) moves the start of the following samples to its own
// timestamp; it never moves the time at which the next step fires.
package strategy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoSteps is returned when a strategy would contain no steps.
	ErrNoSteps = errors.New("strategy must have at least 1 step")

	// ErrNonIncreasing is returned when a step does not fire strictly after
	// the previous one.
	ErrNonIncreasing = errors.New("each step must have a timestamp greater than the previous one")

	// ErrNegativeStep is returned when a step fires before the recording starts
	ErrNegativeStep = errors.New("step timestamps cannot be negative")

	// ErrExtraTryIndex is returned when the extra try does not start at a
	// splitter step.
	ErrExtraTryIndex = errors.New("extra try must start at a splitter step")
)

// ConstructionError reports an invalid step schedule. It is only ever
// produced while a strategy is being configured.
type ConstructionError struct {
	Index int
	Err   error
}

func (e *ConstructionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("invalid recording strategy: %v", e.Err)
	}
	return fmt.Sprintf("invalid recording strategy at step %d: %v", e.Index, e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

// Step is a point in time since the recording started at which the audio
// recorded since the current window start is emitted as a sample.
type Step struct {
	At       time.Duration `yaml:"at"`
	Splitter bool          `yaml:"splitter,omitempty"`
}

// Strategy is an immutable, validated step schedule. A single instance is
// shared by every session that uses it.
type Strategy struct {
	steps          []Step
	sendTotalAtEnd bool
	extraTryIndex  int
}

// Option tunes a strategy built with New.
type Option func(*options)

type options struct {
	sendTotalAtEnd bool
	extraTryIndex  int
}

// WithTotalAtEnd controls whether a sample covering the whole recording is
// emitted after the last step. It defaults to true.
func WithTotalAtEnd(send bool) Option {
	return func(o *options) { o.sendTotalAtEnd = send }
}

// WithExtraTry marks the splitter at index as the start of a second,
// independent sampling attempt. A negative index means no extra try.
func WithExtraTry(index int) Option {
	return func(o *options) { o.extraTryIndex = index }
}

// New validates an ordered step sequence and returns the strategy for it.
func New(steps []Step, opts ...Option) (*Strategy, error) {
	o := options{sendTotalAtEnd: true, extraTryIndex: -1}
	for _, opt := range opts {
		opt(&o)
	}

	if len(steps) == 0 {
		return nil, &ConstructionError{Index: -1, Err: ErrNoSteps}
	}
	for i := 1; i < len(steps); i++ {
		if steps[i].At <= steps[i-1].At {
			return nil, &ConstructionError{Index: i, Err: ErrNonIncreasing}
		}
	}
	if steps[0].At < 0 {
		return nil, &ConstructionError{Index: 0, Err: ErrNegativeStep}
	}

	extraTry := len(steps)
	if o.extraTryIndex >= 0 {
		if o.extraTryIndex >= len(steps) || !steps[o.extraTryIndex].Splitter {
			return nil, &ConstructionError{Index: o.extraTryIndex, Err: ErrExtraTryIndex}
		}
		extraTry = o.extraTryIndex
	}

	owned := make([]Step, len(steps))
	copy(owned, steps)

	return &Strategy{
		steps:          owned,
		sendTotalAtEnd: o.sendTotalAtEnd,
		extraTryIndex:  extraTry,
	}, nil
}

// Steps returns a copy of the schedule.
func (s *Strategy) Steps() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// Step returns the step at index i.
func (s *Strategy) Step(i int) Step {
	return s.steps[i]
}

func (s *Strategy) StepCount() int {
	return len(s.steps)
}

func (s *Strategy) LastStepIndex() int {
	return len(s.steps) - 1
}

// LastRecordingIndex is the index of the last emitted sample. It is one past
// the last step when the whole recording is sent at the end.
func (s *Strategy) LastRecordingIndex() int {
	if s.sendTotalAtEnd {
		return s.LastStepIndex() + 1
	}
	return s.LastStepIndex()
}

func (s *Strategy) SendTotalAtEnd() bool {
	return s.sendTotalAtEnd
}

// ExtraTryIndex is the splitter index that starts the second attempt, or
// StepCount when the strategy has no extra try.
func (s *Strategy) ExtraTryIndex() int {
	return s.extraTryIndex
}

// HasExtraTry reports whether a second attempt is scheduled.
func (s *Strategy) HasExtraTry() bool {
	return s.extraTryIndex < len(s.steps)
}

// Duration is the time at which the last sample is emitted.
func (s *Strategy) Duration() time.Duration {
	return s.steps[len(s.steps)-1].At
}

// String renders the schedule as "3s, 6s(S), 8s ... +total".
func (s *Strategy) String() string {
	parts := make([]string, 0, len(s.steps)+1)
	for i, step := range s.steps {
		p := step.At.String()
		if step.Splitter {
			p += "(S)"
		}
		if i == s.extraTryIndex {
			p += "(X)"
		}
		parts = append(parts, p)
	}
	if s.sendTotalAtEnd {
		parts = append(parts, "+total")
	}
	return strings.Join(parts, ", ")
}
