package recognition

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTransition is returned when a task would move backwards or leave
// a terminal state
var ErrInvalidTransition = errors.New("invalid task transition")

// TaskState is one of Created, Recognizing, Done or Cancelled
type TaskState interface {
	// Terminal reports whether no further transition is allowed
	Terminal() bool
	String() string

	rank() int
}

// Created is the state of a task that has not started listening yet
type Created struct{}

// Recognizing is the state of a task whose audio is being sampled
type Recognizing struct{}

// Done is the terminal state of a task that finished with a result
type Done struct {
	Outcome Outcome
}

// Cancelled is the terminal state of a task stopped on request
type Cancelled struct{}

func (Created) Terminal() bool     { return false }
func (Recognizing) Terminal() bool { return false }
func (Done) Terminal() bool        { return true }
func (Cancelled) Terminal() bool   { return true }

func (Created) String() string     { return "created" }
func (Recognizing) String() string { return "recognizing" }
func (Cancelled) String() string   { return "cancelled" }

func (d Done) String() string {
	if d.Outcome.Success() {
		return "done: " + d.Outcome.Track.String()
	}
	return "done: " + d.Outcome.Reason.String()
}

func (Created) rank() int     { return 0 }
func (Recognizing) rank() int { return 1 }
func (Done) rank() int        { return 2 }
func (Cancelled) rank() int   { return 2 }

// Outcome is the result carried by a Done task
type Outcome struct {
	// Track is set when the attempt matched
	Track *Track `json:"track,omitempty"`

	// Reason and Action are set when the attempt failed
	Reason FailureReason  `json:"reason"`
	Action FallbackAction `json:"-"`

	// Saved reports whether the recording reached the queue
	Saved bool `json:"saved,omitempty"`

	// RetryLaunched reports whether an immediate retry was requested
	RetryLaunched bool `json:"retry_launched,omitempty"`
}

// Success reports whether the outcome holds a track
func (o Outcome) Success() bool {
	return o.Track != nil
}

// Task is one recognition attempt as seen by observers
type Task struct {
	// SessionID correlates log lines and transitions of one run
	SessionID uuid.UUID

	// ID is assigned when the attempt is saved to the queue
	ID *int64

	// Launched marks attempts started automatically rather than by the user
	Launched bool

	State     TaskState
	StartedAt time.Time
}

// NewTask creates a task in the Created state
func NewTask(launched bool) Task {
	return Task{
		SessionID: uuid.New(),
		Launched:  launched,
		State:     Created{},
		StartedAt: time.Now(),
	}
}

// Terminal reports whether the task reached Done or Cancelled
func (t Task) Terminal() bool {
	return t.State != nil && t.State.Terminal()
}

// Transition returns the task moved to next. Transitions only go forward
// and terminal states cannot be left.
func (t Task) Transition(next TaskState) (Task, error) {
	if t.State == nil {
		t.State = Created{}
	}
	if t.State.Terminal() || next.rank() <= t.State.rank() {
		return t, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.State, next)
	}
	t.State = next
	return t, nil
}

// WithID returns a copy of the task carrying a queue id
func (t Task) WithID(id int64) Task {
	t.ID = &id
	return t
}

// Phase is the orchestrator's view of a running session
type Phase int

// Session phases, in the order a run normally passes through them
const (
	PhaseIdle Phase = iota
	PhaseRecording
	PhaseAwaitingResult
	PhaseRetrying
	PhaseCompleted
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhaseAwaitingResult:
		return "awaiting_result"
	case PhaseRetrying:
		return "retrying"
	case PhaseCompleted:
		return "completed"
	case PhaseCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}
