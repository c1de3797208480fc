package recognition

import (
	"context"

	"github.com/emmett/earworm/internal/audio"
)

// Recognizer identifies music in a clip. Implementations must return when
// ctx is done.
type Recognizer interface {
	Recognize(ctx context.Context, clip audio.Clip) Result
}

// Persistence stores failed attempts for a later retry
type Persistence interface {
	// EnqueueTask saves the attempt's recording and returns its queue id
	EnqueueTask(ctx context.Context, task Task, clip audio.Clip) (int64, error)

	// SaveFailedAttempt records why the queued attempt failed
	SaveFailedAttempt(ctx context.Context, task Task, reason FailureReason) error
}

// RetryLauncher starts a retry of a queued attempt right away
type RetryLauncher interface {
	LaunchRetry(ctx context.Context, id int64) error
}

// Observer receives task transitions. It must not call back into the
// session that notified it.
type Observer interface {
	TaskChanged(task Task)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Task)

// TaskChanged calls f(task)
func (f ObserverFunc) TaskChanged(task Task) { f(task) }

// Observers fans a transition out to several observers in order
type Observers []Observer

// TaskChanged notifies every observer
func (o Observers) TaskChanged(task Task) {
	for _, obs := range o {
		if obs != nil {
			obs.TaskChanged(task)
		}
	}
}
