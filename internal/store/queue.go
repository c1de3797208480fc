package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/audio"
	"github.com/emmett/earworm/internal/recognition"
)

// ErrRetryBacklog is returned when too many retries are waiting to run
var ErrRetryBacklog = errors.New("retry backlog full")

// QueuedAttempt is a saved recording waiting for another recognition try
type QueuedAttempt struct {
	ID        int64     `json:"id"`
	SessionID uuid.UUID `json:"session_id"`
	Launched  bool      `json:"launched,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Format    audio.Format `json:"format"`
	Duration  string       `json:"duration"`
	Recording []byte       `json:"recording_key"`

	// Failure is the most recent reason the attempt did not match
	Failure *recognition.FailureReason `json:"failure,omitempty"`

	// Retries counts recognition tries made from the queue
	Retries     int       `json:"retries"`
	LastRetryAt time.Time `json:"last_retry_at"`
}

// EnqueueTask saves the clip and creates a queue entry for the task
func (s *Store) EnqueueTask(ctx context.Context, task recognition.Task, clip audio.Clip) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if clip.Empty() {
		return 0, errors.New("refusing to queue an empty recording")
	}

	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate queue id: %w", err)
	}
	id := int64(n) + 1

	recKey := recordingKey(clip.Data)
	entry := QueuedAttempt{
		ID:        id,
		SessionID: task.SessionID,
		Launched:  task.Launched,
		CreatedAt: time.Now(),
		Format:    clip.Format,
		Duration:  clip.Duration().String(),
		Recording: recKey,
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(recKey); errors.Is(err, badger.ErrKeyNotFound) {
			if err := txn.Set(recKey, clip.Data); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		return setJSON(txn, queueKey(id), entry)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to queue attempt: %w", err)
	}

	s.logger.Info("attempt queued",
		zap.Int64("id", id),
		zap.Stringer("session", task.SessionID),
		zap.Duration("duration", clip.Duration()))
	return id, nil
}

// SaveFailedAttempt stores the failure reason on the task's queue entry
func (s *Store) SaveFailedAttempt(ctx context.Context, task recognition.Task, reason recognition.FailureReason) error {
	if task.ID == nil {
		return errors.New("task has not been queued")
	}
	return s.update(ctx, *task.ID, func(e *QueuedAttempt) {
		e.Failure = &reason
	})
}

// RecordRetry notes the outcome of a retry made from the queue
func (s *Store) RecordRetry(ctx context.Context, id int64, reason recognition.FailureReason) error {
	return s.update(ctx, id, func(e *QueuedAttempt) {
		e.Failure = &reason
		e.Retries++
		e.LastRetryAt = time.Now()
	})
}

func (s *Store) update(ctx context.Context, id int64, fn func(*QueuedAttempt)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		var e QueuedAttempt
		if err := getJSON(txn, queueKey(id), &e); err != nil {
			return fmt.Errorf("queue entry %d: %w", id, err)
		}
		fn(&e)
		return setJSON(txn, queueKey(id), e)
	})
}

// LaunchRetry asks the retry worker to try the entry again
func (s *Store) LaunchRetry(ctx context.Context, id int64) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	select {
	case s.launches <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrRetryBacklog
	}
}

// Launches delivers ids passed to LaunchRetry
func (s *Store) Launches() <-chan int64 {
	return s.launches
}

// Get returns one queue entry
func (s *Store) Get(id int64) (QueuedAttempt, error) {
	var e QueuedAttempt
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, queueKey(id), &e)
	})
	if err != nil {
		return QueuedAttempt{}, fmt.Errorf("queue entry %d: %w", id, err)
	}
	return e, nil
}

// List returns queue entries oldest first
func (s *Store) List() ([]QueuedAttempt, error) {
	var out []QueuedAttempt
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = scan[QueuedAttempt](txn, prefixQueue)
		return err
	})
	return out, err
}

// Clip loads the recording of a queue entry
func (s *Store) Clip(id int64) (audio.Clip, error) {
	var clip audio.Clip
	err := s.db.View(func(txn *badger.Txn) error {
		var e QueuedAttempt
		if err := getJSON(txn, queueKey(id), &e); err != nil {
			return err
		}
		item, err := txn.Get(e.Recording)
		if err != nil {
			return fmt.Errorf("recording missing: %w", err)
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		clip = audio.Clip{Data: data, Format: e.Format}
		return nil
	})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("queue entry %d: %w", id, err)
	}
	return clip, nil
}

// Delete removes a queue entry and its recording once no other entry uses it
func (s *Store) Delete(id int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var e QueuedAttempt
		if err := getJSON(txn, queueKey(id), &e); err != nil {
			return fmt.Errorf("queue entry %d: %w", id, err)
		}
		if err := txn.Delete(queueKey(id)); err != nil {
			return err
		}

		others, err := scan[QueuedAttempt](txn, prefixQueue)
		if err != nil {
			return err
		}
		for _, o := range others {
			if o.ID != id && string(o.Recording) == string(e.Recording) {
				return nil
			}
		}
		return txn.Delete(e.Recording)
	})
}
