package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/recognition"
)

// DefaultRetryTimeout bounds one retry of a queued recording
const DefaultRetryTimeout = 30 * time.Second

// RetryWorker re-submits queued recordings. A match moves the track into
// the library and removes the queue entry; anything else is recorded on the
// entry for the next try.
type RetryWorker struct {
	service *Service
	timeout time.Duration
	logger  *zap.Logger
}

// NewRetryWorker creates a worker that retries through the service's
// recognizer and store
func NewRetryWorker(service *Service, logger *zap.Logger) *RetryWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryWorker{service: service, timeout: DefaultRetryTimeout, logger: logger}
}

// Retry re-submits one queued recording and returns what the recognizer said
func (w *RetryWorker) Retry(ctx context.Context, id int64) (recognition.Result, error) {
	st := w.service.Store()
	clip, err := st.Clip(id)
	if err != nil {
		return recognition.Result{}, err
	}

	log := w.logger.With(zap.Int64("id", id), zap.Duration("duration", clip.Duration()))
	log.Info("retrying queued recording")

	callCtx, cancel := context.WithTimeout(ctx, w.timeout)
	res := w.service.Recognizer().Recognize(callCtx, clip)
	cancel()

	if res.Kind != recognition.KindSuccess {
		if err := st.RecordRetry(ctx, id, res.Reason); err != nil {
			return res, fmt.Errorf("failed to record retry: %w", err)
		}
		log.Info("retry did not match", zap.Stringer("reason", res.Reason))
		return res, nil
	}

	track := w.service.file(ctx, *res.Track)
	res.Track = &track
	if err := st.Delete(id); err != nil {
		return res, fmt.Errorf("matched but failed to dequeue: %w", err)
	}
	log.Info("queued recording matched", zap.Stringer("track", track))
	return res, nil
}

// RetryAll retries every queued recording once, oldest first
func (w *RetryWorker) RetryAll(ctx context.Context) (matched int, err error) {
	entries, err := w.service.Store().List()
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return matched, err
		}
		res, err := w.Retry(ctx, e.ID)
		if err != nil {
			w.logger.Warn("retry failed", zap.Int64("id", e.ID), zap.Error(err))
			continue
		}
		if res.Kind == recognition.KindSuccess {
			matched++
		}
	}
	return matched, nil
}

// Run handles launched retries until ctx ends
func (w *RetryWorker) Run(ctx context.Context) error {
	launches := w.service.Store().Launches()
	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-launches:
			if _, err := w.Retry(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.Warn("launched retry failed", zap.Int64("id", id), zap.Error(err))
			}
		}
	}
}
