package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/audio"
	"github.com/emmett/earworm/internal/strategy"
)

// Session is one run of the strategy against an audio stream. Its loop is
// the only goroutine that touches the cursor, the recording and the pending
// set; Cancel may be called from anywhere.
type Session struct {
	id       uuid.UUID
	launched bool
	config   Config
	deps     Dependencies
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	stream      audio.Stream
	releaseOnce sync.Once
	recording   *audio.Recording
	cursor      *strategy.Cursor

	results    chan sliceResult
	pending    map[int]*dispatch
	attempt    int
	dispatched int
	// queued counts slices emitted by the cursor but not yet dispatched
	queued     int
	streamDone bool
	wg         sync.WaitGroup
	// handoff is closed once the latest dispatch has entered the recognizer
	handoff <-chan struct{}

	// notifyMu keeps observer callbacks in transition order
	notifyMu sync.Mutex
	mu       sync.Mutex
	task     Task
	phase    Phase

	done chan struct{}
}

type dispatch struct {
	slice   strategy.Slice
	attempt int
	cancel  context.CancelFunc
}

type sliceResult struct {
	dispatch *dispatch
	result   Result
}

func newSession(parent context.Context, o *Orchestrator, opts StartOptions) *Session {
	ctx, cancel := context.WithCancel(parent)
	task := NewTask(opts.Launched)
	s := &Session{
		id:       task.SessionID,
		launched: opts.Launched,
		config:   o.config,
		deps:     o.deps,
		logger:   o.logger.With(zap.String("session", task.SessionID.String())),
		ctx:      ctx,
		cancel:   cancel,
		cursor:   strategy.NewCursor(o.config.Strategy),
		results:  make(chan sliceResult, o.config.Strategy.LastRecordingIndex()+1),
		pending:  make(map[int]*dispatch),
		task:     task,
		phase:    PhaseIdle,
		done:     make(chan struct{}),
	}
	return s
}

// ID returns the session's correlation id
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Task returns a snapshot of the session's task
func (s *Session) Task() Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.task
}

// Phase returns the current phase of the session
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Done is closed once the session has stopped and released its resources
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session finishes or ctx ends
func (s *Session) Wait(ctx context.Context) (Task, error) {
	select {
	case <-s.done:
		return s.Task(), nil
	case <-ctx.Done():
		return s.Task(), ctx.Err()
	}
}

// Cancel moves the session to Cancelled, aborts outstanding recognizer calls
// and releases the audio stream. It reports whether this call cancelled the
// session; later calls and calls after completion return false.
func (s *Session) Cancel() bool {
	won := s.finish(Cancelled{})
	s.cancel()
	s.release()
	if won {
		s.logger.Info("recognition cancelled")
	}
	return won
}

// release closes the audio stream exactly once
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if s.stream == nil {
			return
		}
		if err := s.stream.Close(); err != nil {
			s.logger.Warn("failed to close audio stream", zap.Error(err))
		}
	})
}

func (s *Session) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.deps.Observer.TaskChanged(s.Task())
}

// transition applies a non-terminal state change
func (s *Session) transition(next TaskState, phase Phase) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	task, err := s.task.Transition(next)
	if err != nil {
		s.mu.Unlock()
		return false
	}
	s.task = task
	s.phase = phase
	s.mu.Unlock()

	s.deps.Observer.TaskChanged(task)
	return true
}

// finish moves the task to a terminal state, the first caller wins
func (s *Session) finish(state TaskState) bool {
	phase := PhaseCompleted
	if _, ok := state.(Cancelled); ok {
		phase = PhaseCancelled
	}
	return s.transition(state, phase)
}

func (s *Session) setPhase(p Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.task.Terminal() {
		s.phase = p
	}
}

func (s *Session) terminal() bool {
	return s.Task().Terminal()
}

func (s *Session) run() {
	defer close(s.done)
	defer s.wg.Wait()
	defer s.release()
	defer s.cancel()

	if !s.transition(Recognizing{}, PhaseRecording) {
		return
	}
	s.logger.Info("recognition started",
		zap.Bool("launched", s.launched),
		zap.Stringer("strategy", s.config.Strategy))

	chunks := s.stream.Chunks()
	for {
		select {
		case <-s.ctx.Done():
			s.Cancel()
			return

		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				if s.onStreamEnd() {
					return
				}
				continue
			}
			if s.onChunk(chunk) {
				return
			}
			if s.cursor.Finished() {
				// everything is sampled, only results are left to wait for
				chunks = nil
				s.release()
			}

		case res := <-s.results:
			if s.onResult(res) {
				return
			}
		}
	}
}

func (s *Session) onChunk(chunk audio.Chunk) bool {
	if s.terminal() {
		return true
	}
	if _, err := s.recording.Write(chunk.Data); err != nil {
		s.logger.Error("failed to buffer audio", zap.Error(err))
		return s.fallback(OtherFailure(0, err.Error()).Reason)
	}
	slices := s.cursor.Due(chunk.Elapsed)
	for i, slice := range slices {
		s.queued = len(slices) - i - 1
		if s.dispatch(slice) {
			return true
		}
	}
	return false
}

// dispatch hands a slice to the recognizer without waiting for the answer.
// Each call waits for the previous slice to enter the recognizer first, so
// slices reach it in step order.
func (s *Session) dispatch(slice strategy.Slice) bool {
	attempt := s.cursor.Attempt(slice.StepIndex)
	if attempt > s.attempt {
		s.startExtraTry(attempt)
	}

	clip := s.recording.Slice(slice.From, slice.To)
	log := s.logger.With(
		zap.Int("step", slice.StepIndex),
		zap.Int("attempt", attempt),
		zap.Duration("from", slice.From),
		zap.Duration("to", slice.To),
		zap.Bool("total", slice.Total),
	)

	d := &dispatch{slice: slice, attempt: attempt}
	s.dispatched++

	if audio.IsSilent(clip, s.config.SilenceThreshold) {
		log.Debug("slice is silent, skipping recognizer")
		return s.onResult(sliceResult{dispatch: d, result: NoMatch()})
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.config.SliceTimeout)
	d.cancel = cancel
	s.pending[slice.StepIndex] = d
	s.setPhase(PhaseAwaitingResult)

	prev := s.handoff
	entered := make(chan struct{})
	s.handoff = entered

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		res, ok := s.call(ctx, clip, prev, entered)
		if !ok {
			return
		}
		select {
		case s.results <- sliceResult{dispatch: d, result: res}:
		case <-s.ctx.Done():
		}
	}()

	log.Debug("slice dispatched", zap.Duration("length", clip.Duration()))
	return false
}

// call runs the recognizer under the slice timeout once prev is closed and
// closes entered when the recognizer is invoked, or when the call is given up
// before that. It reports false when the call was abandoned and its result
// must not be delivered.
func (s *Session) call(ctx context.Context, clip audio.Clip, prev <-chan struct{}, entered chan struct{}) (Result, bool) {
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			close(entered)
			return s.abandoned(ctx)
		}
	}

	out := make(chan Result, 1)
	go func() {
		close(entered)
		out <- s.deps.Recognizer.Recognize(ctx, clip)
	}()

	select {
	case res := <-out:
		if ctx.Err() == nil || res.Kind == KindSuccess {
			return res, true
		}
	case <-ctx.Done():
	}
	return s.abandoned(ctx)
}

// abandoned turns an expired slice timeout into a connectivity failure
func (s *Session) abandoned(ctx context.Context) (Result, bool) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && s.ctx.Err() == nil {
		return ConnectivityFailure(fmt.Errorf("no response within %s", s.config.SliceTimeout)), true
	}
	return Result{}, false
}

// startExtraTry drops outstanding calls for steps before the extra-try
// splitter. The splitter's own slice is still awaited.
func (s *Session) startExtraTry(attempt int) {
	splitter := s.config.Strategy.ExtraTryIndex()
	discarded := 0
	for step, d := range s.pending {
		if step < splitter {
			d.cancel()
			delete(s.pending, step)
			discarded++
		}
	}
	s.attempt = attempt
	s.logger.Info("starting extra try", zap.Int("discarded", discarded))
}

func (s *Session) onResult(res sliceResult) bool {
	if s.terminal() {
		return true
	}

	d := res.dispatch
	if d.cancel != nil {
		if s.pending[d.slice.StepIndex] != d {
			s.logger.Debug("dropping stale result", zap.Int("step", d.slice.StepIndex))
			return false
		}
		delete(s.pending, d.slice.StepIndex)
	}

	log := s.logger.With(zap.Int("step", d.slice.StepIndex), zap.Int("attempt", d.attempt))
	switch res.result.Kind {
	case KindSuccess:
		if res.result.Track == nil {
			log.Error("recognizer reported success without a track")
			return s.fallback(OtherFailure(0, "empty match").Reason)
		}
		log.Info("track recognized", zap.Stringer("track", res.result.Track))
		s.release()
		s.finish(Done{Outcome: Outcome{Track: res.result.Track}})
		return true

	case KindNoMatch:
		log.Debug("no match")
		return s.checkExhausted()

	case KindConnectivityFailure:
		log.Warn("recognition service unreachable", zap.String("reason", res.result.Reason.Message))
		return s.fallback(res.result.Reason)

	default:
		log.Error("recognition failed",
			zap.Int("code", res.result.Reason.Code),
			zap.String("reason", res.result.Reason.Message))
		reason := res.result.Reason
		reason.Category = AnotherFailure
		return s.fallback(reason)
	}
}

// checkExhausted applies the no-match fallback once no more slices can come
// and every dispatched slice has answered
func (s *Session) checkExhausted() bool {
	if len(s.pending) > 0 || s.queued > 0 {
		return false
	}
	if !s.cursor.Finished() && !s.streamDone {
		s.setPhase(PhaseRecording)
		return false
	}
	if !s.cursor.Finished() {
		return s.fallback(s.streamEndReason())
	}
	return s.fallback(FailureReason{Category: NoMatches})
}

func (s *Session) onStreamEnd() bool {
	s.streamDone = true
	if s.terminal() {
		return true
	}
	if s.ctx.Err() != nil {
		s.Cancel()
		return true
	}
	if s.cursor.Finished() {
		return false
	}
	s.logger.Warn("audio stream ended before the strategy finished",
		zap.Duration("recorded", s.recording.Duration()),
		zap.Error(s.stream.Err()))
	return s.checkExhausted()
}

func (s *Session) streamEndReason() FailureReason {
	if err := s.stream.Err(); err != nil {
		return FailureReason{Category: AnotherFailure, Message: err.Error()}
	}
	if s.dispatched == 0 {
		return FailureReason{Category: AnotherFailure, Message: "audio ended before the first sample"}
	}
	return FailureReason{Category: NoMatches}
}

// fallback applies the policy for a failed attempt and finishes the task
func (s *Session) fallback(reason FailureReason) bool {
	if s.terminal() {
		return true
	}
	action := s.config.Policy.For(reason.Category)
	outcome := Outcome{Reason: reason, Action: action}

	s.setPhase(PhaseRetrying)
	s.release()
	for step, d := range s.pending {
		d.cancel()
		delete(s.pending, step)
	}

	log := s.logger.With(
		zap.Stringer("category", reason.Category),
		zap.Stringer("action", action))

	if action.Save() {
		task := s.Task()
		id, err := s.deps.Persistence.EnqueueTask(s.ctx, task, s.recording.Clip())
		if err != nil {
			log.Error("failed to queue attempt", zap.Error(err))
		} else {
			s.mu.Lock()
			s.task = s.task.WithID(id)
			task = s.task
			s.mu.Unlock()

			if err := s.deps.Persistence.SaveFailedAttempt(s.ctx, task, reason); err != nil {
				log.Error("failed to save attempt", zap.Int64("id", id), zap.Error(err))
			} else {
				outcome.Saved = true
			}

			if action.Launch() {
				if err := s.deps.Launcher.LaunchRetry(s.ctx, id); err != nil {
					log.Error("failed to launch retry", zap.Int64("id", id), zap.Error(err))
				} else {
					outcome.RetryLaunched = true
				}
			}
		}
	}

	log.Info("recognition failed", zap.Bool("saved", outcome.Saved))
	s.finish(Done{Outcome: outcome})
	return true
}
