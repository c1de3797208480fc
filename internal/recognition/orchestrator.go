package recognition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/audio"
	"github.com/emmett/earworm/internal/strategy"
)

// DefaultSliceTimeout bounds each recognizer call when no timeout is set
const DefaultSliceTimeout = 15 * time.Second

var (
	// ErrNoActiveSession is returned by Cancel when nothing is running
	ErrNoActiveSession = errors.New("no active recognition session")

	// ErrSessionActive is returned by Start with IfIdle while a session runs
	ErrSessionActive = errors.New("a recognition session is already running")
)

// Config holds the scheduling parameters of an orchestrator
type Config struct {
	// Strategy is the sampling schedule shared by every session
	Strategy *strategy.Strategy

	// Policy decides what happens to failed attempts
	Policy FallbackPolicy

	// SliceTimeout bounds each recognizer call; expiry counts as a bad connection
	SliceTimeout time.Duration

	// SilenceThreshold skips the network call for slices quieter than this
	// RMS level, zero disables the check
	SilenceThreshold float64
}

// Dependencies are the collaborators driven by the orchestrator
type Dependencies struct {
	Source      audio.Source
	Recognizer  Recognizer
	Persistence Persistence
	Launcher    RetryLauncher
	Observer    Observer
}

// StartOptions configures one session
type StartOptions struct {
	// Launched marks an automatically triggered attempt
	Launched bool

	// IfIdle fails with ErrSessionActive instead of replacing a running session
	IfIdle bool
}

// Orchestrator runs recognition sessions one at a time
type Orchestrator struct {
	config Config
	deps   Dependencies
	logger *zap.Logger

	mu     sync.Mutex
	active *Session
}

// NewOrchestrator validates the configuration and collaborators
func NewOrchestrator(config Config, deps Dependencies, logger *zap.Logger) (*Orchestrator, error) {
	if config.Strategy == nil {
		return nil, fmt.Errorf("strategy is required")
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("audio source is required")
	}
	if deps.Recognizer == nil {
		return nil, fmt.Errorf("recognizer is required")
	}
	if config.Policy.needsPersistence() && deps.Persistence == nil {
		return nil, fmt.Errorf("fallback policy saves attempts but no persistence is configured")
	}
	if config.Policy.needsLauncher() && deps.Launcher == nil {
		return nil, fmt.Errorf("fallback policy launches retries but no retry launcher is configured")
	}
	if config.SliceTimeout <= 0 {
		config.SliceTimeout = DefaultSliceTimeout
	}
	if deps.Observer == nil {
		deps.Observer = Observers(nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Orchestrator{
		config: config,
		deps:   deps,
		logger: logger,
	}, nil
}

// Strategy returns the schedule used by new sessions
func (o *Orchestrator) Strategy() *strategy.Strategy {
	return o.config.Strategy
}

// Start opens the audio source and begins a new session. A session that is
// still running is cancelled first unless opts.IfIdle is set.
func (o *Orchestrator) Start(ctx context.Context, opts StartOptions) (*Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if prev := o.active; prev != nil && !prev.Task().Terminal() {
		if opts.IfIdle {
			return nil, ErrSessionActive
		}
		o.logger.Info("restarting recognition",
			zap.String("previous_session", prev.ID().String()))
		prev.Cancel()
	}

	s := newSession(ctx, o, opts)
	stream, err := o.deps.Source.Open(s.ctx)
	if err != nil {
		s.cancel()
		return nil, fmt.Errorf("failed to open audio source: %w", err)
	}
	s.stream = stream
	s.recording = audio.NewRecording(stream.Format())

	o.active = s
	s.notify()
	go s.run()
	return s, nil
}

// Recognize starts a session and waits for it to finish
func (o *Orchestrator) Recognize(ctx context.Context, opts StartOptions) (Task, error) {
	s, err := o.Start(ctx, opts)
	if err != nil {
		return Task{}, err
	}
	return s.Wait(ctx)
}

// Active returns the most recent session, or nil before the first Start
func (o *Orchestrator) Active() *Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// Cancel stops the running session
func (o *Orchestrator) Cancel() error {
	s := o.Active()
	if s == nil || !s.Cancel() {
		return ErrNoActiveSession
	}
	return nil
}
