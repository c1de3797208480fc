// Package app wires capture, recognition, storage and enrichment into the
// operations exposed by the CLI, the gRPC server and the MCP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/emmett/earworm/internal/audio"
	"github.com/emmett/earworm/internal/config"
	"github.com/emmett/earworm/internal/enhancer"
	"github.com/emmett/earworm/internal/recognition"
	"github.com/emmett/earworm/internal/recognizer"
	"github.com/emmett/earworm/internal/store"
	"github.com/emmett/earworm/internal/strategy"
)

const defaultEnhanceTimeout = 10 * time.Second

// Enhancer fills in links and artwork of a matched track
type Enhancer interface {
	Enhance(ctx context.Context, track recognition.Track) recognition.Track
}

// Options configures a Service. Zero fields are built from Config.
type Options struct {
	Config *config.Config
	Logger *zap.Logger

	// Store holds the queue and library; required
	Store *store.Store

	Recognizer recognition.Recognizer
	Source     audio.Source
	Enhancer   Enhancer

	// Observer receives every transition; matches arrive once enriched
	Observer recognition.Observer
}

// Service runs recognitions and files their outcomes
type Service struct {
	config     recognition.Config
	live       *recognition.Orchestrator
	store      *store.Store
	recognizer recognition.Recognizer
	enhancer   Enhancer
	hub        *Hub
	downstream recognition.Observer
	logger     *zap.Logger

	// filings holds matches being enhanced and added to the library, by
	// session, until a waiting caller collects them
	mu      sync.Mutex
	filings map[uuid.UUID]*filing
	filing  sync.WaitGroup

	enhanceTimeout time.Duration
}

// NewService builds the service from configuration
func NewService(opts Options) (*Service, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config

	rc, err := cfg.RecognitionConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid recognition settings: %w", err)
	}

	rec := opts.Recognizer
	if rec == nil {
		rec = recognizer.NewAudD(recognizer.Config{
			Endpoint:       cfg.Recognizer.Endpoint,
			APIToken:       cfg.Recognizer.APIToken,
			Timeout:        cfg.Recognizer.Timeout,
			ReturnServices: cfg.Recognizer.ReturnServices,
		}, logger.Named("audd"))
	}

	enh := opts.Enhancer
	if enh == nil && cfg.Enhancer.Enabled {
		enh = enhancer.New(enhancer.Config{
			OdesliEndpoint: cfg.Enhancer.OdesliEndpoint,
			DeezerEndpoint: cfg.Enhancer.DeezerEndpoint,
			UserCountry:    cfg.Enhancer.UserCountry,
			Timeout:        cfg.Enhancer.Timeout,
		}, logger.Named("enhancer"))
	}

	source := opts.Source
	if source == nil {
		source = audio.NewMalgoSource(cfg.CaptureConfig(), logger.Named("capture"))
	}

	hub := NewHub(logger)
	s := &Service{
		config:         rc,
		store:          opts.Store,
		recognizer:     rec,
		enhancer:       enh,
		hub:            hub,
		downstream:     recognition.Observers{hub, opts.Observer},
		logger:         logger,
		filings:        make(map[uuid.UUID]*filing),
		enhanceTimeout: defaultEnhanceTimeout,
	}
	if cfg.Enhancer.Timeout > 0 {
		s.enhanceTimeout = 2 * cfg.Enhancer.Timeout
	}

	s.live, err = recognition.NewOrchestrator(rc, s.dependencies(source), logger.Named("live"))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) dependencies(source audio.Source) recognition.Dependencies {
	return recognition.Dependencies{
		Source:      source,
		Recognizer:  s.recognizer,
		Persistence: s.store,
		Launcher:    s.store,
		Observer:    recognition.ObserverFunc(s.taskChanged),
	}
}

// filing is a match on its way into the library
type filing struct {
	done  chan struct{}
	track recognition.Track
}

// taskChanged passes transitions on. A match is enhanced and filed in the
// background and reaches observers with its links once that is done, so the
// session never waits on the network.
func (s *Service) taskChanged(task recognition.Task) {
	done, ok := task.State.(recognition.Done)
	if !ok || !done.Outcome.Success() {
		s.downstream.TaskChanged(task)
		return
	}

	f := &filing{done: make(chan struct{}), track: *done.Outcome.Track}
	s.mu.Lock()
	s.filings[task.SessionID] = f
	s.mu.Unlock()

	s.filing.Add(1)
	go func() {
		defer s.filing.Done()
		defer close(f.done)

		f.track = s.file(context.Background(), f.track)
		track := f.track
		done.Outcome.Track = &track
		task.State = done
		s.downstream.TaskChanged(task)
	}()
}

// file enhances a matched track and adds it to the library
func (s *Service) file(ctx context.Context, track recognition.Track) recognition.Track {
	if s.enhancer != nil {
		ctx, cancel := context.WithTimeout(ctx, s.enhanceTimeout)
		track = s.enhancer.Enhance(ctx, track)
		cancel()
	}
	if _, err := s.store.AddTrack(ctx, track); err != nil {
		s.logger.Error("failed to add track to library", zap.Stringer("track", track), zap.Error(err))
	}
	return track
}

// collect waits for a finished task's match to be filed and swaps in the
// enriched track. The raw track is kept when ctx ends first.
func (s *Service) collect(ctx context.Context, task recognition.Task) recognition.Task {
	done, isDone := task.State.(recognition.Done)
	if !isDone || !done.Outcome.Success() {
		return task
	}

	s.mu.Lock()
	f, ok := s.filings[task.SessionID]
	s.mu.Unlock()
	if !ok {
		return task
	}

	defer func() {
		s.mu.Lock()
		delete(s.filings, task.SessionID)
		s.mu.Unlock()
	}()

	select {
	case <-f.done:
	case <-ctx.Done():
		return task
	}

	track := f.track
	done.Outcome.Track = &track
	task.State = done
	return task
}

// Drain waits for matches still being filed
func (s *Service) Drain() {
	s.filing.Wait()
}

// Listen starts a microphone session and returns without waiting
func (s *Service) Listen(ctx context.Context, opts recognition.StartOptions) (*recognition.Session, error) {
	session, err := s.live.Start(ctx, opts)
	if err != nil {
		return nil, err
	}
	go func() {
		<-session.Done()
		s.collect(context.Background(), session.Task())
	}()
	return session, nil
}

// StartListening starts a microphone session unless one is running and
// returns its first state
func (s *Service) StartListening(ctx context.Context) (recognition.Task, error) {
	session, err := s.Listen(ctx, recognition.StartOptions{IfIdle: true})
	if err != nil {
		return recognition.Task{}, err
	}
	return session.Task(), nil
}

// RecognizeLive listens on the microphone until the session finishes
func (s *Service) RecognizeLive(ctx context.Context, opts recognition.StartOptions) (recognition.Task, error) {
	session, err := s.live.Start(ctx, opts)
	if err != nil {
		return recognition.Task{}, err
	}
	task, err := session.Wait(ctx)
	return s.collect(ctx, task), err
}

// Toggle cancels the running microphone session, or starts one when idle.
// It reports whether a session was started.
func (s *Service) Toggle(ctx context.Context) (bool, error) {
	if err := s.live.Cancel(); err == nil {
		return false, nil
	}
	if _, err := s.Listen(ctx, recognition.StartOptions{IfIdle: true}); err != nil {
		return false, err
	}
	return true, nil
}

// Cancel stops the running microphone session
func (s *Service) Cancel() error {
	return s.live.Cancel()
}

// Active returns the latest microphone session, or nil
func (s *Service) Active() *recognition.Session {
	return s.live.Active()
}

// RecognizeClip runs a recognition over a pre-recorded clip. The clip is
// submitted whole once, with the same fallback policy as live sessions.
func (s *Service) RecognizeClip(ctx context.Context, clip audio.Clip) (recognition.Task, error) {
	if clip.Empty() {
		return recognition.Task{}, errors.New("clip is empty")
	}
	strat, err := strategy.ForClip(clip.Duration())
	if err != nil {
		return recognition.Task{}, err
	}

	cfg := s.config
	cfg.Strategy = strat
	orch, err := recognition.NewOrchestrator(cfg, s.dependencies(audio.NewFileSource(clip)), s.logger.Named("clip"))
	if err != nil {
		return recognition.Task{}, err
	}

	task, err := orch.Recognize(ctx, recognition.StartOptions{})
	return s.collect(ctx, task), err
}

// RecognizeWAV decodes and recognizes a WAV file held in memory
func (s *Service) RecognizeWAV(ctx context.Context, data []byte) (recognition.Task, error) {
	clip, err := audio.DecodeWAV(data)
	if err != nil {
		return recognition.Task{}, err
	}
	return s.RecognizeClip(ctx, clip)
}

// RecognizeFile recognizes a WAV file on disk
func (s *Service) RecognizeFile(ctx context.Context, path string) (recognition.Task, error) {
	src, err := audio.OpenWAVFile(path)
	if err != nil {
		return recognition.Task{}, err
	}
	return s.RecognizeClip(ctx, src.Clip())
}

// Subscribe streams task transitions of every session
func (s *Service) Subscribe(buffer int) (<-chan recognition.Task, func()) {
	return s.hub.Subscribe(buffer)
}

// Strategy returns the live sampling schedule
func (s *Service) Strategy() *strategy.Strategy {
	return s.live.Strategy()
}

// Store returns the queue and library
func (s *Service) Store() *store.Store {
	return s.store
}

// Recognizer returns the recognizer used by every session
func (s *Service) Recognizer() recognition.Recognizer {
	return s.recognizer
}

// Library returns recognized tracks, most recent first
func (s *Service) Library() ([]store.LibraryEntry, error) {
	return s.store.Library()
}

// Queue returns recordings waiting for a retry, oldest first
func (s *Service) Queue() ([]store.QueuedAttempt, error) {
	return s.store.List()
}
