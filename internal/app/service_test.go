package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/emmett/earworm/internal/audio"
	"github.com/emmett/earworm/internal/config"
	"github.com/emmett/earworm/internal/recognition"
	"github.com/emmett/earworm/internal/store"
)

var testFormat = audio.Format{SampleRate: 1000, Channels: 1, BitDepth: 16}

func testClip(seconds int) audio.Clip {
	data := make([]byte, seconds*testFormat.BytesPerSecond())
	for i := range data {
		data[i] = byte(i % 251)
	}
	return audio.Clip{Data: data, Format: testFormat}
}

// fakeRecognizer answers every sample with the current result
type fakeRecognizer struct {
	mu     sync.Mutex
	result recognition.Result
	block  bool
	calls  atomic.Int32
}

func (f *fakeRecognizer) set(res recognition.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = res
}

func (f *fakeRecognizer) Recognize(ctx context.Context, _ audio.Clip) recognition.Result {
	f.calls.Add(1)
	f.mu.Lock()
	res, block := f.result, f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return recognition.ConnectivityFailure(ctx.Err())
	}
	return res
}

// fakeEnhancer holds each lookup until gate is closed when gate is set
type fakeEnhancer struct {
	calls   atomic.Int32
	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeEnhancer) Enhance(_ context.Context, track recognition.Track) recognition.Track {
	f.calls.Add(1)
	if f.gate != nil {
		f.entered <- struct{}{}
		<-f.gate
	}
	track.Links.Odesli = "https://song.link/s/" + track.Title
	return track
}

type recordingObserver struct {
	mu    sync.Mutex
	tasks []recognition.Task
}

func (r *recordingObserver) TaskChanged(task recognition.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
}

func (r *recordingObserver) last() recognition.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tasks[len(r.tasks)-1]
}

type fixture struct {
	service    *Service
	store      *store.Store
	recognizer *fakeRecognizer
	enhancer   *fakeEnhancer
	observer   *recordingObserver
}

func newFixture(t *testing.T, rec *fakeRecognizer) *fixture {
	t.Helper()
	logger := zap.NewNop()

	st, err := store.Open("", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.DefaultConfig()
	cfg.Enhancer.Enabled = false

	f := &fixture{store: st, recognizer: rec, enhancer: &fakeEnhancer{}, observer: &recordingObserver{}}
	f.service, err = NewService(Options{
		Config:     cfg,
		Logger:     logger,
		Store:      st,
		Recognizer: rec,
		Source:     audio.NewFileSource(testClip(30)),
		Enhancer:   f.enhancer,
		Observer:   f.observer,
	})
	require.NoError(t, err)
	t.Cleanup(f.service.Drain)
	return f
}

func matched(title string) recognition.Result {
	return recognition.Matched(recognition.Track{Title: title, Artist: "Boards of Canada"})
}

func outcome(t *testing.T, task recognition.Task) recognition.Outcome {
	t.Helper()
	done, ok := task.State.(recognition.Done)
	require.True(t, ok, "task ended in %v", task.State)
	return done.Outcome
}

func TestNewServiceRequiresStore(t *testing.T) {
	_, err := NewService(Options{Recognizer: &fakeRecognizer{}})
	assert.Error(t, err)
}

func TestRecognizeClipFilesMatch(t *testing.T) {
	f := newFixture(t, &fakeRecognizer{result: matched("Roygbiv")})

	task, err := f.service.RecognizeClip(context.Background(), testClip(4))
	require.NoError(t, err)

	out := outcome(t, task)
	require.True(t, out.Success())
	assert.Equal(t, "Roygbiv", out.Track.Title)
	assert.Equal(t, "https://song.link/s/Roygbiv", out.Track.Links.Odesli)

	library, err := f.service.Library()
	require.NoError(t, err)
	require.Len(t, library, 1)
	assert.Equal(t, "https://song.link/s/Roygbiv", library[0].Track.Links.Odesli)

	// observers see the enriched track too
	last := outcome(t, f.observer.last())
	assert.Equal(t, "https://song.link/s/Roygbiv", last.Track.Links.Odesli)
}

func TestRecognizeClipQueuesFailure(t *testing.T) {
	f := newFixture(t, &fakeRecognizer{result: recognition.ConnectivityFailure(errors.New("offline"))})

	task, err := f.service.RecognizeClip(context.Background(), testClip(4))
	require.NoError(t, err)

	out := outcome(t, task)
	assert.False(t, out.Success())
	assert.Equal(t, recognition.BadConnection, out.Reason.Category)
	assert.True(t, out.Saved)
	require.NotNil(t, task.ID)

	queue, err := f.service.Queue()
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, *task.ID, queue[0].ID)
	require.NotNil(t, queue[0].Failure)
	assert.Equal(t, recognition.BadConnection, queue[0].Failure.Category)
	assert.Zero(t, f.enhancer.calls.Load())
}

func TestRecognizeClipIgnoresNoMatch(t *testing.T) {
	f := newFixture(t, &fakeRecognizer{result: recognition.NoMatch()})

	task, err := f.service.RecognizeClip(context.Background(), testClip(4))
	require.NoError(t, err)

	out := outcome(t, task)
	assert.Equal(t, recognition.NoMatches, out.Reason.Category)
	assert.False(t, out.Saved)
	assert.Nil(t, task.ID)

	queue, err := f.service.Queue()
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestRecognizeClipRejectsEmpty(t *testing.T) {
	f := newFixture(t, &fakeRecognizer{})

	_, err := f.service.RecognizeClip(context.Background(), audio.Clip{Format: testFormat})
	assert.Error(t, err)
	assert.Zero(t, f.recognizer.calls.Load())
}

func TestRecognizeWAV(t *testing.T) {
	f := newFixture(t, &fakeRecognizer{result: matched("Olson")})

	data, err := audio.EncodeWAV(testClip(2))
	require.NoError(t, err)

	task, err := f.service.RecognizeWAV(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, "Olson", outcome(t, task).Track.Title)

	_, err = f.service.RecognizeWAV(context.Background(), []byte("not a wav"))
	assert.Error(t, err)
}

func TestRecognizeLive(t *testing.T) {
	f := newFixture(t, &fakeRecognizer{result: matched("Aquarius")})
	tasks, unsubscribe := f.service.Subscribe(16)
	defer unsubscribe()

	task, err := f.service.RecognizeLive(context.Background(), recognition.StartOptions{})
	require.NoError(t, err)

	out := outcome(t, task)
	require.True(t, out.Success())
	assert.Equal(t, "https://song.link/s/Aquarius", out.Track.Links.Odesli)

	var states []string
	for len(tasks) > 0 {
		states = append(states, (<-tasks).State.String())
	}
	assert.Equal(t, "created", states[0])
	assert.Contains(t, states[len(states)-1], "done")

	library, err := f.service.Library()
	require.NoError(t, err)
	require.Len(t, library, 1)
	assert.Equal(t, 1, library[0].Count)
}

func TestCancelDoesNotWaitForEnrichment(t *testing.T) {
	f := newFixture(t, &fakeRecognizer{result: matched("Music Is Math")})
	f.enhancer.entered = make(chan struct{}, 1)
	f.enhancer.gate = make(chan struct{})
	var release sync.Once
	open := func() { release.Do(func() { close(f.enhancer.gate) }) }
	defer open()

	tasks, unsubscribe := f.service.Subscribe(16)
	defer unsubscribe()

	session, err := f.service.Listen(context.Background(), recognition.StartOptions{})
	require.NoError(t, err)

	select {
	case <-f.enhancer.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("match was not enhanced")
	}

	// the session finishes while the lookup is still running
	select {
	case <-session.Done():
	case <-time.After(time.Second):
		t.Fatal("session waited for enrichment")
	}

	start := time.Now()
	assert.ErrorIs(t, f.service.Cancel(), recognition.ErrNoActiveSession)
	assert.Less(t, time.Since(start), time.Second)

	open()

	var last recognition.Task
	require.Eventually(t, func() bool {
		for {
			select {
			case task := <-tasks:
				last = task
			default:
				_, isDone := last.State.(recognition.Done)
				return isDone
			}
		}
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "https://song.link/s/Music Is Math", outcome(t, last).Track.Links.Odesli)

	f.service.Drain()
	library, err := f.service.Library()
	require.NoError(t, err)
	require.Len(t, library, 1)
	assert.Equal(t, "https://song.link/s/Music Is Math", library[0].Track.Links.Odesli)
}

func TestToggle(t *testing.T) {
	f := newFixture(t, &fakeRecognizer{block: true})
	ctx := context.Background()

	started, err := f.service.Toggle(ctx)
	require.NoError(t, err)
	assert.True(t, started)

	session := f.service.Active()
	require.NotNil(t, session)

	_, err = f.service.StartListening(ctx)
	assert.ErrorIs(t, err, recognition.ErrSessionActive)

	started, err = f.service.Toggle(ctx)
	require.NoError(t, err)
	assert.False(t, started)

	select {
	case <-session.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.IsType(t, recognition.Cancelled{}, session.Task().State)
	assert.ErrorIs(t, f.service.Cancel(), recognition.ErrNoActiveSession)
}

func TestRetryWorkerMatch(t *testing.T) {
	rec := &fakeRecognizer{result: recognition.ConnectivityFailure(errors.New("offline"))}
	f := newFixture(t, rec)
	ctx := context.Background()

	task, err := f.service.RecognizeClip(ctx, testClip(4))
	require.NoError(t, err)
	require.NotNil(t, task.ID)

	worker := NewRetryWorker(f.service, zaptest.NewLogger(t))

	res, err := worker.Retry(ctx, *task.ID)
	require.NoError(t, err)
	assert.Equal(t, recognition.KindConnectivityFailure, res.Kind)

	entry, err := f.store.Get(*task.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Retries)

	rec.set(matched("Dayvan Cowboy"))
	res, err = worker.Retry(ctx, *task.ID)
	require.NoError(t, err)
	require.Equal(t, recognition.KindSuccess, res.Kind)
	assert.Equal(t, "https://song.link/s/Dayvan Cowboy", res.Track.Links.Odesli)

	_, err = f.store.Get(*task.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	library, err := f.service.Library()
	require.NoError(t, err)
	require.Len(t, library, 1)
}

func TestRetryWorkerRetryAll(t *testing.T) {
	rec := &fakeRecognizer{result: recognition.ConnectivityFailure(errors.New("offline"))}
	f := newFixture(t, rec)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.service.RecognizeClip(ctx, testClip(3+i))
		require.NoError(t, err)
	}

	rec.set(matched("Julie and Candy"))
	matchedCount, err := NewRetryWorker(f.service, nil).RetryAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, matchedCount)

	queue, err := f.service.Queue()
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestRetryWorkerRunHandlesLaunches(t *testing.T) {
	rec := &fakeRecognizer{result: recognition.ConnectivityFailure(errors.New("offline"))}
	f := newFixture(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	task, err := f.service.RecognizeClip(ctx, testClip(4))
	require.NoError(t, err)
	require.NotNil(t, task.ID)

	done := make(chan error, 1)
	go func() { done <- NewRetryWorker(f.service, zaptest.NewLogger(t)).Run(ctx) }()

	rec.set(matched("Chromakey Dreamcoat"))
	require.NoError(t, f.store.LaunchRetry(ctx, *task.ID))

	require.Eventually(t, func() bool {
		library, err := f.service.Library()
		return err == nil && len(library) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
