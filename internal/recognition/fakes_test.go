package recognition

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/emmett/earworm/internal/audio"
	"github.com/emmett/earworm/internal/strategy"
)

// testFormat keeps clips small: one second is 2000 bytes
var testFormat = audio.Format{SampleRate: 1000, Channels: 1, BitDepth: 16}

// fakeStream is fed one second at a time by the test. Every sample of
// second n carries the value (n+1)*100 so recognizers can tell where a
// clip starts.
type fakeStream struct {
	chunks  chan audio.Chunk
	closed  chan struct{}
	closes  atomic.Int32
	once    sync.Once
	elapsed time.Duration
	silent  bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{chunks: make(chan audio.Chunk), closed: make(chan struct{})}
}

func (f *fakeStream) Chunks() <-chan audio.Chunk { return f.chunks }
func (f *fakeStream) Format() audio.Format       { return testFormat }
func (f *fakeStream) Err() error                 { return nil }

func (f *fakeStream) Close() error {
	f.closes.Add(1)
	f.once.Do(func() { close(f.closed) })
	return nil
}

// feed pushes audio until the given elapsed time. It returns false as soon
// as the consumer has closed the stream.
func (f *fakeStream) feed(until time.Duration) bool {
	for f.elapsed < until {
		sec := int(f.elapsed / time.Second)
		data := make([]byte, testFormat.BytesPerSecond())
		if !f.silent {
			for i := 0; i < len(data); i += 2 {
				binary.LittleEndian.PutUint16(data[i:], uint16((sec+1)*100))
			}
		}
		f.elapsed += time.Second
		select {
		case f.chunks <- audio.Chunk{Data: data, Elapsed: f.elapsed}:
		case <-f.closed:
			return false
		}
	}
	return true
}

type fakeSource struct {
	mu      sync.Mutex
	streams []*fakeStream
	silent  bool
	err     error
}

func (f *fakeSource) Open(context.Context) (audio.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	st := newFakeStream()
	st.silent = f.silent
	f.streams = append(f.streams, st)
	return st, nil
}

func (f *fakeSource) last() *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[len(f.streams)-1]
}

func (f *fakeSource) opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

// clipStart returns the offset of the first sample of a clip fed by fakeStream
func clipStart(clip audio.Clip) time.Duration {
	if len(clip.Data) < 2 {
		return 0
	}
	v := int(binary.LittleEndian.Uint16(clip.Data))
	return time.Duration(v/100-1) * time.Second
}

type fakeRecognizer struct {
	mu      sync.Mutex
	clips   []audio.Clip
	called  chan struct{}
	respond func(ctx context.Context, clip audio.Clip) Result
}

func newFakeRecognizer(respond func(ctx context.Context, clip audio.Clip) Result) *fakeRecognizer {
	return &fakeRecognizer{called: make(chan struct{}, 64), respond: respond}
}

func (f *fakeRecognizer) Recognize(ctx context.Context, clip audio.Clip) Result {
	f.mu.Lock()
	f.clips = append(f.clips, clip)
	f.mu.Unlock()
	f.called <- struct{}{}
	return f.respond(ctx, clip)
}

func (f *fakeRecognizer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.clips)
}

func (f *fakeRecognizer) durations() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.clips))
	for i, c := range f.clips {
		out[i] = c.Duration()
	}
	return out
}

func (f *fakeRecognizer) waitCalls(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-f.called:
		case <-time.After(5 * time.Second):
			t.Fatalf("recognizer called %d times, want %d", i, n)
		}
	}
}

func always(r Result) func(context.Context, audio.Clip) Result {
	return func(context.Context, audio.Clip) Result { return r }
}

type fakePersistence struct {
	mu       sync.Mutex
	nextID   int64
	enqueued []audio.Clip
	saved    []FailureReason
	savedIDs []int64
}

func (f *fakePersistence) EnqueueTask(_ context.Context, _ Task, clip audio.Clip) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.enqueued = append(f.enqueued, clip)
	return f.nextID, nil
}

func (f *fakePersistence) SaveFailedAttempt(_ context.Context, task Task, reason FailureReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if task.ID == nil {
		return fmt.Errorf("task was not enqueued")
	}
	f.saved = append(f.saved, reason)
	f.savedIDs = append(f.savedIDs, *task.ID)
	return nil
}

func (f *fakePersistence) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.enqueued), len(f.saved)
}

type fakeLauncher struct {
	mu  sync.Mutex
	ids []int64
}

func (f *fakeLauncher) LaunchRetry(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	return nil
}

func (f *fakeLauncher) launched() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.ids...)
}

type stateLog struct {
	mu     sync.Mutex
	states []string
	tasks  []Task
}

func (l *stateLog) TaskChanged(task Task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := task.State.String()
	if _, ok := task.State.(Done); ok {
		name = "done"
	}
	l.states = append(l.states, name)
	l.tasks = append(l.tasks, task)
}

func (l *stateLog) names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.states...)
}

type harness struct {
	orch        *Orchestrator
	source      *fakeSource
	recognizer  *fakeRecognizer
	persistence *fakePersistence
	launcher    *fakeLauncher
	log         *stateLog
}

func newHarness(t *testing.T, s *strategy.Strategy, policy FallbackPolicy, rec *fakeRecognizer, mutate ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		source:      &fakeSource{},
		recognizer:  rec,
		persistence: &fakePersistence{},
		launcher:    &fakeLauncher{},
		log:         &stateLog{},
	}
	cfg := Config{Strategy: s, Policy: policy, SliceTimeout: 2 * time.Second}
	for _, m := range mutate {
		m(&cfg)
	}
	orch, err := NewOrchestrator(cfg, Dependencies{
		Source:      h.source,
		Recognizer:  rec,
		Persistence: h.persistence,
		Launcher:    h.launcher,
		Observer:    h.log,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	h.orch = orch
	return h
}

func (h *harness) start(t *testing.T) (*Session, *fakeStream) {
	t.Helper()
	s, err := h.orch.Start(context.Background(), StartOptions{})
	require.NoError(t, err)
	return s, h.source.last()
}

func wait(t *testing.T, s *Session) Task {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := s.Wait(ctx)
	require.NoError(t, err, "session did not finish")
	return task
}

func mustPreset(t *testing.T, name string) *strategy.Strategy {
	t.Helper()
	s, err := strategy.Lookup(name)
	require.NoError(t, err)
	return s
}

func outcomeOf(t *testing.T, task Task) Outcome {
	t.Helper()
	done, ok := task.State.(Done)
	require.True(t, ok, "task state is %s", task.State)
	return done.Outcome
}
