package audio

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// DefaultChunkDuration is the amount of audio carried by each chunk of a
// FileSource stream
const DefaultChunkDuration = 100 * time.Millisecond

// FileSource replays a clip as a stream. Chunks are emitted as fast as the
// reader consumes them.
type FileSource struct {
	clip  Clip
	chunk time.Duration
}

// FileOption configures a FileSource
type FileOption func(*FileSource)

// WithChunkDuration sets the amount of audio per chunk
func WithChunkDuration(d time.Duration) FileOption {
	return func(f *FileSource) {
		if d > 0 {
			f.chunk = d
		}
	}
}

// NewFileSource replays an in-memory clip
func NewFileSource(clip Clip, opts ...FileOption) *FileSource {
	f := &FileSource{clip: clip, chunk: DefaultChunkDuration}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewWAVSource decodes WAV bytes into a replayable source
func NewWAVSource(data []byte, opts ...FileOption) (*FileSource, error) {
	clip, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}
	return NewFileSource(clip, opts...), nil
}

// OpenWAVFile reads and decodes a WAV file from disk
func OpenWAVFile(path string, opts ...FileOption) (*FileSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return NewWAVSource(data, opts...)
}

// Clip returns the audio the source replays
func (f *FileSource) Clip() Clip {
	return f.clip
}

// Length returns the duration of the replayed audio
func (f *FileSource) Length() time.Duration {
	return f.clip.Duration()
}

// Open starts replaying the clip. Every call gets an independent stream.
func (f *FileSource) Open(ctx context.Context) (Stream, error) {
	if f.clip.Empty() {
		return nil, fmt.Errorf("clip has no audio")
	}

	st := &fileStream{
		format: f.clip.Format,
		chunks: make(chan Chunk),
		done:   make(chan struct{}),
	}
	go st.replay(ctx, f.clip, f.chunk)
	return st, nil
}

type fileStream struct {
	format Format
	chunks chan Chunk
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func (s *fileStream) Chunks() <-chan Chunk { return s.chunks }

func (s *fileStream) Format() Format { return s.format }

func (s *fileStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fileStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

func (s *fileStream) replay(ctx context.Context, clip Clip, per time.Duration) {
	defer close(s.chunks)

	step := max(clip.Format.Offset(per), clip.Format.FrameSize())
	for off := 0; off < len(clip.Data); off += step {
		end := min(off+step, len(clip.Data))
		chunk := Chunk{Data: clip.Data[off:end], Elapsed: clip.Format.DurationOf(end)}
		select {
		case s.chunks <- chunk:
		case <-s.done:
			return
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		}
	}
}

func (s *fileStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
