package audio

import (
	"context"
	"errors"
	"time"
)

// ErrDeviceBusy is returned when a source that allows a single reader is
// already streaming to another session
var ErrDeviceBusy = errors.New("audio source is already in use")

// Clip is a contiguous piece of PCM audio
type Clip struct {
	Data   []byte
	Format Format
}

// Duration returns the length of the clip
func (c Clip) Duration() time.Duration {
	return c.Format.DurationOf(len(c.Data))
}

// Empty reports whether the clip holds no complete frame
func (c Clip) Empty() bool {
	fs := c.Format.FrameSize()
	return fs == 0 || len(c.Data) < fs
}

// Chunk is a block of audio read from a stream. Elapsed is the amount of
// audio recorded since the stream opened, including this chunk.
type Chunk struct {
	Data    []byte
	Elapsed time.Duration
}

// Stream is an open, cancelable flow of audio chunks
type Stream interface {
	// Chunks returns the channel of audio chunks, closed when the stream ends
	Chunks() <-chan Chunk

	// Format describes the PCM layout of every chunk
	Format() Format

	// Err returns the error that ended the stream early, if any
	Err() error

	// Close releases the underlying resource, safe to call more than once
	Close() error
}

// Source opens audio streams
type Source interface {
	Open(ctx context.Context) (Stream, error)
}
