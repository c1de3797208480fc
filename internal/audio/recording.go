package audio

import "time"

// Recording accumulates the PCM of one capture session so that windows of it
// can be cut out by offset. It is owned by a single goroutine.
type Recording struct {
	format Format
	data   []byte
}

// NewRecording creates an empty recording for the given format
func NewRecording(format Format) *Recording {
	return &Recording{
		format: format,
		data:   make([]byte, 0, format.Offset(30*time.Second)),
	}
}

// Write appends PCM to the recording
func (r *Recording) Write(p []byte) (int, error) {
	r.data = append(r.data, p...)
	return len(p), nil
}

// Len returns the number of recorded bytes
func (r *Recording) Len() int {
	return len(r.data)
}

// Duration returns how much audio has been recorded
func (r *Recording) Duration() time.Duration {
	return r.format.DurationOf(len(r.data))
}

// Format returns the PCM layout of the recording
func (r *Recording) Format() Format {
	return r.format
}

// Slice copies the audio between two offsets from the recording start.
// Offsets are clamped to what has been recorded.
func (r *Recording) Slice(from, to time.Duration) Clip {
	start := min(r.format.Offset(from), len(r.data))
	end := min(r.format.Offset(to), len(r.data))
	if end < start {
		end = start
	}

	out := make([]byte, end-start)
	copy(out, r.data[start:end])
	return Clip{Data: out, Format: r.format}
}

// Clip copies the whole recording
func (r *Recording) Clip() Clip {
	return r.Slice(0, r.Duration())
}
