package audio

import "time"

// Format describes raw little-endian signed PCM audio
type Format struct {
	// SampleRate is the number of frames per second (Hz)
	SampleRate uint32

	// Channels is the number of interleaved channels
	Channels uint32

	// BitDepth is the number of bits per sample, 16 for all captured audio
	BitDepth uint32
}

// FrameSize returns the number of bytes in one frame
func (f Format) FrameSize() int {
	return int(f.Channels) * int(f.BitDepth/8)
}

// BytesPerSecond returns the byte rate of the format
func (f Format) BytesPerSecond() int {
	return int(f.SampleRate) * f.FrameSize()
}

// Offset converts a duration to a frame-aligned byte offset
func (f Format) Offset(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	frames := int64(d) * int64(f.SampleRate) / int64(time.Second)
	return int(frames) * f.FrameSize()
}

// DurationOf returns how long n bytes of audio last
func (f Format) DurationOf(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// CaptureConfig selects the microphone and the PCM layout it records in.
// Samples are always 16-bit.
type CaptureConfig struct {
	// Device is a device ID or part of its name; empty selects the default input
	Device string

	SampleRate uint32
	Channels   uint32

	// PeriodFrames is the number of frames the driver hands over per callback
	PeriodFrames uint32

	// Backlog is the number of periods that may wait for the session before
	// newer audio is dropped
	Backlog int
}

// DefaultConfig returns the capture configuration used for recognition.
// 16kHz mono keeps uploads small and is accepted by the recognition service.
func DefaultConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:   16000,
		Channels:     1,
		PeriodFrames: 1600, // 100ms
		Backlog:      64,
	}
}

// Format returns the PCM format produced by this configuration
func (c CaptureConfig) Format() Format {
	return Format{SampleRate: c.SampleRate, Channels: c.Channels, BitDepth: 16}
}
