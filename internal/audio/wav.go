package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrInvalidWAV is returned when data is not a readable PCM WAV file
var ErrInvalidWAV = errors.New("invalid wav data")

// EncodeWAV wraps a clip in a 16-bit PCM WAV container
func EncodeWAV(clip Clip) ([]byte, error) {
	if clip.Format.BitDepth != 16 {
		return nil, fmt.Errorf("unsupported bit depth %d", clip.Format.BitDepth)
	}

	var out seekBuffer
	if err := WriteWAV(&out, clip); err != nil {
		return nil, err
	}
	return out.data, nil
}

// seekBuffer is an in-memory io.WriteSeeker. The encoder seeks back to
// patch the header sizes on Close.
type seekBuffer struct {
	data []byte
	pos  int
}

func (b *seekBuffer) Write(p []byte) (int, error) {
	if end := b.pos + len(p); end > len(b.data) {
		b.data = append(b.data, make([]byte, end-len(b.data))...)
	}
	n := copy(b.data[b.pos:], p)
	b.pos += n
	return n, nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(b.pos) + offset
	case io.SeekEnd:
		abs = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("negative position")
	}
	b.pos = int(abs)
	return abs, nil
}

// WriteWAV encodes a 16-bit clip into w
func WriteWAV(w io.WriteSeeker, clip Clip) error {
	channels := int(clip.Format.Channels)
	rate := int(clip.Format.SampleRate)

	samples := make([]int, len(clip.Data)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(clip.Data[i*2:])))
	}

	enc := wav.NewEncoder(w, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav: %w", err)
	}
	return nil
}

// DecodeWAV reads a PCM WAV file into a 16-bit clip
func DecodeWAV(data []byte) (Clip, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Clip{}, ErrInvalidWAV
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Clip{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if buf.Format == nil || buf.Format.NumChannels == 0 {
		return Clip{}, fmt.Errorf("%w: missing format", ErrInvalidWAV)
	}

	depth := int(dec.BitDepth)
	out := make([]byte, len(buf.Data)*2)
	for i, v := range buf.Data {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(v, depth)))
	}

	return Clip{
		Data: out,
		Format: Format{
			SampleRate: uint32(buf.Format.SampleRate),
			Channels:   uint32(buf.Format.NumChannels),
			BitDepth:   16,
		},
	}, nil
}

func toInt16(v, depth int) int16 {
	switch {
	case depth == 8:
		return int16((v - 128) << 8)
	case depth > 16:
		return int16(v >> (depth - 16))
	default:
		return int16(v)
	}
}
