package audio

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// MalgoSource streams microphone audio. Only one stream may be open at a
// time; a second Open fails with ErrDeviceBusy until the first is closed.
type MalgoSource struct {
	config CaptureConfig
	logger *zap.Logger

	// openDevice is swapped in tests
	openDevice func(CaptureConfig) (device, error)

	mu   sync.Mutex
	busy bool
}

// NewMalgoSource creates a microphone source
func NewMalgoSource(config CaptureConfig, logger *zap.Logger) *MalgoSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Backlog <= 0 {
		config.Backlog = DefaultConfig().Backlog
	}
	return &MalgoSource{
		config:     config,
		logger:     logger,
		openDevice: openMalgoDevice,
	}
}

// Open starts the capture device and returns a stream of its audio. The
// stream closes itself when ctx ends.
func (s *MalgoSource) Open(ctx context.Context) (Stream, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrDeviceBusy
	}
	s.busy = true
	s.mu.Unlock()

	dev, err := s.openDevice(s.config)
	if err != nil {
		s.release()
		return nil, err
	}

	st := &micStream{
		dev:     dev,
		format:  s.config.Format(),
		chunks:  make(chan Chunk, s.config.Backlog),
		done:    make(chan struct{}),
		logger:  s.logger,
		release: s.release,
	}
	if err := dev.Start(st.write); err != nil {
		s.release()
		return nil, fmt.Errorf("failed to start capture: %w", err)
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = st.Close()
		case <-st.done:
		}
	}()

	s.logger.Debug("capture stream opened",
		zap.Uint32("sample_rate", s.config.SampleRate),
		zap.Uint32("channels", s.config.Channels),
		zap.String("device", s.config.Device))
	return st, nil
}

func (s *MalgoSource) release() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// micStream turns device callbacks into chunks. Periods arriving while the
// backlog is full are dropped and do not count towards Elapsed.
type micStream struct {
	dev     device
	format  Format
	chunks  chan Chunk
	done    chan struct{}
	logger  *zap.Logger
	release func()

	mu       sync.Mutex
	closed   bool
	recorded int
	dropped  int

	closeOnce sync.Once
	closeErr  error
}

func (m *micStream) Chunks() <-chan Chunk { return m.chunks }

func (m *micStream) Format() Format { return m.format }

func (m *micStream) Err() error { return nil }

// write runs on the driver's callback thread and must not block
func (m *micStream) write(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || len(data) == 0 {
		return
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	select {
	case m.chunks <- Chunk{Data: buf, Elapsed: m.format.DurationOf(m.recorded + len(buf))}:
		m.recorded += len(buf)
	default:
		if m.dropped == 0 {
			m.logger.Warn("capture backlog full, dropping audio")
		}
		m.dropped += len(buf)
	}
}

// Close stops the device and frees it for the next session
func (m *micStream) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.done)

		m.closeErr = m.dev.Stop()

		m.mu.Lock()
		close(m.chunks)
		dropped := m.dropped
		m.mu.Unlock()
		if dropped > 0 {
			m.logger.Warn("audio dropped during capture", zap.Duration("dropped", m.format.DurationOf(dropped)))
		}
		m.release()
	})
	return m.closeErr
}
