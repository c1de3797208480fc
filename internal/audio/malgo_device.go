package audio

import (
	"fmt"

	"github.com/gen2brain/malgo"
)

// device is a capture device that hands PCM periods to a callback. The
// buffer passed to onData is reused by the driver after the call returns.
type device interface {
	Start(onData func(data []byte)) error
	Stop() error
}

// malgoDevice captures 16-bit PCM through miniaudio
type malgoDevice struct {
	config CaptureConfig
	ctx    *malgo.AllocatedContext
	dev    *malgo.Device
}

func openMalgoDevice(config CaptureConfig) (device, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	return &malgoDevice{config: config, ctx: ctx}, nil
}

func (m *malgoDevice) Start(onData func([]byte)) error {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = m.config.Channels
	deviceConfig.SampleRate = m.config.SampleRate
	deviceConfig.PeriodSizeInFrames = m.config.PeriodFrames

	if m.config.Device != "" {
		info, err := resolveMalgoDevice(m.ctx, m.config.Device)
		if err != nil {
			m.free()
			return err
		}
		deviceConfig.Capture.DeviceID = info.ID.Pointer()
	}

	dev, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) { onData(input) },
	})
	if err != nil {
		m.free()
		return fmt.Errorf("failed to initialize device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		m.free()
		return fmt.Errorf("failed to start device: %w", err)
	}
	m.dev = dev
	return nil
}

// Stop waits for the running callback, if any, and releases the device
func (m *malgoDevice) Stop() error {
	var err error
	if m.dev != nil {
		if stopErr := m.dev.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop device: %w", stopErr)
		}
		m.dev.Uninit()
		m.dev = nil
	}
	m.free()
	return err
}

func (m *malgoDevice) free() {
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
}
