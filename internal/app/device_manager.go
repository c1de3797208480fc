package app

import (
	"fmt"
	"io"
	"os"

	"github.com/emmett/earworm/internal/audio"
)

// DeviceManager handles audio device selection and listing
type DeviceManager struct {
	out  io.Writer
	list func() ([]audio.DeviceInfo, error)
}

// NewDeviceManager creates a DeviceManager writing to out (default: os.Stdout)
func NewDeviceManager(out io.Writer) *DeviceManager {
	if out == nil {
		out = os.Stdout
	}
	return &DeviceManager{out: out, list: audio.ListDevices}
}

// ListDevices prints all available audio input devices
func (dm *DeviceManager) ListDevices() error {
	devices, err := dm.list()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Fprintln(dm.out, "No audio capture devices found.")
		return fmt.Errorf("no devices found")
	}

	fmt.Fprintf(dm.out, "Found %d capture device(s):\n\n", len(devices))
	for i, device := range devices {
		marker := ""
		if device.IsDefault {
			marker = " [DEFAULT]"
		}
		fmt.Fprintf(dm.out, "%d. %s%s\n", i+1, device.Name, marker)
		fmt.Fprintf(dm.out, "   ID: %s\n", device.ID)
	}

	fmt.Fprintln(dm.out)
	fmt.Fprintln(dm.out, "To use a specific device, set audio.device in the config or run:")
	fmt.Fprintf(dm.out, "  earworm -device %q\n", devices[0].Name)
	return nil
}

// SelectDevice resolves a device by ID or partial name, or the default
// device when deviceName is empty
func (dm *DeviceManager) SelectDevice(deviceName string) (*audio.DeviceInfo, error) {
	devices, err := dm.list()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	selected, err := audio.PickDevice(devices, deviceName)
	if err != nil {
		fmt.Fprintln(dm.out, "Available devices:")
		for _, device := range devices {
			fmt.Fprintf(dm.out, "  - %s\n", device)
		}
		return nil, fmt.Errorf("invalid audio device %q: %w", deviceName, err)
	}
	return selected, nil
}
