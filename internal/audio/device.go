package audio

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gen2brain/malgo"
)

// DeviceInfo contains information about a capture device
type DeviceInfo struct {
	ID        string // Stable identifier of the form capture-N
	Name      string // Human-readable device name
	IsDefault bool   // Whether this is the system default input
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	defaultMarker := ""
	if d.IsDefault {
		defaultMarker = " [DEFAULT]"
	}
	return fmt.Sprintf("%s: %s%s", d.ID, d.Name, defaultMarker)
}

// ListDevices returns all available capture devices
func ListDevices() ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize malgo context: %w", err)
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	_, devices, err := captureDevices(ctx)
	return devices, err
}

// captureDevices enumerates capture devices. Both slices share indexes.
func captureDevices(ctx *malgo.AllocatedContext) ([]malgo.DeviceInfo, []DeviceInfo, error) {
	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	devices := make([]DeviceInfo, len(infos))
	for i, info := range infos {
		devices[i] = DeviceInfo{ID: deviceID(i), Name: info.Name(), IsDefault: info.IsDefault > 0}
	}
	return infos, devices, nil
}

func deviceID(i int) string {
	return "capture-" + strconv.Itoa(i)
}

// PickDevice selects a device from a listing. An empty query selects the
// default device, falling back to the first one.
func PickDevice(devices []DeviceInfo, query string) (*DeviceInfo, error) {
	if len(devices) == 0 {
		return nil, fmt.Errorf("no capture devices found")
	}

	if query == "" {
		for i := range devices {
			if devices[i].IsDefault {
				return &devices[i], nil
			}
		}
		return &devices[0], nil
	}

	for i := range devices {
		if devices[i].ID == query {
			return &devices[i], nil
		}
	}

	search := strings.ToLower(query)
	for i := range devices {
		if strings.Contains(strings.ToLower(devices[i].Name), search) {
			return &devices[i], nil
		}
	}

	return nil, fmt.Errorf("no device found matching: %s", query)
}

// resolveMalgoDevice maps a configured ID or name to a malgo device within an
// already initialized context
func resolveMalgoDevice(ctx *malgo.AllocatedContext, query string) (malgo.DeviceInfo, error) {
	infos, devices, err := captureDevices(ctx)
	if err != nil {
		return malgo.DeviceInfo{}, err
	}
	picked, err := PickDevice(devices, query)
	if err != nil {
		return malgo.DeviceInfo{}, err
	}
	idx, _ := strconv.Atoi(strings.TrimPrefix(picked.ID, "capture-"))
	return infos[idx], nil
}
