package link

import (
	"fmt"
	"strings"

	"github.com/dutlab/dutctl/internal/console"
)

// Mode is how a device under test is attached to the bench.
type Mode string

const (
	ModeNetwork Mode = "network"
	ModeUSB     Mode = "usb"
	ModeSerial  Mode = "serial"
)

func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "network", "tcp", "wifi":
		return ModeNetwork, nil
	case "usb":
		return ModeUSB, nil
	case "serial", "console":
		return ModeSerial, nil
	default:
		return "", fmt.Errorf("link: unknown connection mode %q", raw)
	}
}

// State is the probe verdict for a device.
type State string

const (
	StateReachable   State = "reachable"
	StateUnreachable State = "unreachable"
)

// Device is the handle for one device under test. ID doubles as the
// adb serial: an ip:port pair for network devices, a usb serial
// otherwise. Console is set only for serial-attached devices.
type Device struct {
	ID      string
	Mode    Mode
	Console *console.Console
}

func (d *Device) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("link: device id is required")
	}
	switch d.Mode {
	case ModeNetwork, ModeUSB:
		return nil
	case ModeSerial:
		if d.Console == nil {
			return fmt.Errorf("%w: %s", ErrNoConsole, d.ID)
		}
		return nil
	default:
		return fmt.Errorf("link: unknown connection mode %q", d.Mode)
	}
}
