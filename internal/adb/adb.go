// Package adb owns the android debug bridge vocabulary: command lines
// sent through the executor and the parsing of bridge output. It never
// executes anything itself.
package adb

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNoDevices = errors.New("adb: no devices attached")

// Failure markers the bridge prints on a dead transport. Matching is
// case-sensitive so "error: device offline" counts and "Error" in app
// output does not.
const (
	markerAbsent = "None"
	markerError  = "error"
)

// HasFailureMarker reports whether bridge output indicates a dead or
// refused transport.
func HasFailureMarker(output string) bool {
	return strings.Contains(output, markerAbsent) || strings.Contains(output, markerError)
}

// Bridge builds command lines for one adb binary. The zero value uses
// whatever adb is on PATH.
type Bridge struct {
	Bin string
}

func (b Bridge) bin() string {
	if b.Bin == "" {
		return "adb"
	}
	return b.Bin
}

func (b Bridge) Devices() string {
	return b.bin() + " devices"
}

// Probe is the cheapest round trip that proves the whole transport:
// shell spawn on the device plus output readback.
func (b Bridge) Probe(id string) string {
	return fmt.Sprintf("%s -s %s shell ls", b.bin(), id)
}

func (b Bridge) Connect(id string) string {
	return fmt.Sprintf("%s connect %s", b.bin(), id)
}

func (b Bridge) USB(id string) string {
	return fmt.Sprintf("%s -s %s usb", b.bin(), id)
}

func (b Bridge) Root(id string) string {
	return fmt.Sprintf("%s -s %s root", b.bin(), id)
}

func (b Bridge) Reboot(id string) string {
	return fmt.Sprintf("%s -s %s reboot", b.bin(), id)
}

func (b Bridge) KeyEvent(id, key string) string {
	return fmt.Sprintf("%s -s %s shell input keyevent %s", b.bin(), id, key)
}

func (b Bridge) Tap(id string, x, y int) string {
	return fmt.Sprintf("%s -s %s shell input tap %d %d", b.bin(), id, x, y)
}

func (b Bridge) Swipe(id string, x0, y0, x1, y1, durationMS int) string {
	return fmt.Sprintf("%s -s %s shell input touchscreen swipe %d %d %d %d %d",
		b.bin(), id, x0, y0, x1, y1, durationMS)
}

func (b Bridge) GetProp(id, name string) string {
	return fmt.Sprintf("%s -s %s shell getprop %s", b.bin(), id, name)
}

// ScreencapTo captures the framebuffer to a host-side file. The sed
// strips the carriage returns adb shell injects into binary output.
func (b Bridge) ScreencapTo(id, path string) string {
	return fmt.Sprintf(`%s -s %s shell /system/bin/screencap -p | sed 's/\r$//' > %s`,
		b.bin(), id, path)
}

func (b Bridge) Pull(id, remote, local string) string {
	return fmt.Sprintf("%s -s %s pull %s %s", b.bin(), id, remote, local)
}

func (b Bridge) BugreportTo(id, path string) string {
	return fmt.Sprintf("%s -s %s bugreport > %s", b.bin(), id, path)
}

// Command is the raw passthrough for anything without a builder.
func (b Bridge) Command(id, rest string) string {
	return fmt.Sprintf("%s -s %s %s", b.bin(), id, rest)
}

// ParseDevices extracts serial identifiers from `adb devices` output.
// The header line, daemon banners, unauthorized placeholders and blank
// lines are dropped.
func ParseDevices(output string) []string {
	lines := strings.Split(output, "\n")
	if len(lines) > 0 {
		lines = lines[1:]
	}

	var ids []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.Contains(line, "List") || strings.Contains(line, "*") || strings.Contains(line, "????") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		ids = append(ids, fields[0])
	}
	return ids
}

// FirstDevice picks the first attached serial or fails when the bench
// is empty.
func FirstDevice(output string) (string, error) {
	ids := ParseDevices(output)
	if len(ids) == 0 {
		return "", ErrNoDevices
	}
	return ids[0], nil
}
