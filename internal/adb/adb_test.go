package adb

import (
	"errors"
	"testing"

	"github.com/dutlab/dutctl/internal/testutil/testlog"
)

func TestBridgeCommandShapes(t *testing.T) {
	testlog.Start(t)

	b := Bridge{}
	id := "192.168.1.40:5555"

	cases := []struct {
		got  string
		want string
	}{
		{b.Devices(), "adb devices"},
		{b.Probe(id), "adb -s 192.168.1.40:5555 shell ls"},
		{b.Connect(id), "adb connect 192.168.1.40:5555"},
		{b.USB(id), "adb -s 192.168.1.40:5555 usb"},
		{b.Root(id), "adb -s 192.168.1.40:5555 root"},
		{b.Reboot(id), "adb -s 192.168.1.40:5555 reboot"},
		{b.KeyEvent(id, "KEYCODE_HOME"), "adb -s 192.168.1.40:5555 shell input keyevent KEYCODE_HOME"},
		{b.Tap(id, 120, 640), "adb -s 192.168.1.40:5555 shell input tap 120 640"},
		{b.Swipe(id, 10, 20, 300, 20, 500), "adb -s 192.168.1.40:5555 shell input touchscreen swipe 10 20 300 20 500"},
		{b.GetProp(id, "ro.build.version.release"), "adb -s 192.168.1.40:5555 shell getprop ro.build.version.release"},
		{b.Pull(id, "/data/anr/", "/tmp/run/TEST_FAILURE"), "adb -s 192.168.1.40:5555 pull /data/anr/ /tmp/run/TEST_FAILURE"},
		{b.BugreportTo(id, "/tmp/run/TEST_FAILURE/bugreport.txt"), "adb -s 192.168.1.40:5555 bugreport > /tmp/run/TEST_FAILURE/bugreport.txt"},
		{b.Command(id, "forward tcp:7000 tcp:7000"), "adb -s 192.168.1.40:5555 forward tcp:7000 tcp:7000"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("command mismatch\nwant: %s\ngot:  %s", tc.want, tc.got)
		}
	}

	screencap := b.ScreencapTo(id, "/tmp/run/IMAGE_RESULTS/IMAGE_142233.png")
	want := `adb -s 192.168.1.40:5555 shell /system/bin/screencap -p | sed 's/\r$//' > /tmp/run/IMAGE_RESULTS/IMAGE_142233.png`
	if screencap != want {
		t.Fatalf("screencap mismatch\nwant: %s\ngot:  %s", want, screencap)
	}
}

func TestBridgeCustomBinary(t *testing.T) {
	testlog.Start(t)

	b := Bridge{Bin: "/opt/platform-tools/adb"}
	if got := b.Devices(); got != "/opt/platform-tools/adb devices" {
		t.Fatalf("custom binary not used: %s", got)
	}
}

func TestHasFailureMarker(t *testing.T) {
	testlog.Start(t)

	if !HasFailureMarker("error: device '192.168.1.40:5555' not found") {
		t.Fatalf("bridge error not flagged")
	}
	if !HasFailureMarker("None") {
		t.Fatalf("absent placeholder not flagged")
	}
	if HasFailureMarker("acct cache config d data default.prop") {
		t.Fatalf("healthy shell listing flagged as failure")
	}
	// Case matters: app output mentioning Error is not a transport fault.
	if HasFailureMarker("Error parsing preferences") {
		t.Fatalf("marker matching must be case-sensitive")
	}
}

func TestParseDevices(t *testing.T) {
	testlog.Start(t)

	output := "List of devices attached\n" +
		"192.168.1.40:5555\tdevice\n" +
		"emulator-5554\toffline\n" +
		"????????????\tno permissions\n" +
		"\n"
	ids := ParseDevices(output)
	if len(ids) != 2 || ids[0] != "192.168.1.40:5555" || ids[1] != "emulator-5554" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestParseDevicesSkipsDaemonBanner(t *testing.T) {
	testlog.Start(t)

	output := "* daemon not running; starting now at tcp:5037\n" +
		"* daemon started successfully\n" +
		"List of devices attached\n" +
		"ABC123\tdevice\n"
	ids := ParseDevices(output)
	if len(ids) != 1 || ids[0] != "ABC123" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestFirstDeviceEmptyBench(t *testing.T) {
	testlog.Start(t)

	if _, err := FirstDevice("List of devices attached\n\n"); !errors.Is(err, ErrNoDevices) {
		t.Fatalf("expected ErrNoDevices, got %v", err)
	}

	id, err := FirstDevice("List of devices attached\nXYZ77\tdevice\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "XYZ77" {
		t.Fatalf("unexpected first device %q", id)
	}
}
