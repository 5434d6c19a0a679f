package device

import (
	"context"
	"errors"
	"testing"

	"github.com/dutlab/dutctl/internal/adb"
	"github.com/dutlab/dutctl/internal/cmdexec"
	"github.com/dutlab/dutctl/internal/testutil/testlog"
)

const devicesBench = `case "$*" in
  *devices*)
    echo "List of devices attached"
    echo "192.168.1.40:5555	device"
    echo "USBDEV77	device"
    echo "????????	no permissions"
    ;;
  *) echo done ;;
esac`

func TestListEnumeratesAttachedDevices(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	bridge := writeFakeADB(t, dir, devicesBench)
	exec := cmdexec.New(cmdexec.Config{})

	ids, err := List(context.Background(), exec, bridge)
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(ids) != 2 || ids[0] != "192.168.1.40:5555" || ids[1] != "USBDEV77" {
		t.Fatalf("unexpected device list %v", ids)
	}
}

func TestSelectPicksFirstDevice(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	bridge := writeFakeADB(t, dir, devicesBench)
	exec := cmdexec.New(cmdexec.Config{})

	id, err := Select(context.Background(), exec, bridge)
	if err != nil {
		t.Fatalf("unexpected select error: %v", err)
	}
	if id != "192.168.1.40:5555" {
		t.Fatalf("unexpected device %q", id)
	}
}

func TestSelectEmptyBenchFails(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	bridge := writeFakeADB(t, dir, `echo "List of devices attached"`)
	exec := cmdexec.New(cmdexec.Config{})

	_, err := Select(context.Background(), exec, bridge)
	if !errors.Is(err, adb.ErrNoDevices) {
		t.Fatalf("expected ErrNoDevices, got %v", err)
	}
}
