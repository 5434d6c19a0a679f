package device

import (
	"context"
	"fmt"
	"time"

	"github.com/dutlab/dutctl/internal/adb"
	"github.com/dutlab/dutctl/internal/cmdexec"
)

const discoveryTimeout = 10 * time.Second

// List enumerates attached device serials through the bridge.
func List(ctx context.Context, exec *cmdexec.Executor, bridge adb.Bridge) ([]string, error) {
	res, err := exec.Run(ctx, cmdexec.Shell(bridge.Devices(), discoveryTimeout, 0))
	if err != nil {
		return nil, err
	}
	if res.Absent() {
		return nil, fmt.Errorf("%w: bridge did not answer", adb.ErrNoDevices)
	}
	return adb.ParseDevices(res.Output), nil
}

// Select picks the first attached device, for benches that run with a
// single cabled unit.
func Select(ctx context.Context, exec *cmdexec.Executor, bridge adb.Bridge) (string, error) {
	res, err := exec.Run(ctx, cmdexec.Shell(bridge.Devices(), discoveryTimeout, 0))
	if err != nil {
		return "", err
	}
	if res.Absent() {
		return "", fmt.Errorf("%w: bridge did not answer", adb.ErrNoDevices)
	}
	return adb.FirstDevice(res.Output)
}
