package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dutlab/dutctl/internal/adb"
	"github.com/dutlab/dutctl/internal/cmdexec"
	"github.com/dutlab/dutctl/internal/config"
	"github.com/dutlab/dutctl/internal/console"
	"github.com/dutlab/dutctl/internal/device"
	"github.com/dutlab/dutctl/internal/link"
	"github.com/dutlab/dutctl/internal/results"
	"github.com/dutlab/dutctl/internal/vision"
)

// bench is everything one CLI invocation needs: the loaded config, an
// executor against the configured backend, and a session for the
// selected device.
type bench struct {
	cfg     config.LabConfig
	exec    *cmdexec.Executor
	session *device.Session

	cleanups []func()
}

func (b *bench) close() {
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		b.cleanups[i]()
	}
}

// openBench loads the config and builds a session for the selected
// device. withRun also creates a results run folder so capture
// operations have somewhere to land.
func openBench(ctx context.Context, withRun bool) (*bench, error) {
	cfg, err := config.LoadLabConfig(flagConfig)
	if err != nil {
		return nil, err
	}

	b := &bench{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			b.close()
		}
	}()

	sink, closeSink, err := cfg.BenchSink()
	if err != nil {
		return nil, err
	}
	b.cleanups = append(b.cleanups, closeSink)

	bridge := cfg.BenchBridge()
	b.exec = cmdexec.New(cmdexec.Config{
		Backend: cfg.BenchBackend(),
		Sink:    sink,
	})

	entry, err := selectDevice(ctx, b, bridge)
	if err != nil {
		return nil, err
	}
	mode, err := link.ParseMode(entry.Mode)
	if err != nil {
		return nil, err
	}

	dev := &link.Device{ID: entry.ID, Mode: mode}
	if mode == link.ModeSerial {
		port, err := console.OpenPort(entry.Console)
		if err != nil {
			return nil, err
		}
		cons := console.New(port)
		b.cleanups = append(b.cleanups, func() { _ = cons.Close() })
		dev.Console = cons
	}

	var ws *results.Workspace
	if withRun {
		ws, err = results.CreateRun(filepath.Join(cfg.ResultRoot, cfg.Name))
		if err != nil {
			return nil, err
		}
		fmt.Println(ws.Dir())
	}

	ocr := vision.NewTesseractExtractor(cfg.OCR.Languages...)
	b.cleanups = append(b.cleanups, func() { _ = ocr.Close() })

	b.session, err = device.NewSession(device.Config{
		Device:    dev,
		Exec:      b.exec,
		Bridge:    bridge,
		Workspace: ws,
		OCR:       ocr,
		Sink:      sink,
		IRRemote:  entry.IRRemote,
	})
	if err != nil {
		return nil, err
	}
	ok = true
	return b, nil
}

// openBridge is the device-less variant for inventory commands: the
// loaded config plus an executor against the configured backend.
func openBridge() (config.LabConfig, *cmdexec.Executor, adb.Bridge, func(), error) {
	cfg, err := config.LoadLabConfig(flagConfig)
	if err != nil {
		return config.LabConfig{}, nil, adb.Bridge{}, nil, err
	}
	sink, closeSink, err := cfg.BenchSink()
	if err != nil {
		return config.LabConfig{}, nil, adb.Bridge{}, nil, err
	}
	exec := cmdexec.New(cmdexec.Config{Backend: cfg.BenchBackend(), Sink: sink})
	return cfg, exec, cfg.BenchBridge(), closeSink, nil
}

// selectDevice resolves --device against the config, falling back to
// the single configured device, then to the first attached serial.
func selectDevice(ctx context.Context, b *bench, bridge adb.Bridge) (config.DeviceConfig, error) {
	if flagDevice != "" {
		return b.cfg.Device(flagDevice)
	}
	switch len(b.cfg.Devices) {
	case 1:
		return b.cfg.Devices[0], nil
	case 0:
		id, err := device.Select(ctx, b.exec, bridge)
		if err != nil {
			return config.DeviceConfig{}, err
		}
		mode := "usb"
		if strings.Contains(id, ":") {
			mode = "network"
		}
		return config.DeviceConfig{ID: id, Mode: mode}, nil
	default:
		return config.DeviceConfig{}, fmt.Errorf("multiple devices configured, pass --device")
	}
}
