package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/dutlab/dutctl/internal/adb"
	"github.com/dutlab/dutctl/internal/agent"
	"github.com/dutlab/dutctl/internal/auth"
	"github.com/dutlab/dutctl/internal/cmdexec"
	"github.com/dutlab/dutctl/internal/config"
	"github.com/dutlab/dutctl/internal/console"
	"github.com/dutlab/dutctl/internal/device"
	"github.com/dutlab/dutctl/internal/link"
	"github.com/dutlab/dutctl/internal/logging"
	"github.com/dutlab/dutctl/internal/results"
	"github.com/dutlab/dutctl/internal/telemetry"
	"github.com/dutlab/dutctl/internal/vision"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dutagentd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "lab.toml", "path to the lab config")
	addr := flag.String("addr", "", "listen address override")
	name := flag.String("name", "", "agent name override")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := config.LoadLabConfig(*configPath)
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.Agent.Addr = *addr
	}
	if *name != "" {
		cfg.Name = *name
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, closeSink, err := cfg.BenchSink()
	if err != nil {
		return err
	}
	defer closeSink()

	bridge := cfg.BenchBridge()
	exec := cmdexec.New(cmdexec.Config{
		Backend: cfg.BenchBackend(),
		Sink:    sink,
	})

	ws, err := results.CreateRun(filepath.Join(cfg.ResultRoot, cfg.Name))
	if err != nil {
		return err
	}
	log.Info().Str("dir", ws.Dir()).Msg("run folder created")

	ocr := vision.NewTesseractExtractor(cfg.OCR.Languages...)
	defer ocr.Close()

	a := agent.New(cfg.Name, cfg.Agent.Addr, cfg.Agent.CorsOrigins)
	a.Bridge = bridge
	a.Exec = exec
	if cfg.Agent.Token != "" {
		a.Auth = auth.StaticToken{Token: cfg.Agent.Token}
	}

	closeConsoles, err := registerDevices(a.Fleet, cfg, bridge, exec, ws, ocr, sink)
	if err != nil {
		return err
	}
	defer closeConsoles()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Serve() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		return nil
	}
}

// registerDevices builds one session per configured device and
// registers it with the fleet. Serial consoles are opened here;
// the returned closer tears them down.
func registerDevices(
	fleet *agent.Fleet,
	cfg config.LabConfig,
	bridge adb.Bridge,
	exec *cmdexec.Executor,
	ws *results.Workspace,
	ocr vision.Extractor,
	sink telemetry.Sink,
) (func(), error) {
	var consoles []*console.Console
	closeAll := func() {
		for _, c := range consoles {
			_ = c.Close()
		}
	}

	for _, entry := range cfg.Devices {
		mode, err := link.ParseMode(entry.Mode)
		if err != nil {
			closeAll()
			return nil, err
		}

		dev := &link.Device{ID: entry.ID, Mode: mode}
		if mode == link.ModeSerial {
			port, err := console.OpenPort(entry.Console)
			if err != nil {
				closeAll()
				return nil, err
			}
			cons := console.New(port)
			consoles = append(consoles, cons)
			dev.Console = cons
		}

		session, err := device.NewSession(device.Config{
			Device:    dev,
			Exec:      exec,
			Bridge:    bridge,
			Workspace: ws,
			OCR:       ocr,
			Sink:      sink,
			IRRemote:  entry.IRRemote,
		})
		if err != nil {
			closeAll()
			return nil, err
		}
		if err := fleet.Register(session); err != nil {
			closeAll()
			return nil, err
		}
		log.Info().Str("device", entry.ID).Str("mode", string(mode)).Msg("device registered")
	}
	return closeAll, nil
}
