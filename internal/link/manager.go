package link

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dutlab/dutctl/internal/adb"
	"github.com/dutlab/dutctl/internal/cmdexec"
	"github.com/dutlab/dutctl/internal/console"
	"github.com/dutlab/dutctl/internal/observability"
	"github.com/dutlab/dutctl/internal/telemetry"
)

var (
	ErrDeviceUnresponsive = errors.New("link: device unresponsive")
	ErrNoConsole          = errors.New("link: serial device has no console")
)

const (
	DefaultProbeTimeout  = 10 * time.Second
	DefaultActionTimeout = 10 * time.Second
	DefaultPromptTimeout = 10 * time.Second

	// Retry cycles after the initial reconnect attempt fails.
	extraAttempts = 3
)

// Config wires a Manager. Zero timeouts fall back to the defaults.
type Config struct {
	Exec   *cmdexec.Executor
	Bridge adb.Bridge
	Sink   telemetry.Sink

	ProbeTimeout  time.Duration
	ActionTimeout time.Duration
	PromptTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Exec == nil {
		c.Exec = cmdexec.New(cmdexec.Config{})
	}
	if c.Sink == nil {
		c.Sink = telemetry.NopSink{}
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = DefaultActionTimeout
	}
	if c.PromptTimeout <= 0 {
		c.PromptTimeout = DefaultPromptTimeout
	}
	return c
}

// Manager owns device reachability: probing and the mode-specific
// reconnect ladders. It holds no per-device state; callers serialize
// use per device.
type Manager struct {
	cfg Config
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg.withDefaults()}
}

// Probe runs one transport round trip and classifies the device. The
// probe gets no retry budget: a hung bridge is already an answer.
func (m *Manager) Probe(ctx context.Context, dev *Device) (State, error) {
	res, err := m.cfg.Exec.Run(ctx, cmdexec.Shell(m.cfg.Bridge.Probe(dev.ID), m.cfg.ProbeTimeout, 0))
	if err != nil {
		return StateUnreachable, err
	}

	state := StateReachable
	if res.Absent() || adb.HasFailureMarker(res.Output) {
		state = StateUnreachable
	}

	observability.RecordProbe(dev.ID, string(state))
	m.cfg.Sink.Emit(telemetry.Event{
		Time:   time.Now(),
		Kind:   telemetry.KindProbe,
		Device: dev.ID,
		Status: string(state),
	})
	log.Debug().Str("device", dev.ID).Str("state", string(state)).Msg("probe")
	return state, nil
}

// Reconnect drives the recovery ladder for the device's attachment mode
// and reports whether a probe answered afterwards. false means the
// bounded attempts ran out. A non-nil error is fatal: the serial
// console did not respond, the device has no console, or the executor
// aborted.
//
// The first attempt runs the full mode-specific action. Serial devices
// get one console-driven DHCP renewal there; the retry cycles fall back
// to network-level reconnects, since a renewal that did not take will
// not take on a tight loop either.
func (m *Manager) Reconnect(ctx context.Context, dev *Device) (bool, error) {
	if err := dev.Validate(); err != nil {
		return false, err
	}
	log.Info().Str("device", dev.ID).Str("mode", string(dev.Mode)).Msg("reconnecting device")

	if err := m.initialAction(ctx, dev); err != nil {
		m.finish(dev, false)
		return false, err
	}
	state, err := m.Probe(ctx, dev)
	if err != nil {
		m.finish(dev, false)
		return false, err
	}
	m.emitAttempt(dev, 0, state)
	if state == StateReachable {
		m.finish(dev, true)
		return true, nil
	}

	for attempt := 1; attempt <= extraAttempts; attempt++ {
		if err := m.retryAction(ctx, dev); err != nil {
			m.finish(dev, false)
			return false, err
		}
		state, err := m.Probe(ctx, dev)
		if err != nil {
			m.finish(dev, false)
			return false, err
		}
		m.emitAttempt(dev, attempt, state)
		if state == StateReachable {
			m.finish(dev, true)
			return true, nil
		}
	}

	m.finish(dev, false)
	return false, nil
}

func (m *Manager) initialAction(ctx context.Context, dev *Device) error {
	switch dev.Mode {
	case ModeSerial:
		if err := m.serialRecover(ctx, dev); err != nil {
			return err
		}
		return m.runAction(ctx, m.cfg.Bridge.Connect(dev.ID))
	case ModeUSB:
		return m.runAction(ctx, m.cfg.Bridge.USB(dev.ID))
	default:
		return m.runAction(ctx, m.cfg.Bridge.Connect(dev.ID))
	}
}

func (m *Manager) retryAction(ctx context.Context, dev *Device) error {
	if dev.Mode == ModeUSB {
		return m.runAction(ctx, m.cfg.Bridge.USB(dev.ID))
	}
	return m.runAction(ctx, m.cfg.Bridge.Connect(dev.ID))
}

// runAction dispatches a reconnect command. Its outcome is advisory;
// the probe afterwards decides. Only executor-level aborts propagate.
func (m *Manager) runAction(ctx context.Context, line string) error {
	_, err := m.cfg.Exec.Run(ctx, cmdexec.Shell(line, m.cfg.ActionTimeout, 0))
	return err
}

// serialRecover escalates to a root shell on the console and renews the
// device's DHCP lease on the wired interface. Console silence past the
// prompt deadline means the device is gone for good.
func (m *Manager) serialRecover(ctx context.Context, dev *Device) error {
	if dev.Console == nil {
		return fmt.Errorf("%w: %s", ErrNoConsole, dev.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, line := range []string{"", "", "su"} {
		if err := dev.Console.Sendline(line); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceUnresponsive, err)
		}
	}
	if _, err := dev.Console.Expect(console.PromptPattern, m.cfg.PromptTimeout); err != nil {
		return fmt.Errorf("%w: no shell prompt: %v", ErrDeviceUnresponsive, err)
	}

	for _, line := range []string{"", "", "netcfg eth0 dhcp"} {
		if err := dev.Console.Sendline(line); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceUnresponsive, err)
		}
	}
	if _, err := dev.Console.Expect(console.PromptPattern, m.cfg.PromptTimeout); err != nil {
		return fmt.Errorf("%w: dhcp renewal: %v", ErrDeviceUnresponsive, err)
	}

	log.Debug().Str("device", dev.ID).Msg("serial dhcp renewal complete")
	return nil
}

func (m *Manager) emitAttempt(dev *Device, ordinal int, state State) {
	m.cfg.Sink.Emit(telemetry.Event{
		Time:    time.Now(),
		Kind:    telemetry.KindReconnect,
		Device:  dev.ID,
		Status:  string(state),
		Attempt: ordinal,
		Detail:  string(dev.Mode),
	})
}

func (m *Manager) finish(dev *Device, success bool) {
	observability.RecordReconnect(dev.ID, string(dev.Mode), success)
	if success {
		log.Info().Str("device", dev.ID).Msg("device reconnected")
		return
	}
	log.Warn().Str("device", dev.ID).Str("mode", string(dev.Mode)).Msg("device did not come back")
}
