package device

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dutlab/dutctl/internal/adb"
	"github.com/dutlab/dutctl/internal/cmdexec"
	"github.com/dutlab/dutctl/internal/console"
	"github.com/dutlab/dutctl/internal/link"
	"github.com/dutlab/dutctl/internal/results"
	"github.com/dutlab/dutctl/internal/telemetry"
	"github.com/dutlab/dutctl/internal/vision"
)

var (
	ErrNotInitialized = errors.New("device: not initialized")
	ErrVerification   = errors.New("device: screen verification failed")
)

const (
	DefaultKeyDelay = 500 * time.Millisecond
	DefaultIRDelay  = time.Second

	keyTimeout        = 10 * time.Second
	irTimeout         = 10 * time.Second
	tapTimeout        = 5 * time.Second
	dragTimeout       = 5 * time.Second
	propertyTimeout   = 10 * time.Second
	commandTimeout    = 30 * time.Second
	rebootTimeout     = 5 * time.Second
	screenshotTimeout = 90 * time.Second
	pullTimeout       = 60 * time.Second
	bugreportTimeout  = 240 * time.Second

	anrDir = "/data/anr/"

	// Boot can take up to a minute; nothing answers probes before that.
	rebootSettle = 60 * time.Second
)

// Config wires a Session. Device is required; everything else gets a
// default.
type Config struct {
	Device    *link.Device
	Exec      *cmdexec.Executor
	Bridge    adb.Bridge
	Manager   *link.Manager
	Workspace *results.Workspace
	Matcher   vision.Matcher
	OCR       vision.Extractor
	Sink      telemetry.Sink

	// IRRemote names the LIRC remote paired with this device, when one
	// is cabled up.
	IRRemote string

	// PromptTimeout bounds console prompt waits during serial reboot.
	PromptTimeout time.Duration

	// Sleep is the settle/delay hook; tests substitute a recorder.
	Sleep func(time.Duration)
}

// Session drives one device under test. Operations are not safe for
// concurrent use; each device gets a single driving goroutine.
type Session struct {
	dev     *link.Device
	exec    *cmdexec.Executor
	bridge  adb.Bridge
	mgr     *link.Manager
	ws      *results.Workspace
	matcher vision.Matcher
	ocr     vision.Extractor
	sink    telemetry.Sink

	irRemote   string
	promptWait time.Duration
	sleep      func(time.Duration)
}

func NewSession(cfg Config) (*Session, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("%w: device handle is required", ErrNotInitialized)
	}
	if err := cfg.Device.Validate(); err != nil {
		return nil, err
	}

	if cfg.Exec == nil {
		cfg.Exec = cmdexec.New(cmdexec.Config{Sink: cfg.Sink})
	}
	if cfg.Manager == nil {
		cfg.Manager = link.NewManager(link.Config{
			Exec:   cfg.Exec,
			Bridge: cfg.Bridge,
			Sink:   cfg.Sink,
		})
	}
	if cfg.Matcher == nil {
		cfg.Matcher = vision.TemplateMatcher{}
	}
	if cfg.Sink == nil {
		cfg.Sink = telemetry.NopSink{}
	}
	if cfg.PromptTimeout <= 0 {
		cfg.PromptTimeout = link.DefaultPromptTimeout
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}

	return &Session{
		dev:        cfg.Device,
		exec:       cfg.Exec,
		bridge:     cfg.Bridge,
		mgr:        cfg.Manager,
		ws:         cfg.Workspace,
		matcher:    cfg.Matcher,
		ocr:        cfg.OCR,
		sink:       cfg.Sink,
		irRemote:   cfg.IRRemote,
		promptWait: cfg.PromptTimeout,
		sleep:      cfg.Sleep,
	}, nil
}

func (s *Session) Device() *link.Device { return s.dev }

// IRRemote names the LIRC remote paired with this device, empty when
// none is cabled.
func (s *Session) IRRemote() string { return s.irRemote }

// Probe reports the device's current reachability.
func (s *Session) Probe(ctx context.Context) (link.State, error) {
	return s.mgr.Probe(ctx, s.dev)
}

// Reconnect runs the full recovery ladder for this device.
func (s *Session) Reconnect(ctx context.Context) (bool, error) {
	return s.mgr.Reconnect(ctx, s.dev)
}

// ensureReachable is the gate in front of control operations: one
// probe, then one full recovery attempt if the probe failed. A false
// verdict with nil error means the caller skips its operation silently.
func (s *Session) ensureReachable(ctx context.Context) (bool, error) {
	state, err := s.mgr.Probe(ctx, s.dev)
	if err != nil {
		return false, err
	}
	if state == link.StateReachable {
		return true, nil
	}

	ok, err := s.mgr.Reconnect(ctx, s.dev)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Warn().Str("device", s.dev.ID).Msg("device unreachable, operation skipped")
		s.sink.Emit(telemetry.Event{
			Time:   time.Now(),
			Kind:   telemetry.KindSession,
			Device: s.dev.ID,
			Status: "skipped",
		})
	}
	return ok, nil
}

// sendChecked runs one gated bridge command. When the command's own
// output carries a failure marker (or no result came back at all), the
// probe-and-send cycle repeats exactly once more, then the op gives up
// silently. The bool reports whether the command actually ran.
func (s *Session) sendChecked(ctx context.Context, line string, timeout time.Duration, retries int) (cmdexec.Result, bool, error) {
	ok, err := s.ensureReachable(ctx)
	if err != nil || !ok {
		return cmdexec.Result{}, false, err
	}

	res, err := s.exec.Run(ctx, cmdexec.Shell(line, timeout, retries))
	if err != nil {
		return res, false, err
	}
	if res.Absent() || adb.HasFailureMarker(res.Output) {
		ok, err := s.ensureReachable(ctx)
		if err != nil {
			return res, false, err
		}
		if ok {
			res, err = s.exec.Run(ctx, cmdexec.Shell(line, timeout, retries))
			if err != nil {
				return res, false, err
			}
		}
	}
	return res, true, nil
}

// PressKey injects an android key event, presses times with delay after
// each press.
func (s *Session) PressKey(ctx context.Context, key string, presses int, delay time.Duration) error {
	if presses < 1 {
		presses = 1
	}
	line := s.bridge.KeyEvent(s.dev.ID, key)
	for i := 0; i < presses; i++ {
		_, executed, err := s.sendChecked(ctx, line, keyTimeout, 0)
		if err != nil {
			return err
		}
		if executed {
			log.Debug().Str("device", s.dev.ID).Str("key", key).Msg("key press")
			s.sleep(delay)
		}
	}
	return nil
}

// PressIRKey fires the LIRC remote paired with the device. IR goes out
// of the bench host, not the bridge, so there is no reachability gate.
func (s *Session) PressIRKey(ctx context.Context, key string, presses int, delay time.Duration) error {
	if s.irRemote == "" {
		return fmt.Errorf("%w: no IR remote associated with %s", ErrNotInitialized, s.dev.ID)
	}
	if presses < 1 {
		presses = 1
	}
	line := fmt.Sprintf("irsend SEND_ONCE %s %s", s.irRemote, key)
	for i := 0; i < presses; i++ {
		if _, err := s.exec.Run(ctx, cmdexec.Shell(line, irTimeout, 0)); err != nil {
			return err
		}
		s.sleep(delay)
	}
	return nil
}

// Tap touches one screen coordinate.
func (s *Session) Tap(ctx context.Context, x, y int) error {
	_, _, err := s.sendChecked(ctx, s.bridge.Tap(s.dev.ID, x, y), tapTimeout, 0)
	return err
}

// Drag swipes from one point to another over duration. Equal points
// make it a long press.
func (s *Session) Drag(ctx context.Context, from, to image.Point, duration time.Duration) error {
	line := s.bridge.Swipe(s.dev.ID, from.X, from.Y, to.X, to.Y, int(duration.Milliseconds()))
	_, _, err := s.sendChecked(ctx, line, dragTimeout, 0)
	return err
}

// Property reads one android system property. Empty when the device was
// skipped.
func (s *Session) Property(ctx context.Context, name string) (string, error) {
	res, executed, err := s.sendChecked(ctx, s.bridge.GetProp(s.dev.ID, name), propertyTimeout, 0)
	if err != nil || !executed {
		return "", err
	}
	return trimOutput(res.Output), nil
}

// Command forwards a raw bridge subcommand, gated like other control
// operations. A non-positive timeout falls back to the default.
func (s *Session) Command(ctx context.Context, rest string, timeout time.Duration, retries int) (string, error) {
	if timeout <= 0 {
		timeout = commandTimeout
	}
	res, executed, err := s.sendChecked(ctx, s.bridge.Command(s.dev.ID, rest), timeout, retries)
	if err != nil || !executed {
		return "", err
	}
	return res.Output, nil
}

// Root restarts adbd with root privileges and reports whether the
// device answered afterwards. Needed on userdebug builds before
// anything touches protected paths.
func (s *Session) Root(ctx context.Context) (bool, error) {
	if _, err := s.exec.Run(ctx, cmdexec.Shell(s.bridge.Root(s.dev.ID), propertyTimeout, 0)); err != nil {
		return false, err
	}
	return s.mgr.Reconnect(ctx, s.dev)
}

// Reboot restarts the device, through the console for serial devices
// and through the bridge otherwise, then blocks for the fixed settle
// window. The settle is unconditional: reboot is used exactly when the
// device's state is unknown, so there is nothing trustworthy to probe.
func (s *Session) Reboot(ctx context.Context) error {
	log.Info().Str("device", s.dev.ID).Msg("rebooting device")

	if s.dev.Mode == link.ModeSerial {
		if err := s.consoleReboot(ctx); err != nil {
			return err
		}
	} else {
		if _, err := s.exec.Run(ctx, cmdexec.Shell(s.bridge.Reboot(s.dev.ID), rebootTimeout, 0)); err != nil {
			return err
		}
	}

	s.sleep(rebootSettle)
	return nil
}

func (s *Session) consoleReboot(ctx context.Context) error {
	c := s.dev.Console
	if c == nil {
		return fmt.Errorf("%w: %s", link.ErrNoConsole, s.dev.ID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, line := range []string{"", "", "su"} {
		if err := c.Sendline(line); err != nil {
			return fmt.Errorf("%w: %v", link.ErrDeviceUnresponsive, err)
		}
	}
	if _, err := c.Expect(console.PromptPattern, s.promptWait); err != nil {
		return fmt.Errorf("%w: no shell prompt: %v", link.ErrDeviceUnresponsive, err)
	}

	for _, line := range []string{"", "", "reboot"} {
		if err := c.Sendline(line); err != nil {
			return fmt.Errorf("%w: %v", link.ErrDeviceUnresponsive, err)
		}
	}
	if _, err := c.Expect(console.RestartPattern, s.promptWait); err != nil {
		return fmt.Errorf("%w: no restart banner: %v", link.ErrDeviceUnresponsive, err)
	}
	return nil
}

// Screenshot captures the framebuffer into dir under name (extension
// added here) and returns the host-side path. The path comes back even
// when the device was skipped, so callers can log the intended target.
func (s *Session) Screenshot(ctx context.Context, name, dir string) (string, error) {
	path := filepath.Join(dir, name+".png")
	res, executed, err := s.sendChecked(ctx, s.bridge.ScreencapTo(s.dev.ID, path), screenshotTimeout, 0)
	if err != nil {
		return path, err
	}
	if executed {
		log.Debug().Str("device", s.dev.ID).Str("path", path).Str("screencap", trimOutput(res.Output)).Msg("screenshot")
	}
	return path, nil
}

// ScreenshotToRun captures into the run's image folder under the
// conventional timestamped name.
func (s *Session) ScreenshotToRun(ctx context.Context) (string, error) {
	if s.ws == nil {
		return "", fmt.Errorf("%w: no results workspace configured", ErrNotInitialized)
	}
	dir, err := s.ws.ImageDir()
	if err != nil {
		return "", err
	}
	return s.Screenshot(ctx, results.ImageName(time.Now()), dir)
}

// CaptureFailure collects post-mortem evidence into the run's failure
// folder: ANR traces, a screenshot and a full bugreport. Skipped
// silently when the device cannot be brought back.
func (s *Session) CaptureFailure(ctx context.Context) error {
	if s.ws == nil {
		return fmt.Errorf("%w: no results workspace configured", ErrNotInitialized)
	}
	dir, err := s.ws.FailureDir()
	if err != nil {
		return err
	}

	ok, err := s.ensureReachable(ctx)
	if err != nil || !ok {
		return err
	}

	if _, err := s.exec.Run(ctx, cmdexec.Shell(s.bridge.Pull(s.dev.ID, anrDir, dir), pullTimeout, 0)); err != nil {
		return err
	}
	if _, err := s.Screenshot(ctx, results.FailureImageName(time.Now()), dir); err != nil {
		return err
	}
	report := filepath.Join(dir, "bugreport.txt")
	if _, err := s.exec.Run(ctx, cmdexec.Shell(s.bridge.BugreportTo(s.dev.ID, report), bugreportTimeout, 0)); err != nil {
		return err
	}

	log.Info().Str("device", s.dev.ID).Str("dir", dir).Msg("failure evidence collected")
	return nil
}

// LogExecution appends one line to the run's execution log. A session
// without a workspace logs to the process log only.
func (s *Session) LogExecution(message string) {
	if message == "" {
		return
	}
	log.Info().Str("device", s.dev.ID).Msg(message)
	if s.ws == nil {
		return
	}
	if err := s.ws.Log(message); err != nil {
		log.Warn().Err(err).Msg("execution log append failed")
	}
}

func trimOutput(out string) string {
	return strings.TrimRight(out, " \t\r\n")
}
