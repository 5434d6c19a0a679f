package main

import (
	"fmt"
	"image"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dutlab/dutctl/internal/device"
)

var (
	flagPresses  int
	flagDelay    time.Duration
	flagDuration time.Duration
	flagTimeout  time.Duration
	flagRetries  int
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List configured and attached devices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, exec, bridge, cleanup, err := openBridge()
		if err != nil {
			return err
		}
		defer cleanup()

		for _, entry := range cfg.Devices {
			line := entry.ID + "\t" + entry.Mode
			if entry.IRRemote != "" {
				line += "\tir:" + entry.IRRemote
			}
			fmt.Println(line)
		}

		ids, err := device.List(cmd.Context(), exec, bridge)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id + "\tattached")
		}
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe the device's reachability",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := openBench(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer b.close()

		state, err := b.session.Probe(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(state)
		return nil
	},
}

var reconnectCmd = &cobra.Command{
	Use:   "reconnect",
	Short: "Run the recovery ladder for the device",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := openBench(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer b.close()

		ok, err := b.session.Reconnect(cmd.Context())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("device did not come back")
		}
		fmt.Println("reconnected")
		return nil
	},
}

var keyCmd = &cobra.Command{
	Use:   "key <keycode>",
	Short: "Inject a key event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBench(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer b.close()
		return b.session.PressKey(cmd.Context(), args[0], flagPresses, flagDelay)
	},
}

var irCmd = &cobra.Command{
	Use:   "ir <key>",
	Short: "Fire the device's infrared remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBench(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer b.close()
		return b.session.PressIRKey(cmd.Context(), args[0], flagPresses, flagDelay)
	},
}

var tapCmd = &cobra.Command{
	Use:   "tap <x> <y>",
	Short: "Tap a screen coordinate",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		x, y, err := parsePoint(args[0], args[1])
		if err != nil {
			return err
		}
		b, err := openBench(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer b.close()
		return b.session.Tap(cmd.Context(), x, y)
	},
}

var dragCmd = &cobra.Command{
	Use:   "drag <x0> <y0> <x1> <y1>",
	Short: "Swipe between two coordinates",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		x0, y0, err := parsePoint(args[0], args[1])
		if err != nil {
			return err
		}
		x1, y1, err := parsePoint(args[2], args[3])
		if err != nil {
			return err
		}
		b, err := openBench(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer b.close()
		return b.session.Drag(cmd.Context(), image.Pt(x0, y0), image.Pt(x1, y1), flagDuration)
	},
}

var rebootCmd = &cobra.Command{
	Use:   "reboot",
	Short: "Reboot the device and wait for it to settle",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := openBench(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer b.close()
		return b.session.Reboot(cmd.Context())
	},
}

var rootShellCmd = &cobra.Command{
	Use:   "root",
	Short: "Restart adbd with root privileges",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := openBench(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer b.close()

		ok, err := b.session.Root(cmd.Context())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("device did not answer after adbd restart")
		}
		return nil
	},
}

var propertyCmd = &cobra.Command{
	Use:   "property <name>",
	Short: "Read an android system property",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBench(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer b.close()

		value, err := b.session.Property(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(value)
		return nil
	},
}

var execCmd = &cobra.Command{
	Use:   "exec <bridge subcommand...>",
	Short: "Forward a raw bridge subcommand to the device",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBench(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer b.close()

		out, err := b.session.Command(cmd.Context(), strings.Join(args, " "), flagTimeout, flagRetries)
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Capture the device screen into a run folder",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := openBench(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer b.close()

		path, err := b.session.ScreenshotToRun(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "Collect failure evidence from the device",
	RunE: func(cmd *cobra.Command, _ []string) error {
		b, err := openBench(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer b.close()
		return b.session.CaptureFailure(cmd.Context())
	},
}

func parsePoint(xs, ys string) (int, int, error) {
	x, err := strconv.Atoi(xs)
	if err != nil {
		return 0, 0, fmt.Errorf("bad coordinate %q", xs)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return 0, 0, fmt.Errorf("bad coordinate %q", ys)
	}
	return x, y, nil
}

func init() {
	keyCmd.Flags().IntVar(&flagPresses, "presses", 1, "number of presses")
	keyCmd.Flags().DurationVar(&flagDelay, "delay", device.DefaultKeyDelay, "delay after each press")
	irCmd.Flags().IntVar(&flagPresses, "presses", 1, "number of presses")
	irCmd.Flags().DurationVar(&flagDelay, "delay", device.DefaultIRDelay, "delay after each press")
	dragCmd.Flags().DurationVar(&flagDuration, "duration", 500*time.Millisecond, "swipe duration")
	execCmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "command timeout (0 for default)")
	execCmd.Flags().IntVar(&flagRetries, "retries", 0, "retry budget for unresponsive commands")

	rootCmd.AddCommand(
		devicesCmd,
		probeCmd,
		reconnectCmd,
		keyCmd,
		irCmd,
		tapCmd,
		dragCmd,
		rebootCmd,
		rootShellCmd,
		propertyCmd,
		execCmd,
		screenshotCmd,
		diagnosticsCmd,
	)
}
