package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dutlab/dutctl/internal/logging"
)

var (
	flagConfig string
	flagDevice string
)

var rootCmd = &cobra.Command{
	Use:   "dutctl",
	Short: "Drive android devices on a test bench",
	Long: "dutctl talks to the devices cabled to a bench: probing and recovering " +
		"their links, injecting input, capturing screens and collecting failure " +
		"evidence. Device inventory and bridge settings come from the lab config.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		logging.ConfigureRuntime()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "lab.toml", "path to the lab config")
	rootCmd.PersistentFlags().StringVarP(&flagDevice, "device", "d", "", "device id (defaults to the only configured device)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "dutctl: %v\n", err)
		os.Exit(1)
	}
}
