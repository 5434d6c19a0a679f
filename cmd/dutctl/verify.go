package main

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var (
	flagAbsent  bool
	flagRegions []string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify what is on the device screen",
}

var verifyImageCmd = &cobra.Command{
	Use:   "image <template.png>...",
	Short: "Check templates against the current screen",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBench(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer b.close()

		if err := b.session.MatchImage(cmd.Context(), args, !flagAbsent); err != nil {
			return err
		}
		fmt.Println("verified")
		return nil
	},
}

var verifyTextCmd = &cobra.Command{
	Use:   "text <pattern>...",
	Short: "Check text patterns against screen regions",
	Long: "Each pattern pairs with the region at the same position; with a " +
		"single region every pattern reads from it. Regions are x0,y0,x1,y1.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		regions, err := parseRegions(flagRegions)
		if err != nil {
			return err
		}
		patterns, err := pairPatterns(args, regions)
		if err != nil {
			return err
		}

		b, err := openBench(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer b.close()

		if err := b.session.MatchText(cmd.Context(), patterns, !flagAbsent); err != nil {
			return err
		}
		fmt.Println("verified")
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Read text out of screen regions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		regions, err := parseRegions(flagRegions)
		if err != nil {
			return err
		}
		if len(regions) == 0 {
			return fmt.Errorf("at least one --region is required")
		}

		b, err := openBench(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer b.close()

		texts, err := b.session.ExtractTexts(cmd.Context(), regions)
		if err != nil {
			return err
		}
		for _, text := range texts {
			fmt.Println(text)
		}
		return nil
	},
}

var tapImageCmd = &cobra.Command{
	Use:   "tap-image <template.png>",
	Short: "Find a template on screen and tap it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBench(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer b.close()
		return b.session.TapImage(cmd.Context(), args[0])
	},
}

func parseRegions(specs []string) ([]image.Rectangle, error) {
	regions := make([]image.Rectangle, 0, len(specs))
	for _, spec := range specs {
		parts := strings.Split(spec, ",")
		if len(parts) != 4 {
			return nil, fmt.Errorf("bad region %q, want x0,y0,x1,y1", spec)
		}
		coords := make([]int, 4)
		for i, part := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return nil, fmt.Errorf("bad region %q: %v", spec, err)
			}
			coords[i] = v
		}
		regions = append(regions, image.Rect(coords[0], coords[1], coords[2], coords[3]))
	}
	return regions, nil
}

func pairPatterns(patterns []string, regions []image.Rectangle) (map[string]image.Rectangle, error) {
	switch {
	case len(regions) == len(patterns):
	case len(regions) == 1:
		expanded := make([]image.Rectangle, len(patterns))
		for i := range expanded {
			expanded[i] = regions[0]
		}
		regions = expanded
	default:
		return nil, fmt.Errorf("%d patterns with %d regions", len(patterns), len(regions))
	}

	paired := make(map[string]image.Rectangle, len(patterns))
	for i, pattern := range patterns {
		paired[pattern] = regions[i]
	}
	return paired, nil
}

func init() {
	verifyImageCmd.Flags().BoolVar(&flagAbsent, "absent", false, "expect the templates to be absent")
	verifyTextCmd.Flags().BoolVar(&flagAbsent, "absent", false, "expect the patterns to be absent")
	verifyTextCmd.Flags().StringArrayVar(&flagRegions, "region", nil, "screen region x0,y0,x1,y1")
	extractCmd.Flags().StringArrayVar(&flagRegions, "region", nil, "screen region x0,y0,x1,y1")

	verifyCmd.AddCommand(verifyImageCmd, verifyTextCmd)
	rootCmd.AddCommand(verifyCmd, extractCmd, tapImageCmd)
}
