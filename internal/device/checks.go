package device

import (
	"context"
	"fmt"
	"image"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dutlab/dutctl/internal/vision"
)

// captureForAnalysis takes a fresh screenshot into the run's image
// folder and decodes it for matching.
func (s *Session) captureForAnalysis(ctx context.Context) (image.Image, error) {
	path, err := s.ScreenshotToRun(ctx)
	if err != nil {
		return nil, err
	}
	return vision.LoadPNG(path)
}

// TapImage locates the template on screen and taps its match position.
// Not finding it is a verification failure, not a skip.
func (s *Session) TapImage(ctx context.Context, templatePath string) error {
	tpl, err := vision.LoadPNG(templatePath)
	if err != nil {
		return err
	}
	screen, err := s.captureForAnalysis(ctx)
	if err != nil {
		return err
	}

	m, err := s.matcher.Match(screen, tpl)
	if err != nil {
		return err
	}
	if !m.Found() {
		return fmt.Errorf("%w: %s not found on screen (score %.3f)",
			ErrVerification, filepath.Base(templatePath), m.Score)
	}
	return s.Tap(ctx, m.Location.X, m.Location.Y)
}

// MatchImage verifies that each template is (or is not, with
// expectPresent false) visible on the current screen.
func (s *Session) MatchImage(ctx context.Context, templatePaths []string, expectPresent bool) error {
	screen, err := s.captureForAnalysis(ctx)
	if err != nil {
		return err
	}

	for _, path := range templatePaths {
		tpl, err := vision.LoadPNG(path)
		if err != nil {
			return err
		}
		m, err := s.matcher.Match(screen, tpl)
		if err != nil {
			return err
		}
		if expectPresent && !m.Found() {
			return fmt.Errorf("%w: %s not found on screen (score %.3f)",
				ErrVerification, filepath.Base(path), m.Score)
		}
		if !expectPresent && m.Score >= vision.Tolerance {
			return fmt.Errorf("%w: %s unexpectedly on screen (score %.3f)",
				ErrVerification, filepath.Base(path), m.Score)
		}
	}
	return nil
}

// MatchText OCRs each region and verifies the paired pattern against
// the extracted text.
func (s *Session) MatchText(ctx context.Context, patterns map[string]image.Rectangle, expectPresent bool) error {
	if s.ocr == nil {
		return fmt.Errorf("%w: no ocr extractor configured", ErrNotInitialized)
	}
	screen, err := s.captureForAnalysis(ctx)
	if err != nil {
		return err
	}

	for pattern, region := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("device: bad text pattern %q: %w", pattern, err)
		}
		text, err := s.ocr.ExtractText(screen, region)
		if err != nil {
			return err
		}
		text = strings.TrimSpace(text)

		matched := re.MatchString(text)
		if expectPresent && !matched {
			return fmt.Errorf("%w: %q not in extracted text %q", ErrVerification, pattern, text)
		}
		if !expectPresent && matched {
			return fmt.Errorf("%w: %q unexpectedly in extracted text %q", ErrVerification, pattern, text)
		}
	}
	return nil
}

// ExtractTexts OCRs each region of the current screen in order.
func (s *Session) ExtractTexts(ctx context.Context, regions []image.Rectangle) ([]string, error) {
	if s.ocr == nil {
		return nil, fmt.Errorf("%w: no ocr extractor configured", ErrNotInitialized)
	}
	screen, err := s.captureForAnalysis(ctx)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(regions))
	for _, region := range regions {
		text, err := s.ocr.ExtractText(screen, region)
		if err != nil {
			return nil, err
		}
		texts = append(texts, strings.TrimSpace(text))
	}
	return texts, nil
}
