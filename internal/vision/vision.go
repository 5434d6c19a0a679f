// Package vision owns on-screen verification: template matching against
// screenshots and OCR text extraction from screen regions.
package vision

import (
	"errors"
	"image"
)

// Tolerance is the correlation score a template match must exceed to
// count as found. Calibrated against the device farm's panel set; do
// not lower it to make a flaky assertion pass.
const Tolerance = 0.92

var (
	ErrNoMatch     = errors.New("vision: no match above tolerance")
	ErrBadTemplate = errors.New("vision: unusable template")
)

// Match is the best placement of a template within a source image.
// Location is the top-left corner of the matched window.
type Match struct {
	Score    float64
	Location image.Point
}

// Found reports whether the score clears Tolerance.
func (m Match) Found() bool {
	return m.Score > Tolerance
}

// Matcher locates a template image within a source image.
type Matcher interface {
	Match(src, tpl image.Image) (Match, error)
}

// Extractor reads text out of a region of a screenshot.
type Extractor interface {
	ExtractText(img image.Image, region image.Rectangle) (string, error)
}
