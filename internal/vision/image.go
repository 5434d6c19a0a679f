package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
)

// LoadPNG decodes one screenshot from disk.
func LoadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vision: open %s: %w", path, err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("vision: decode %s: %w", path, err)
	}
	return img, nil
}

// EncodePNG renders an image to PNG bytes, the format the OCR engine
// consumes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("vision: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Crop returns the part of img inside region. Regions outside the
// image bounds are clipped; a fully disjoint region yields an empty
// image.
func Crop(img image.Image, region image.Rectangle) image.Image {
	b := region.Intersect(img.Bounds())
	if b.Empty() {
		return image.NewRGBA(image.Rectangle{})
	}

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(b)
	}

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
