package vision

import (
	"fmt"
	"image"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// TesseractExtractor reads text with a shared tesseract client. The
// client is created lazily so binaries that never OCR pay nothing, and
// guarded by a mutex because the underlying API is not reentrant.
type TesseractExtractor struct {
	languages []string

	mu     sync.Mutex
	client *gosseract.Client
}

func NewTesseractExtractor(languages ...string) *TesseractExtractor {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}
	return &TesseractExtractor{languages: languages}
}

func (e *TesseractExtractor) ExtractText(img image.Image, region image.Rectangle) (string, error) {
	crop := Crop(img, region)
	if crop.Bounds().Empty() {
		return "", fmt.Errorf("vision: region %v outside screenshot", region)
	}
	data, err := EncodePNG(crop)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.ensureClient(); err != nil {
		return "", err
	}
	if err := e.client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("vision: ocr set image: %w", err)
	}
	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("vision: ocr: %w", err)
	}
	return text, nil
}

func (e *TesseractExtractor) ensureClient() error {
	if e.client != nil {
		return nil
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(e.languages...); err != nil {
		client.Close()
		return fmt.Errorf("vision: ocr language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return fmt.Errorf("vision: ocr page mode: %w", err)
	}
	e.client = client
	return nil
}

func (e *TesseractExtractor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}
