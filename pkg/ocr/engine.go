// Package ocr recognizes text in harvested images by running a battery
// of image variants through trained engines and picking a consensus
// reading.
package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/otiai10/gosseract/v2"
)

// Word is one recognized token with the engine's confidence in it.
type Word struct {
	Text       string
	Confidence float64
}

// Engine recognizes words in a single image. Implementations must be
// safe for repeated sequential use; the worker serializes calls per
// slot.
type Engine interface {
	Recognize(img image.Image) ([]Word, error)
	Close() error
}

// TesseractEngine runs one trained language through gosseract.
type TesseractEngine struct {
	client *gosseract.Client
}

func NewTesseractEngine(language, tessdataPrefix string) (*TesseractEngine, error) {
	client := gosseract.NewClient()
	if tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(tessdataPrefix); err != nil {
			client.Close()
			return nil, fmt.Errorf("setting tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(language); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting language %q: %w", language, err)
	}
	return &TesseractEngine{client: client}, nil
}

func (e *TesseractEngine) Recognize(img image.Image) ([]Word, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	if err := e.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("loading image: %w", err)
	}
	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("recognizing: %w", err)
	}
	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, Word{Text: b.Word, Confidence: b.Confidence})
	}
	return words, nil
}

func (e *TesseractEngine) Close() error {
	return e.client.Close()
}
