//go:build ocr

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Gosseract recognizes images in-process through libtesseract.
type Gosseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewGosseract builds an in-process engine. Close releases the native client.
func NewGosseract(cfg Config) (*Gosseract, error) {
	cfg = cfg.withDefaults()
	client := gosseract.NewClient()
	if cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(cfg.TessdataDir); err != nil {
			client.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(strings.Split(cfg.Language, "+")...); err != nil {
		client.Close()
		return nil, fmt.Errorf("set OCR language %q: %w", cfg.Language, err)
	}
	if cfg.PSM > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(cfg.PSM)); err != nil {
			client.Close()
			return nil, fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	return &Gosseract{client: client}, nil
}

func (g *Gosseract) Recognize(ctx context.Context, img image.Image) ([]Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode region: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set OCR image data: %w", err)
	}
	boxes, err := g.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("OCR text extraction failed: %w", err)
	}

	origin := img.Bounds().Min
	frags := make([]Fragment, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		frags = append(frags, Fragment{
			Text:       text,
			Confidence: clamp01(b.Confidence / 100),
			Position:   QuadFromRect(b.Box.Add(origin)),
		})
	}
	return frags, nil
}

func (g *Gosseract) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.client.Close()
}
