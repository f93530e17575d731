package ocr

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/nsyy/eye-pacs/internal/core/runner"
)

// NewEngine picks a Recognizer by name: "tesseract" shells out to the CLI,
// "gosseract" links libtesseract (requires the ocr build tag). The returned
// closer is never nil.
func NewEngine(name string, cfg Config, r runner.Runner, logger *slog.Logger) (Recognizer, io.Closer, error) {
	switch name {
	case "", "tesseract":
		return NewTesseract(cfg, r, logger), noClose{}, nil
	case "gosseract":
		g, err := NewGosseract(cfg)
		if err != nil {
			return nil, noClose{}, err
		}
		return g, g, nil
	default:
		return nil, noClose{}, fmt.Errorf("unknown OCR engine %q", name)
	}
}

type noClose struct{}

func (noClose) Close() error { return nil }
