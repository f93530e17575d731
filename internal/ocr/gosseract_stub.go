//go:build !ocr

package ocr

import (
	"context"
	"errors"
	"image"
)

// ErrNoNativeOCR is returned when the binary was built without the ocr tag.
var ErrNoNativeOCR = errors.New("native OCR not available: rebuild with -tags ocr")

type Gosseract struct{}

func NewGosseract(Config) (*Gosseract, error) { return nil, ErrNoNativeOCR }

func (*Gosseract) Recognize(context.Context, image.Image) ([]Fragment, error) {
	return nil, ErrNoNativeOCR
}

func (*Gosseract) Close() error { return nil }
