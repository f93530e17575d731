// Package ocr turns report PDFs into page rasters and page rasters into
// positioned text fragments.
package ocr

import (
	"context"
	"image"
	"math"
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	Language    string // default "chi_sim+eng"
	DPI         int    // rasterization DPI, default 300; region maps are authored at 300
	MaxPages    int    // 0 = no limit
	TessdataDir string

	PSM int // e.g., 6 is good for uniform block of text
	OEM int // 1 = LSTM; leave 0 to use default
}

func (c Config) withDefaults() Config {
	if c.Pdftoppm == "" {
		c.Pdftoppm = "pdftoppm"
	}
	if c.Tesseract == "" {
		c.Tesseract = "tesseract"
	}
	if c.Language == "" {
		c.Language = "chi_sim+eng"
	}
	if c.DPI <= 0 {
		c.DPI = 300
	}
	return c
}

// Point is a pixel coordinate.
type Point struct {
	X, Y int
}

// Quad is a fragment outline: top-left, top-right, bottom-right, bottom-left.
type Quad [4]Point

// QuadFromRect builds an axis-aligned Quad.
func QuadFromRect(r image.Rectangle) Quad {
	return Quad{
		{r.Min.X, r.Min.Y},
		{r.Max.X, r.Min.Y},
		{r.Max.X, r.Max.Y},
		{r.Min.X, r.Max.Y},
	}
}

func (q Quad) CenterY() float64 {
	return float64(q[0].Y+q[1].Y+q[2].Y+q[3].Y) / 4
}

func (q Quad) MinY() int { return min(q[0].Y, q[1].Y, q[2].Y, q[3].Y) }
func (q Quad) MaxY() int { return max(q[0].Y, q[1].Y, q[2].Y, q[3].Y) }

// Fragment is one piece of recognized text.
type Fragment struct {
	Text       string
	Confidence float64 // 0..1
	Position   Quad
}

// Recognizer is an image-to-text engine. Implementations are built once at
// startup and shared; they must be safe for sequential reuse.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]Fragment, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, img image.Image) ([]Fragment, error)

func (f RecognizerFunc) Recognize(ctx context.Context, img image.Image) ([]Fragment, error) {
	return f(ctx, img)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
