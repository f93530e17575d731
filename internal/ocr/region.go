package ocr

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
)

// Region is an axis-aligned crop rectangle at the report's authored DPI.
type Region struct {
	Left, Top, Right, Bottom int
}

func (r Region) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Right, r.Bottom)
}

// Scale maps r from a page rendered at fromDPI onto one rendered at toDPI.
func (r Region) Scale(fromDPI, toDPI int) Region {
	if fromDPI <= 0 || toDPI <= 0 || fromDPI == toDPI {
		return r
	}
	s := func(v int) int { return v * toDPI / fromDPI }
	return Region{Left: s(r.Left), Top: s(r.Top), Right: s(r.Right), Bottom: s(r.Bottom)}
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", r.Left, r.Top, r.Right, r.Bottom)
}

// PageRecognizer runs a Recognizer over whole pages or cropped regions,
// applying preprocessing, reading-order sorting and optional merging.
type PageRecognizer struct {
	engine     Recognizer
	merge      MergeLevel
	threshold  float64
	preprocess bool
	logger     *slog.Logger
}

type PageOption func(*PageRecognizer)

func WithMergeLevel(l MergeLevel) PageOption { return func(p *PageRecognizer) { p.merge = l } }

func WithRowThreshold(t float64) PageOption { return func(p *PageRecognizer) { p.threshold = t } }

// WithoutPreprocess feeds the raw crop to the engine.
func WithoutPreprocess() PageOption { return func(p *PageRecognizer) { p.preprocess = false } }

func NewPageRecognizer(engine Recognizer, logger *slog.Logger, opts ...PageOption) *PageRecognizer {
	p := &PageRecognizer{
		engine:     engine,
		threshold:  DefaultRowThreshold,
		preprocess: true,
		logger:     logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Recognize returns fragments of img in reading order.
func (p *PageRecognizer) Recognize(ctx context.Context, img image.Image) ([]Fragment, error) {
	in := img
	if p.preprocess {
		in = Preprocess(img)
	}
	frags, err := p.engine.Recognize(ctx, in)
	if err != nil {
		return nil, err
	}
	kept := frags[:0]
	for _, f := range frags {
		f.Text = Normalize(f.Text)
		if f.Text != "" {
			kept = append(kept, f)
		}
	}
	return Merge(SortReadingOrder(kept, p.threshold), p.merge), nil
}

// RecognizeRegion crops img to r (clipped to the image) and recognizes the
// crop. A region entirely outside the image is an error.
func (p *PageRecognizer) RecognizeRegion(ctx context.Context, img image.Image, r Region) ([]Fragment, error) {
	crop, err := Crop(img, r.Rect())
	if err != nil {
		return nil, err
	}
	return p.Recognize(ctx, crop)
}

// RegionText recognizes each region and joins fragment texts with a space
// inside a region and two spaces between regions. Failed regions contribute
// an empty string.
func (p *PageRecognizer) RegionText(ctx context.Context, img image.Image, regions []Region) string {
	parts := make([]string, 0, len(regions))
	for _, r := range regions {
		frags, err := p.RecognizeRegion(ctx, img, r)
		if err != nil {
			p.logger.Warn("region ocr failed", "region", r.String(), "error", err)
			parts = append(parts, "")
			continue
		}
		parts = append(parts, strings.Join(Texts(frags), " "))
	}
	return strings.Join(parts, "  ")
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of img inside r.
func Crop(img image.Image, r image.Rectangle) (image.Image, error) {
	clipped := r.Intersect(img.Bounds())
	if clipped.Empty() {
		return nil, fmt.Errorf("region %v outside image bounds %v", r, img.Bounds())
	}
	if si, ok := img.(subImager); ok {
		return si.SubImage(clipped), nil
	}
	g := image.NewRGBA(clipped)
	for y := clipped.Min.Y; y < clipped.Max.Y; y++ {
		for x := clipped.Min.X; x < clipped.Max.X; x++ {
			g.Set(x, y, img.At(x, y))
		}
	}
	return g, nil
}
