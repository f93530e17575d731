package extract

import (
	"context"
	"image"
	"log/slog"

	"github.com/nsyy/eye-pacs/internal/ocr"
)

// RegionReader recognizes a list of page regions into one text blob.
type RegionReader interface {
	RegionText(ctx context.Context, img image.Image, regions []ocr.Region) string
}

// Extractor runs templates against page images. It holds no per-call state.
type Extractor struct {
	reader    RegionReader
	logger    *slog.Logger
	renderDPI int
}

type ExtractorOption func(*Extractor)

// WithRenderDPI declares the resolution pages are rasterized at. Template
// regions are rescaled when it differs from the template's own DPI.
func WithRenderDPI(dpi int) ExtractorOption {
	return func(e *Extractor) { e.renderDPI = dpi }
}

func NewExtractor(reader RegionReader, logger *slog.Logger, opts ...ExtractorOption) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Extractor{reader: reader, logger: logger, renderDPI: TemplateDPI}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract recognizes t's regions on img and parses the result.
func (e *Extractor) Extract(ctx context.Context, t Template, img image.Image) Fields {
	text := e.reader.RegionText(ctx, img, e.regions(t))
	fields := t.Parse(text)
	e.logger.Debug("template extracted", "template", t.Name, "chars", len(text), "fields", len(fields))
	return fields
}

func (e *Extractor) regions(t Template) []ocr.Region {
	if t.DPI == 0 || t.DPI == e.renderDPI {
		return t.Regions
	}
	out := make([]ocr.Region, len(t.Regions))
	for i, r := range t.Regions {
		out[i] = r.Scale(t.DPI, e.renderDPI)
	}
	return out
}
