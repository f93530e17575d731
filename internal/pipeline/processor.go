// Package pipeline runs the periodic extraction batch over unparsed catalog rows.
package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"os"

	"github.com/nsyy/eye-pacs/constants"
	"github.com/nsyy/eye-pacs/internal/archive"
	"github.com/nsyy/eye-pacs/internal/common"
	"github.com/nsyy/eye-pacs/internal/entity"
	"github.com/nsyy/eye-pacs/internal/extract"
	"github.com/nsyy/eye-pacs/internal/ocr"
	"github.com/nsyy/eye-pacs/internal/repository"
)

// DefaultBatchSize is how many unparsed rows one run claims.
const DefaultBatchSize = 5

type Rasterizer interface {
	Rasterize(ctx context.Context, pdfPath string) ocr.Pages
}

type PageExtractor interface {
	Extract(ctx context.Context, t extract.Template, img image.Image) extract.Fields
}

// ParsedNotifier is told about every row whose report_value was written.
type ParsedNotifier interface {
	Parsed(ctx context.Context, row entity.Report) error
}

// Summary counts the outcome of one batch.
type Summary struct {
	Selected int
	Parsed   int
	Skipped  int
	Failed   int
}

// Processor coordinates rasterize, template extraction and catalog update.
type Processor struct {
	repo      repository.ReportRepository
	raster    Rasterizer
	extractor PageExtractor
	notifier  ParsedNotifier
	batchSize int
	loadImage func(path string) (image.Image, error)
	logger    *slog.Logger
}

type Option func(*Processor)

func WithBatchSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithNotifier(n ParsedNotifier) Option { return func(p *Processor) { p.notifier = n } }

func WithImageLoader(fn func(path string) (image.Image, error)) Option {
	return func(p *Processor) { p.loadImage = fn }
}

func NewProcessor(repo repository.ReportRepository, raster Rasterizer, extractor PageExtractor, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		repo:      repo,
		raster:    raster,
		extractor: extractor,
		batchSize: DefaultBatchSize,
		loadImage: ocr.LoadImage,
		logger:    logger,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// RunBatch parses up to the batch size of the oldest unparsed rows. A failing
// row never stops the batch; catalog write errors are joined and returned.
func (p *Processor) RunBatch(ctx context.Context) (Summary, error) {
	logger := common.LoggerFrom(ctx, p.logger)

	rows, err := p.repo.ListUnparsed(ctx, p.batchSize)
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Selected: len(rows)}

	var errs []error
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		done, err := p.process(ctx, logger, row)
		switch {
		case errors.Is(err, common.ErrAlreadyParsed):
			logger.Info("report claimed by another batch", "report_id", row.ID)
			sum.Skipped++
		case err != nil:
			errs = append(errs, err)
			sum.Failed++
		case done:
			sum.Parsed++
		default:
			sum.Skipped++
		}
	}

	logger.Info("extraction batch finished",
		"selected", sum.Selected,
		"parsed", sum.Parsed,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
	)
	return sum, errors.Join(errs...)
}

// process returns false without error for rows left unparsed on purpose.
func (p *Processor) process(ctx context.Context, logger *slog.Logger, row entity.Report) (bool, error) {
	path := archive.DecodePath(row.Addr)
	logger = logger.With("report_id", row.ID, "path", path)

	st, err := os.Stat(path)
	if err != nil || st.IsDir() {
		logger.Warn("report file missing, leaving unparsed", "error", err)
		return false, nil
	}
	if !constants.IsPDF(path) {
		logger.Warn("report file is not a pdf, leaving unparsed")
		return false, nil
	}

	fields := p.extract(ctx, logger, row, path)
	value, err := fields.Marshal()
	if err != nil {
		logger.Error("extracted fields rejected", "error", err)
		value, fields = []byte("{}"), extract.Fields{}
	}

	name := extract.DisplayName(fields, row.Name)
	if err := p.repo.UpdateParsed(ctx, row.ID, name, value); err != nil {
		return false, err
	}
	logger.Info("report parsed", "name", name, "fields", len(fields))

	if p.notifier != nil {
		row.Name, row.Value = name, value
		if err := p.notifier.Parsed(ctx, row); err != nil {
			logger.Warn("parsed notification failed", "error", err)
		}
	}
	return true, nil
}

// extract runs the template for row against page 1. Types without a template
// and unreadable PDFs yield empty fields.
func (p *Processor) extract(ctx context.Context, logger *slog.Logger, row entity.Report, path string) extract.Fields {
	tmpl, ok := extract.Select(row.Name)
	if !ok {
		logger.Debug("no template for report", "name", row.Name, "machine", row.Machine)
		return extract.Fields{}
	}

	pages := p.raster.Rasterize(ctx, path)
	defer pages.Cleanup()
	if len(pages.Paths) == 0 {
		logger.Warn("no pages rasterized")
		return extract.Fields{}
	}

	img, err := p.loadImage(pages.Paths[0])
	if err != nil {
		logger.Error("failed to load page raster", "page", pages.Paths[0], "error", err)
		return extract.Fields{}
	}
	return p.extractor.Extract(ctx, tmpl, img)
}
