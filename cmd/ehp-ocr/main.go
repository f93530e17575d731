package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nsyy/eye-pacs/internal/common"
	"github.com/nsyy/eye-pacs/internal/core/runner"
	"github.com/nsyy/eye-pacs/internal/extract"
	"github.com/nsyy/eye-pacs/internal/ocr"
)

// ehp-ocr runs field extraction for one archived PDF and prints report_value.
// The report name defaults to the file's basename and picks the template.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 || len(os.Args) > 3 {
		logger.Error("usage", "cmd", "ehp-ocr <report.pdf> [report-name]")
		os.Exit(2)
	}
	pdf := os.Args[1]
	name := filepath.Base(pdf)
	if len(os.Args) == 3 {
		name = os.Args[2]
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(2)
	}

	tmpl, ok := extract.Select(name)
	if !ok {
		logger.Error("no template for report", "name", name)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	exec := runner.Exec{}
	ocrCfg := ocr.Config{
		Pdftoppm:    cfg.OCR.Pdftoppm,
		Tesseract:   cfg.OCR.Tesseract,
		Language:    cfg.OCR.Language,
		DPI:         cfg.OCR.DPI,
		MaxPages:    1,
		TessdataDir: cfg.OCR.TessdataDir,
	}
	engine, closer, err := ocr.NewEngine(cfg.OCR.Engine, ocrCfg, exec, logger)
	if err != nil {
		logger.Error("failed to start ocr engine", "engine", cfg.OCR.Engine, "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	start := time.Now()
	pages := ocr.NewRasterizer(ocrCfg, exec, logger).Rasterize(ctx, pdf)
	defer pages.Cleanup()
	if len(pages.Paths) == 0 {
		logger.Error("no pages rendered", "pdf", pdf)
		os.Exit(1)
	}
	img, err := ocr.LoadImage(pages.Paths[0])
	if err != nil {
		logger.Error("failed to load page", "page", pages.Paths[0], "error", err)
		os.Exit(1)
	}

	recognizer := ocr.NewPageRecognizer(engine, logger,
		ocr.WithMergeLevel(ocr.MergeLevel(cfg.OCR.MergeLevel)),
		ocr.WithRowThreshold(cfg.OCR.RowThreshold),
	)
	extractor := extract.NewExtractor(recognizer, logger, extract.WithRenderDPI(cfg.OCR.DPI))
	fields := extractor.Extract(ctx, tmpl, img)
	out, err := fields.Marshal()
	if err != nil {
		logger.Error("fields failed validation", "error", err)
		os.Exit(1)
	}

	logger.Info("extraction OK",
		"template", tmpl.Name,
		"fields", len(fields),
		"display_name", extract.DisplayName(fields, name),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	fmt.Println(string(out))
}
