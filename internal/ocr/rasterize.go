package ocr

import (
	"context"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/nsyy/eye-pacs/internal/core/runner"
)

// Rasterizer renders PDF pages to JPEG files with pdftoppm.
type Rasterizer struct {
	cfg    Config
	runner runner.Runner
	logger *slog.Logger
}

func NewRasterizer(cfg Config, r runner.Runner, logger *slog.Logger) *Rasterizer {
	return &Rasterizer{cfg: cfg.withDefaults(), runner: r, logger: logger}
}

// Pages is the rendered output of one PDF. Paths are ordered by page number.
// Cleanup removes all rasters and is always safe to call.
type Pages struct {
	Paths []string
	dir   string
}

// NewPages wraps rasters already written under dir.
func NewPages(dir string, paths []string) Pages {
	return Pages{Paths: paths, dir: dir}
}

func (p Pages) Cleanup() {
	if p.dir != "" {
		_ = os.RemoveAll(p.dir)
	}
}

// Rasterize renders pdfPath. Failures are logged and yield an empty Pages.
func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath string) Pages {
	dir, err := os.MkdirTemp("", "ehp-pages-*")
	if err != nil {
		r.logger.Error("raster temp dir", "error", err)
		return Pages{}
	}
	pages := Pages{dir: dir}

	args := []string{"-r", strconv.Itoa(r.cfg.DPI), "-jpeg"}
	if r.cfg.MaxPages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(r.cfg.MaxPages))
	}
	args = append(args, pdfPath, filepath.Join(dir, "page"))

	if _, _, err := r.runner.Run(ctx, r.cfg.Pdftoppm, r.logger, args...); err != nil {
		r.logger.Warn("rasterize failed", "path", pdfPath, "error", err)
		return pages
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "page-*.jpg"))
	sort.Slice(matches, func(i, j int) bool {
		return pageNumber(matches[i]) < pageNumber(matches[j])
	})
	pages.Paths = matches
	return pages
}

// pageNumber extracts N from ".../page-N.jpg"; pdftoppm zero-pads to the
// width of the last page so lexical order alone is not enough across runs.
func pageNumber(path string) int {
	base := filepath.Base(path)
	base = base[len("page-") : len(base)-len(filepath.Ext(base))]
	n, err := strconv.Atoi(base)
	if err != nil {
		return 0
	}
	return n
}

// LoadImage decodes a JPEG or PNG raster.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
