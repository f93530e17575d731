// Package ingest moves finished device exports out of the shared drop folder
// into the dated archive and records them in the catalog.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/nsyy/eye-pacs/constants"
	"github.com/nsyy/eye-pacs/internal/classify"
	"github.com/nsyy/eye-pacs/internal/common"
	"github.com/nsyy/eye-pacs/internal/entity"
	"github.com/nsyy/eye-pacs/internal/repository"
)

type Gate interface {
	Await(ctx context.Context, path string, retries int, backoff time.Duration) bool
}

type Classifier interface {
	Classify(relPath string) classify.Result
}

type Archiver interface {
	Archive(sourceRoot, relPath string, c classify.Result) (entity.Report, error)
	DatedDir(t time.Time) (string, error)
}

// Hook observes rows after they have been committed to the catalog.
type Hook interface {
	Archived(ctx context.Context, rows []entity.Report) error
}

type Config struct {
	SourceDir     string
	RetryAttempts int
	RetryBackoff  time.Duration
}

// Stats summarizes one pass.
type Stats struct {
	Scanned  int
	Matched  int
	Archived int
	Deferred int
	Failed   int
}

type Loop struct {
	cfg        Config
	repo       repository.ReportRepository
	gate       Gate
	classifier Classifier
	archiver   Archiver
	hooks      []Hook
	now        func() time.Time
	logger     *slog.Logger

	day string
}

type Option func(*Loop)

func WithHooks(h ...Hook) Option { return func(l *Loop) { l.hooks = append(l.hooks, h...) } }

func WithClock(now func() time.Time) Option { return func(l *Loop) { l.now = now } }

func NewLoop(cfg Config, repo repository.ReportRepository, gate Gate, classifier Classifier, archiver Archiver, logger *slog.Logger, opts ...Option) *Loop {
	l := &Loop{
		cfg:        cfg,
		repo:       repo,
		gate:       gate,
		classifier: classifier,
		archiver:   archiver,
		now:        time.Now,
		logger:     logger,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// RunOnce performs a single pass over the source directory, creating it when
// absent. Per-file failures are counted and logged; only the catalog insert
// fails the pass.
func (l *Loop) RunOnce(ctx context.Context) (Stats, error) {
	logger := common.LoggerFrom(ctx, l.logger)
	if err := os.MkdirAll(l.cfg.SourceDir, 0o755); err != nil {
		logger.Error("failed to create source dir", "root", l.cfg.SourceDir, "error", err)
	}
	l.checkRollover(logger)

	var (
		st   Stats
		rows []entity.Report
	)
	walkErr := filepath.WalkDir(l.cfg.SourceDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Warn("walk error", "path", path, "error", err)
			if d != nil && d.IsDir() && path != l.cfg.SourceDir {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		st.Scanned++
		if !Eligible(path) {
			return nil
		}
		st.Matched++

		row, out := l.ingestFile(ctx, logger, path)
		switch out {
		case archived:
			rows = append(rows, row)
			st.Archived++
		case deferred:
			st.Deferred++
		default:
			st.Failed++
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, context.Canceled) {
		logger.Error("source walk aborted", "root", l.cfg.SourceDir, "error", walkErr)
	}

	if err := l.record(ctx, logger, rows); err != nil {
		return st, err
	}
	logger.Info("ingest pass finished",
		"scanned", st.Scanned,
		"matched", st.Matched,
		"archived", st.Archived,
		"deferred", st.Deferred,
		"failed", st.Failed,
	)
	return st, walkErr
}

type outcome int

const (
	archived outcome = iota
	deferred
	failed
)

// ingestFile runs stability, classification and the move for one file.
func (l *Loop) ingestFile(ctx context.Context, logger *slog.Logger, path string) (entity.Report, outcome) {
	rel, err := filepath.Rel(l.cfg.SourceDir, path)
	if err != nil {
		logger.Error("relative path", "path", path, "error", err)
		return entity.Report{}, failed
	}
	if !l.gate.Await(ctx, path, l.cfg.RetryAttempts, l.cfg.RetryBackoff) {
		return entity.Report{}, deferred
	}

	res := l.classifier.Classify(rel)
	row, err := l.archiver.Archive(l.cfg.SourceDir, rel, res)
	if err != nil {
		logger.Error("archive failed", "path", rel, "error", err)
		return entity.Report{}, failed
	}
	logger.Info("report archived",
		"source", rel,
		"name", row.Name,
		"type", string(res.ReportType),
		"machine", row.Machine,
	)
	return row, archived
}

func (l *Loop) record(ctx context.Context, logger *slog.Logger, rows []entity.Report) error {
	if len(rows) == 0 {
		return nil
	}
	if err := l.repo.InsertMany(ctx, rows); err != nil {
		// Files are already archived; log enough to re-register them by hand.
		for _, r := range rows {
			logger.Error("archived report not recorded", "report_id", r.ID, "addr", r.Addr)
		}
		return err
	}
	for _, h := range l.hooks {
		if err := h.Archived(ctx, rows); err != nil {
			logger.Warn("archive hook failed", "error", err)
		}
	}
	return nil
}

// checkRollover creates the new day's partition the first pass after midnight.
func (l *Loop) checkRollover(logger *slog.Logger) {
	now := l.now()
	day := now.Format(constants.DateDirLayout)
	if day == l.day {
		return
	}
	if _, err := l.archiver.DatedDir(now); err != nil {
		logger.Error("failed to create dated dir", "day", day, "error", err)
		return
	}
	if l.day != "" {
		logger.Info("date rollover", "from", l.day, "to", day)
	}
	l.day = day
}
