// Package archive moves classified reports into the dated archive tree and
// builds the catalog row that records them.
package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nsyy/eye-pacs/constants"
	"github.com/nsyy/eye-pacs/internal/classify"
	"github.com/nsyy/eye-pacs/internal/entity"
)

// Mover places files under destRoot/<YYYYMMDD>/<original subdirectories>/.
type Mover struct {
	destRoot string
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Mover)

func WithClock(now func() time.Time) Option {
	return func(m *Mover) {
		if now != nil {
			m.now = now
		}
	}
}

func NewMover(destRoot string, logger *slog.Logger, opts ...Option) *Mover {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mover{destRoot: destRoot, now: time.Now, logger: logger}
	for _, o := range opts {
		o(m)
	}
	return m
}

// DestRoot is the archive root this mover writes under.
func (m *Mover) DestRoot() string { return m.destRoot }

// DatedDir returns (and creates) the archive directory for t's local date.
func (m *Mover) DatedDir(t time.Time) (string, error) {
	dir := filepath.Join(m.destRoot, t.Format(constants.DateDirLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dated dir: %w", err)
	}
	return dir, nil
}

// Archive moves sourceRoot/relPath into today's partition under the classified
// basename and returns the catalog row for it. On error the source file is
// left where it was.
func (m *Mover) Archive(sourceRoot, relPath string, c classify.Result) (entity.Report, error) {
	src := filepath.Join(sourceRoot, relPath)
	if _, err := os.Stat(src); err != nil {
		return entity.Report{}, fmt.Errorf("stat source: %w", err)
	}

	now := m.now()
	datedDir, err := m.DatedDir(now)
	if err != nil {
		return entity.Report{}, err
	}
	destDir := filepath.Join(datedDir, filepath.Dir(relPath))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return entity.Report{}, fmt.Errorf("create destination dir: %w", err)
	}
	dst, err := moveToFreeName(src, filepath.Join(destDir, c.Basename))
	if err != nil {
		return entity.Report{}, fmt.Errorf("move %s: %w", relPath, err)
	}
	m.logger.Debug("file archived", "source", relPath, "dest", dst, "machine", c.Machine)

	return entity.Report{
		ID:      uuid.New(),
		Name:    filepath.Base(dst),
		Addr:    EncodePath(dst),
		Time:    now,
		Machine: c.Machine,
	}, nil
}

// Save writes an uploaded report into today's partition under name and
// returns the catalog row for it, labelled as a manual upload.
func (m *Mover) Save(name string, r io.Reader) (entity.Report, error) {
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		return entity.Report{}, fmt.Errorf("invalid upload name %q", name)
	}

	now := m.now()
	datedDir, err := m.DatedDir(now)
	if err != nil {
		return entity.Report{}, err
	}
	var (
		dst string
		f   *os.File
	)
	for i := 0; i < maxPlaceAttempts; i++ {
		dst = uniquePath(filepath.Join(datedDir, name))
		f, err = os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if !errors.Is(err, fs.ErrExist) {
			break
		}
	}
	if err != nil {
		return entity.Report{}, fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return entity.Report{}, fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return entity.Report{}, fmt.Errorf("close upload: %w", err)
	}
	m.logger.Debug("upload stored", "dest", dst)

	return entity.Report{
		ID:      uuid.New(),
		Name:    filepath.Base(dst),
		Addr:    EncodePath(dst),
		Time:    now,
		Machine: constants.MachineManualUpload,
	}, nil
}
