// Package stability decides whether a file in the drop folder has finished
// being written and can be moved.
package stability

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"time"
)

// LockChecker reports whether another process holds path open.
type LockChecker interface {
	IsLocked(ctx context.Context, path string) bool
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// StatFunc is os.Stat by default.
type StatFunc func(path string) (fs.FileInfo, error)

// Gate samples size and modification time and consults a LockChecker.
type Gate struct {
	samples  int
	interval time.Duration
	sleep    SleepFunc
	stat     StatFunc
	locks    LockChecker
	logger   *slog.Logger
}

type Option func(*Gate)

func WithSamples(n int) Option {
	return func(g *Gate) {
		if n > 0 {
			g.samples = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(g *Gate) {
		if d >= 0 {
			g.interval = d
		}
	}
}

func WithSleep(fn SleepFunc) Option {
	return func(g *Gate) {
		if fn != nil {
			g.sleep = fn
		}
	}
}

func WithStat(fn StatFunc) Option {
	return func(g *Gate) {
		if fn != nil {
			g.stat = fn
		}
	}
}

func WithLockChecker(c LockChecker) Option {
	return func(g *Gate) {
		if c != nil {
			g.locks = c
		}
	}
}

func NewGate(logger *slog.Logger, opts ...Option) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		samples:  3,
		interval: time.Second,
		sleep:    Sleep,
		stat:     os.Stat,
		locks:    NoLocks{},
		logger:   logger,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

type sample struct {
	size  int64
	mtime time.Time
}

// IsStable takes the configured number of samples. It returns false when any
// sample fails, when size or mtime differ between samples, or when the file
// is held open elsewhere.
func (g *Gate) IsStable(ctx context.Context, path string) bool {
	var first sample
	for i := 0; i < g.samples; i++ {
		if i > 0 {
			if err := g.sleep(ctx, g.interval); err != nil {
				return false
			}
		}
		fi, err := g.stat(path)
		if err != nil {
			g.logger.Debug("stability sample failed", "path", path, "error", err)
			return false
		}
		s := sample{size: fi.Size(), mtime: fi.ModTime()}
		if i == 0 {
			first = s
			continue
		}
		if s.size != first.size || !s.mtime.Equal(first.mtime) {
			g.logger.Debug("file still changing", "path", path, "size", s.size, "first_size", first.size)
			return false
		}
	}
	if g.locks.IsLocked(ctx, path) {
		g.logger.Debug("file held open by another process", "path", path)
		return false
	}
	return true
}

// Await retries IsStable up to retries more times, waiting backoff between
// attempts. A false result means the file is deferred to the next pass.
func (g *Gate) Await(ctx context.Context, path string, retries int, backoff time.Duration) bool {
	for attempt := 0; ; attempt++ {
		if g.IsStable(ctx, path) {
			return true
		}
		if attempt >= retries {
			g.logger.Warn("file still unstable, deferring", "path", path, "attempts", attempt+1)
			return false
		}
		g.logger.Warn("file unstable, will retry", "path", path, "retry", attempt+1, "max_retries", retries)
		if err := g.sleep(ctx, backoff); err != nil {
			return false
		}
	}
}

// Sleep is the default SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
