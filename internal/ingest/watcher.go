package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

type WatchConfig struct {
	Roots    []string      // directories to watch (recursive)
	Debounce time.Duration // coalesce rapid create/write bursts
}

// StartWatcher emits eligible paths under the roots as they are created,
// written or renamed into place. Directories created later are watched too.
// Both channels close when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *slog.Logger) (<-chan string, <-chan error, error) {
	if len(cfg.Roots) == 0 {
		logger.Error("watcher start failed: no roots provided")
		return nil, nil, errors.New("no roots provided")
	}
	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Error("failed to create fsnotify watcher", "error", err)
		return nil, nil, err
	}

	for _, r := range cfg.Roots {
		if err := addTree(w, r); err != nil {
			logger.Error("failed to add root directory", "root", r, "error", err)
			_ = w.Close()
			return nil, nil, err
		}
	}

	go func() {
		var (
			mu      sync.Mutex
			timer   *time.Timer
			pending = map[string]struct{}{}
			closed  bool
		)
		flush := func() {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return
			}
			for p := range pending {
				select {
				case evCh <- p:
				default:
				}
				delete(pending, p)
			}
		}
		defer func() {
			mu.Lock()
			closed = true
			if timer != nil {
				timer.Stop()
			}
			close(evCh)
			close(errCh)
			mu.Unlock()
			if err := w.Close(); err != nil {
				logger.Warn("failed to close watcher", "error", err)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Op&fsnotify.Create != 0 {
					if st, err := os.Stat(e.Name); err == nil && st.IsDir() {
						if err := addTree(w, e.Name); err != nil {
							logger.Warn("failed to add new directory to watcher", "path", e.Name, "error", err)
						}
						continue
					}
				}
				if !Eligible(e.Name) || e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				mu.Lock()
				pending[e.Name] = struct{}{}
				if cfg.Debounce > 0 {
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(cfg.Debounce, flush)
					mu.Unlock()
				} else {
					mu.Unlock()
					flush()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Error("watcher error", "error", err)
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

// addTree watches dir and every non-hidden directory below it.
func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && IsHidden(path) {
			return fs.SkipDir
		}
		return w.Add(path)
	})
}

// TriggerOnEvents calls fn once per received path until events closes.
// Error events are drained and dropped; they are already logged.
func TriggerOnEvents(ctx context.Context, events <-chan string, errs <-chan error, fn func(path string)) {
	for events != nil || errs != nil {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			fn(p)
		case _, ok := <-errs:
			if !ok {
				errs = nil
			}
		}
	}
}
