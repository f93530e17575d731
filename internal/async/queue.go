// Package async runs named background tasks on a bounded worker pool.
package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nsyy/eye-pacs/internal/common"
)

// TaskFunc is one unit of scheduled work, such as an ingest pass.
type TaskFunc func(ctx context.Context) error

type job struct {
	name string
	done chan error // nil for Enqueue
}

// TaskQueue runs registered tasks with per-name single flight: a task that is
// queued or running is rejected with common.ErrBusy.
type TaskQueue struct {
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan job
	wg   sync.WaitGroup
	once sync.Once

	mu       sync.Mutex
	tasks    map[string]TaskFunc
	inflight map[string]bool
	closed   bool
}

type Option func(*TaskQueue)

func WithWorkers(n int) Option {
	return func(q *TaskQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithTaskTimeout bounds each run. Zero means no timeout.
func WithTaskTimeout(d time.Duration) Option {
	return func(q *TaskQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewTaskQueue(logger *slog.Logger, opts ...Option) *TaskQueue {
	q := &TaskQueue{
		logger:   logger,
		workers:  4,
		tasks:    map[string]TaskFunc{},
		inflight: map[string]bool{},
	}
	for _, o := range opts {
		o(q)
	}
	q.ch = make(chan job, q.workers)
	q.start()
	return q
}

// Register adds or replaces the function run for name.
func (q *TaskQueue) Register(name string, fn TaskFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[name] = fn
}

func (q *TaskQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)
				for j := range q.ch {
					err := q.execute(j.name)
					if j.done != nil {
						j.done <- err
					}
				}
				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *TaskQueue) execute(name string) (err error) {
	q.mu.Lock()
	fn := q.tasks[name]
	q.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", name, r)
		}
		q.mu.Lock()
		delete(q.inflight, name)
		q.mu.Unlock()
		if err != nil {
			q.logger.Error("task failed", "task", name, "error", err)
		}
	}()

	ctx := common.WithTask(context.Background(), name)
	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}
	start := time.Now()
	err = fn(ctx)
	q.logger.Debug("task finished", "task", name, "duration", time.Since(start))
	return err
}

func (q *TaskQueue) submit(name string, done chan error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return common.NewAppError("SHUTTING_DOWN", "task queue closed", common.ErrBusy)
	}
	if _, ok := q.tasks[name]; !ok {
		return common.NewAppError("UNKNOWN_TASK", name, common.ErrNotFound)
	}
	if q.inflight[name] {
		return common.NewAppError("TASK_BUSY", name, common.ErrBusy)
	}
	select {
	case q.ch <- job{name: name, done: done}:
		q.inflight[name] = true
		return nil
	default:
		return common.NewAppError("QUEUE_FULL", name, common.ErrBusy)
	}
}

// Enqueue schedules name without waiting for it.
func (q *TaskQueue) Enqueue(name string) error {
	return q.submit(name, nil)
}

// Run schedules name and waits for its result. If ctx ends first the task
// keeps running and ctx's error is returned.
func (q *TaskQueue) Run(ctx context.Context, name string) error {
	done := make(chan error, 1)
	if err := q.submit(name, done); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting work and waits for queued tasks to finish.
func (q *TaskQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("task queue drained, shutdown complete")
	}
}
