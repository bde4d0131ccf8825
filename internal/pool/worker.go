// Package pool provides the dedicated per-agent worker goroutine and pooled
// buffers.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrWorkerClosed = errors.New("worker is closed")
	ErrQueueFull    = errors.New("worker queue is full")
)

// Task represents a unit of work.
type Task func(ctx context.Context)

// Worker runs submitted tasks one at a time on a single long-lived goroutine.
// A panicking task is recovered and reported to PanicHandler; the goroutine
// keeps serving later tasks.
type Worker struct {
	name      string
	taskQueue chan taskWrapper
	closed    atomic.Bool
	mu        sync.RWMutex
	done      chan struct{}

	busy atomic.Bool

	submitted atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
	rejected  atomic.Int64

	panicHandler func(name string, r any)
}

type taskWrapper struct {
	task Task
	ctx  context.Context
}

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	Name         string                   `json:"name"`
	QueueSize    int                      `json:"queue_size"`
	PanicHandler func(name string, r any) `json:"-"`
}

// DefaultWorkerConfig returns sensible defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Name:      "worker",
		QueueSize: 8,
	}
}

// NewWorker starts the worker goroutine.
func NewWorker(config WorkerConfig) *Worker {
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	w := &Worker{
		name:         config.Name,
		taskQueue:    make(chan taskWrapper, config.QueueSize),
		done:         make(chan struct{}),
		panicHandler: config.PanicHandler,
	}
	go w.run()
	return w
}

// Submit queues task without blocking.
func (w *Worker) Submit(ctx context.Context, task Task) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed.Load() {
		return ErrWorkerClosed
	}

	select {
	case w.taskQueue <- taskWrapper{task: task, ctx: ctx}:
		w.submitted.Add(1)
		return nil
	default:
		w.rejected.Add(1)
		return ErrQueueFull
	}
}

func (w *Worker) run() {
	defer close(w.done)
	for wrapper := range w.taskQueue {
		w.busy.Store(true)
		if w.execute(wrapper) {
			w.completed.Add(1)
		} else {
			w.panicked.Add(1)
		}
		w.busy.Store(false)
	}
}

func (w *Worker) execute(wrapper taskWrapper) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			if w.panicHandler != nil {
				w.panicHandler(w.name, r)
			}
		}
	}()

	wrapper.task(wrapper.ctx)
	return true
}

// Busy reports whether a task is currently running.
func (w *Worker) Busy() bool { return w.busy.Load() }

// Close stops accepting tasks and waits for queued ones to finish.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed.Swap(true) {
		w.mu.Unlock()
		<-w.done
		return
	}
	close(w.taskQueue)
	w.mu.Unlock()
	<-w.done
}

// CloseAsync stops accepting tasks without waiting.
func (w *Worker) CloseAsync() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed.Swap(true) {
		return
	}
	close(w.taskQueue)
}

// Stats returns worker statistics.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Name:      w.name,
		Busy:      w.busy.Load(),
		Queued:    len(w.taskQueue),
		Submitted: w.submitted.Load(),
		Completed: w.completed.Load(),
		Panicked:  w.panicked.Load(),
		Rejected:  w.rejected.Load(),
	}
}

// WorkerStats contains worker statistics.
type WorkerStats struct {
	Name      string `json:"name"`
	Busy      bool   `json:"busy"`
	Queued    int    `json:"queued"`
	Submitted int64  `json:"submitted"`
	Completed int64  `json:"completed"`
	Panicked  int64  `json:"panicked"`
	Rejected  int64  `json:"rejected"`
}

func (s WorkerStats) String() string {
	return fmt.Sprintf("%s: submitted=%d completed=%d panicked=%d rejected=%d",
		s.Name, s.Submitted, s.Completed, s.Panicked, s.Rejected)
}
