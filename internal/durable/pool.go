package durable

import (
	"context"
	"log/slog"
	"sync"

	"github.com/pkg/errors"
)

// task is one activity invocation queued on the pool
type task struct {
	ctx      context.Context
	name     string
	fn       ActivityFunc
	input    []byte
	resultCh chan taskResult
}

type taskResult struct {
	output []byte
	err    error
}

// WorkerPool runs activities on a bounded set of goroutines. The tasks
// channel is never closed; stopped guards it against late sends.
type WorkerPool struct {
	workers  int
	tasks    chan task
	wg       sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.RWMutex
	stopped bool
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workers int, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}

	return &WorkerPool{
		workers: workers,
		tasks:   make(chan task, queueSize),
		done:    make(chan struct{}),
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	slog.Info("Starting activity worker pool", "workers", wp.workers)

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop waits for queued activities to drain and stops the workers
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		slog.Info("Stopping activity worker pool")
		close(wp.done)

		// Wait out submitters already past the stopped check
		wp.mu.Lock()
		wp.stopped = true
		wp.mu.Unlock()

		wp.wg.Wait()

		// Tasks that slipped in after the workers drained
		for {
			select {
			case t := <-wp.tasks:
				t.resultCh <- taskResult{err: ErrEngineStopped}
			default:
				slog.Info("Activity worker pool stopped")
				return
			}
		}
	})
}

// Run queues an activity and blocks until it returns. ctx only bounds the
// wait for a free queue slot; once accepted the activity runs to completion.
func (wp *WorkerPool) Run(ctx context.Context, name string, fn ActivityFunc, input []byte) ([]byte, error) {
	t := task{
		ctx:      ctx,
		name:     name,
		fn:       fn,
		input:    input,
		resultCh: make(chan taskResult, 1),
	}

	if err := wp.submit(ctx, t); err != nil {
		return nil, err
	}

	res := <-t.resultCh
	return res.output, res.err
}

func (wp *WorkerPool) submit(ctx context.Context, t task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return ErrEngineStopped
	}

	select {
	case wp.tasks <- t:
		return nil
	case <-wp.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// QueueLength returns the number of activities waiting for a worker
func (wp *WorkerPool) QueueLength() int {
	return len(wp.tasks)
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	slog.Debug("Activity worker started", "worker_id", id)
	defer slog.Debug("Activity worker stopped", "worker_id", id)

	for {
		select {
		case t := <-wp.tasks:
			wp.handle(t)
		case <-wp.done:
			for {
				select {
				case t := <-wp.tasks:
					wp.handle(t)
				default:
					return
				}
			}
		}
	}
}

func (wp *WorkerPool) handle(t task) {
	output, err := wp.execute(t)
	t.resultCh <- taskResult{output: output, err: err}
}

// execute runs one activity, converting a panic into an error with a stack
func (wp *WorkerPool) execute(t task) (output []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("activity %s panicked: %v", t.name, r)
		}
	}()

	return t.fn(t.ctx, t.input)
}
