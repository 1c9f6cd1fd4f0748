package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mr1hm/go-hazard-tasks/internal/logging"
)

var ErrPoolStopped = errors.New("worker pool stopped")

type ProcessFunc[T any] func(ctx context.Context, job T) error

// ErrorFunc receives the error of a failed job, including recovered panics.
type ErrorFunc[T any] func(job T, err error)

type WorkerPool[T any] struct {
	numWorkers int
	jobs       chan T
	processor  ProcessFunc[T]
	onError    ErrorFunc[T]
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    chan struct{}
	log        *slog.Logger
}

func NewWorkerPool[T any](numWorkers int, bufferSize int, processor ProcessFunc[T]) *WorkerPool[T] {
	return &WorkerPool[T]{
		numWorkers: numWorkers,
		jobs:       make(chan T, bufferSize),
		processor:  processor,
		stopped:    make(chan struct{}),
		log:        logging.Component("worker"),
	}
}

// OnError sets the failure callback. It must be called before Start.
func (wp *WorkerPool[T]) OnError(fn ErrorFunc[T]) {
	wp.onError = fn
}

func (wp *WorkerPool[T]) Start(ctx context.Context) {
	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool[T]) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job := <-wp.jobs:
			wp.handle(ctx, id, job)
		case <-wp.stopped:
			for {
				select {
				case job := <-wp.jobs:
					wp.handle(ctx, id, job)
				default:
					return
				}
			}
		}
	}
}

func (wp *WorkerPool[T]) handle(ctx context.Context, id int, job T) {
	if err := wp.run(ctx, job); err != nil {
		wp.log.Error("job failed", "worker", id, "error", err)
		if wp.onError != nil {
			wp.onError(job, err)
		}
	}
}

func (wp *WorkerPool[T]) run(ctx context.Context, job T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return wp.processor(ctx, job)
}

// Submit queues a job, blocking while the buffer is full. It fails once the
// pool is stopped or ctx is done.
func (wp *WorkerPool[T]) Submit(ctx context.Context, job T) error {
	select {
	case <-wp.stopped:
		return ErrPoolStopped
	default:
	}

	select {
	case wp.jobs <- job:
		return nil
	case <-wp.stopped:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting jobs and waits for the workers to drain the queue.
func (wp *WorkerPool[T]) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.stopped)
	})
	wp.wg.Wait()
}
