package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/platinummonkey/passbill/pkg/observability"
)

// ErrPoolClosed is returned by Submit once the pool stops accepting work
var ErrPoolClosed = errors.New("worker pool is closed")

// SafeGo runs fn in its own goroutine with a timeout. Errors and panics are
// logged instead of crashing the process.
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, logger *observability.Logger, fn func(context.Context) error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()
		defer observability.RecoverPanic(logger, taskName)

		if err := fn(ctx); err != nil {
			logger.WithError(err).WithField("task", taskName).Error("Background task failed")
		}
	}()
}

// WorkerPool runs submitted tasks on a fixed number of goroutines, each task
// under its own timeout
type WorkerPool struct {
	workers  int
	taskName string
	timeout  time.Duration
	logger   *observability.Logger

	workCh chan func(context.Context) error
	doneCh chan struct{}
	errCh  chan error

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool starts workers goroutines. Call Close then Wait, or Shutdown,
// to release them.
func NewWorkerPool(ctx context.Context, workers int, taskName string, timeout time.Duration, logger *observability.Logger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	ctx, cancel := context.WithCancel(ctx)

	pool := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		timeout:  timeout,
		logger:   logger.WithField("pool", taskName),
		workCh:   make(chan func(context.Context) error, workers*2),
		doneCh:   make(chan struct{}),
		errCh:    make(chan error, workers*10),
		ctx:      ctx,
		cancel:   cancel,
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			pool.worker()
		}()
	}
	go func() {
		wg.Wait()
		close(pool.doneCh)
	}()

	return pool
}

// Submit queues fn, blocking while the queue is full
func (p *WorkerPool) Submit(fn func(context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.workCh <- fn:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("submit to %s: %w", p.taskName, p.ctx.Err())
	}
}

// Close stops accepting work. Queued tasks still run.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.workCh)
	}
}

// Wait blocks until every worker has exited
func (p *WorkerPool) Wait() {
	<-p.doneCh
	p.cancel()
}

// Shutdown closes the pool and waits up to timeout for queued work to drain,
// cancelling the running tasks once the timeout passes
func (p *WorkerPool) Shutdown(timeout time.Duration) error {
	p.Close()

	select {
	case <-p.doneCh:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		return fmt.Errorf("worker pool shutdown timed out after %v", timeout)
	}
}

// Errors receives the errors returned by tasks. Errors are dropped once the
// buffer is full.
func (p *WorkerPool) Errors() <-chan error {
	return p.errCh
}

func (p *WorkerPool) worker() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case fn, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(fn)
		}
	}
}

func (p *WorkerPool) run(fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()
	defer observability.RecoverPanicWithCallback(p.logger, p.taskName, func(r interface{}) {
		p.report(fmt.Errorf("panic: %v", r))
	})

	if err := fn(ctx); err != nil {
		p.report(err)
	}
}

func (p *WorkerPool) report(err error) {
	select {
	case p.errCh <- err:
	default:
		p.logger.WithError(err).Warn("Error channel full, dropping error")
	}
}

// Batch runs fn over items on a pool of workers and returns one error slot
// per item, nil where fn succeeded. A panic in fn becomes that item's error.
// Items that never started get the reason the pool stopped.
func Batch[T any](ctx context.Context, items []T, workers int, taskName string, timeout time.Duration,
	logger *observability.Logger, fn func(context.Context, T) error) []error {

	errs := make([]error, len(items))
	started := make([]bool, len(items))
	pool := NewWorkerPool(ctx, workers, taskName, timeout, logger)

	for i, item := range items {
		err := pool.Submit(func(ctx context.Context) error {
			started[i] = true
			defer observability.RecoverPanicWithCallback(pool.logger, taskName, func(r interface{}) {
				errs[i] = observability.MustRecover(r)
			})
			errs[i] = fn(ctx, item)
			return nil
		})
		if err != nil {
			break
		}
	}

	pool.Close()
	pool.Wait()

	cause := ctx.Err()
	if cause == nil {
		cause = ErrPoolClosed
	}
	for i := range items {
		if !started[i] {
			errs[i] = fmt.Errorf("%s not started: %w", taskName, cause)
		}
	}
	return errs
}
