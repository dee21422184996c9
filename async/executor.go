// Package async provides the bounded worker pool that carries every store
// operation, plus a small future type for callers that need to wait on a
// result. Blocking I/O must never run on the thread driving game
// simulation; callers submit work here and either chain on the result or
// block their own goroutine with a short timeout.
package async

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrExecutorClosed is returned by Submit after Shutdown has begun.
	ErrExecutorClosed = errors.New("async: executor is shut down")
	// ErrWaitTimeout is returned by GetTimeout when the result did not
	// complete in time.
	ErrWaitTimeout = errors.New("async: wait timed out")
)

const (
	minWorkers   = 4
	queueSize    = 256
	DefaultGrace = 5 * time.Second
)

// DefaultWorkers sizes the pool relative to available hardware
// concurrency, with a floor so small hosts still get real parallelism.
func DefaultWorkers() int {
	n := runtime.NumCPU() / 2
	if n < minWorkers {
		n = minWorkers
	}
	return n
}

// Executor is a fixed-size worker pool. It is constructed explicitly and
// injected into every collaborator that needs it; nothing reads a
// process-wide singleton.
type Executor struct {
	tasks chan func()
	quit  chan struct{}

	workers sync.WaitGroup // running worker goroutines
	pending sync.WaitGroup // submitted, not yet finished tasks

	mu     sync.Mutex
	closed bool

	log *zap.SugaredLogger
}

// NewExecutor starts workers goroutines. A non-positive workers count
// falls back to DefaultWorkers.
func NewExecutor(workers int, log *zap.SugaredLogger) *Executor {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	e := &Executor{
		tasks: make(chan func(), queueSize),
		quit:  make(chan struct{}),
		log:   log,
	}
	e.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go e.worker()
	}
	return e
}

func (e *Executor) worker() {
	defer e.workers.Done()
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-e.quit:
			// Drain whatever is still queued before exiting.
			for {
				select {
				case fn := <-e.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Submit queues fn for execution. It fails fast once shutdown has begun
// and blocks if the queue is full.
func (e *Executor) Submit(fn func()) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrExecutorClosed
	}
	e.pending.Add(1)
	e.mu.Unlock()

	e.tasks <- func() {
		defer e.pending.Done()
		fn()
	}
	return nil
}

// Shutdown stops accepting new work, waits up to grace for in-flight and
// queued tasks to finish, then returns regardless. A forced return is
// logged; outstanding tasks are abandoned.
func (e *Executor) Shutdown(grace time.Duration) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		e.log.Warnf("worker pool did not drain within %s, forcing shutdown", grace)
	}
	close(e.quit)
}

// Result is a write-once future completed by the task that owns it.
type Result[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// NewResult returns an incomplete Result.
func NewResult[T any]() *Result[T] {
	return &Result[T]{done: make(chan struct{})}
}

// Complete finishes the result. It must be called exactly once.
func (r *Result[T]) Complete(val T, err error) {
	r.val = val
	r.err = err
	close(r.done)
}

// Get blocks until the result completes or ctx is done.
func (r *Result[T]) Get(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GetTimeout blocks up to d for the result. Call sites that need a
// synchronous answer use this with a short timeout and decide their own
// fail-open or fail-closed behavior on ErrWaitTimeout.
func (r *Result[T]) GetTimeout(d time.Duration) (T, error) {
	select {
	case <-r.done:
		return r.val, r.err
	case <-time.After(d):
		var zero T
		return zero, ErrWaitTimeout
	}
}

// Completed returns an already-finished result, for paths that can answer
// without touching the store.
func Completed[T any](val T, err error) *Result[T] {
	r := NewResult[T]()
	r.Complete(val, err)
	return r
}

// Run submits fn to the executor and returns its future. A rejected
// submission completes the future with the rejection error.
func Run[T any](e *Executor, fn func() (T, error)) *Result[T] {
	r := NewResult[T]()
	if err := e.Submit(func() { r.Complete(fn()) }); err != nil {
		var zero T
		r.Complete(zero, err)
	}
	return r
}
