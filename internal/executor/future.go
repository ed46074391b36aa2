package executor

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/storagelite/storagelite/pkg/errors"
	"github.com/storagelite/storagelite/pkg/outcome"
)

// Future is the pending result of one submitted operation.
type Future[T any] struct {
	done     chan struct{}
	once     sync.Once
	result   outcome.Outcome[T]
	cancel   context.CancelFunc
	attempts atomic.Int32
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{}), cancel: func() {}}
}

// resolve stores the outcome. Only the first call has an effect.
func (f *Future[T]) resolve(o outcome.Outcome[T]) bool {
	resolved := false
	f.once.Do(func() {
		f.result = o
		close(f.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the outcome is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the outcome is available.
func (f *Future[T]) Wait() outcome.Outcome[T] {
	<-f.done
	return f.result
}

// WaitContext blocks until the outcome is available or ctx is done. Giving up on
// the wait does not cancel the operation.
func (f *Future[T]) WaitContext(ctx context.Context) (outcome.Outcome[T], error) {
	select {
	case <-f.done:
		return f.result, nil
	case <-ctx.Done():
		return outcome.Outcome[T]{}, errors.NewCanceledError(ctx.Err())
	}
}

// Outcome returns the outcome without blocking; ok is false while pending.
func (f *Future[T]) Outcome() (o outcome.Outcome[T], ok bool) {
	select {
	case <-f.done:
		return f.result, true
	default:
		return o, false
	}
}

// Cancel requests cancellation. A pending operation never starts; an in-flight
// exchange is aborted. Either way the outcome is a cancellation failure, unless
// the operation had already finished.
func (f *Future[T]) Cancel() {
	f.cancel()
}

// Attempts is the number of exchanges started so far.
func (f *Future[T]) Attempts() int {
	return int(f.attempts.Load())
}
