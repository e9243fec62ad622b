package flow

import (
	"context"
	"sync"
)

// Future is the eventual outcome of a flow. It completes exactly once.
type Future[R any] struct {
	done   chan struct{}
	once   sync.Once
	result R
	err    error
}

func newFuture[R any]() *Future[R] {
	return &Future[R]{done: make(chan struct{})}
}

func (fu *Future[R]) complete(result R, err error) bool {
	completed := false
	fu.once.Do(func() {
		fu.result = result
		fu.err = err
		completed = true
		close(fu.done)
	})
	return completed
}

// Done is closed once the future has an outcome.
func (fu *Future[R]) Done() <-chan struct{} {
	return fu.done
}

// Await blocks until the flow reaches a terminal state or ctx is done.
func (fu *Future[R]) Await(ctx context.Context) (R, error) {
	select {
	case <-fu.done:
		return fu.result, fu.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}
