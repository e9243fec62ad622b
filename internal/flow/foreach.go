package flow

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach runs fn for every item concurrently and returns the first error.
// The context handed to fn is canceled when the flow closes or any call
// fails.
func ForEach[S, R, T any](f *Flow[S, R], items []T, fn func(ctx context.Context, item T) error) error {
	g, ctx := errgroup.WithContext(f.ctx)
	for _, item := range items {
		item := item
		g.Go(func() error {
			return fn(ctx, item)
		})
	}
	return g.Wait()
}
