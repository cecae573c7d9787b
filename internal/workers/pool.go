package workers

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEach calls fn for every item with at most n calls in flight. The stop
// signal is checked before each item is scheduled; items already running
// finish normally. fn reports failures through its own bookkeeping so one
// item can never abort its siblings. Returns ctx.Err() when canceled.
func ForEach[T any](ctx context.Context, n int, items []T, fn func(ctx context.Context, index int, item T)) error {
	if n < 1 {
		n = 1
	}
	var g errgroup.Group
	g.SetLimit(n)
	for i, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			fn(ctx, i, item)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}
