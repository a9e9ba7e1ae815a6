package workgroup

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group runs the daemon's long-lived workers. The first worker to return an
// error cancels the context handed to the others.
type Group struct {
	ctx   context.Context
	group *errgroup.Group
}

// WithContext returns a Group whose workers observe a context derived from
// ctx.
func WithContext(ctx context.Context) *Group {
	group, gctx := errgroup.WithContext(ctx)
	return &Group{
		ctx:   gctx,
		group: group,
	}
}

// Work starts fn in its own goroutine.
func (g *Group) Work(fn func(context.Context) error) {
	g.group.Go(func() error {
		return fn(g.ctx)
	})
}

// Wait blocks until every worker returned and reports the first error.
func (g *Group) Wait() error {
	return g.group.Wait()
}
