package di

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Executor decides the order in which graph nodes are resolved. run must be
// called for every node after all of its dependencies returned nil.
type Executor interface {
	Execute(ctx context.Context, g *Graph, run func(ctx context.Context, id int) error) error
}

// Sequential resolves nodes one at a time in topological order.
type Sequential struct{}

// Execute implements Executor.
func (Sequential) Execute(ctx context.Context, g *Graph, run func(ctx context.Context, id int) error) error {
	for id := range g.nodes {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := run(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

// Concurrent resolves independent nodes in parallel. Limit caps the number
// of nodes resolved at once; zero means no limit.
type Concurrent struct {
	Limit int
}

// Execute implements Executor. The first failure cancels nodes that have not
// started yet.
func (c Concurrent) Execute(ctx context.Context, g *Graph, run func(ctx context.Context, id int) error) error {
	eg, ctx := errgroup.WithContext(ctx)
	if c.Limit > 0 {
		eg.SetLimit(c.Limit)
	}

	done := make([]chan struct{}, len(g.nodes))
	for id := range done {
		done[id] = make(chan struct{})
	}

	for id := range g.nodes {
		eg.Go(func() error {
			for _, dep := range g.deps[id] {
				select {
				case <-done[dep]:
				case <-ctx.Done():
					return ctx.Err()
				}
			}

			if err := run(ctx, id); err != nil {
				return err
			}

			close(done[id])

			return nil
		})
	}

	return eg.Wait()
}
