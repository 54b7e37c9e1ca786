package utils

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// CxGroup is an errgroup bound to a context; the first failing function cancels the rest.
type CxGroup struct {
	ctx   context.Context
	group *errgroup.Group
}

// NewCGroupWithLimit caps the number of functions running at once; limit <= 0 means no cap.
func NewCGroupWithLimit(ctx context.Context, limit int) *CxGroup {
	group, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		group.SetLimit(limit)
	}
	return &CxGroup{ctx: ctx, group: group}
}

func (g *CxGroup) Add(execute func(ctx context.Context) error) {
	g.group.Go(func() error {
		// do not start new work once the group is cancelled
		select {
		case <-g.ctx.Done():
			return g.ctx.Err()
		default:
			return execute(g.ctx)
		}
	})
}

func (g *CxGroup) Block() error {
	return g.group.Wait()
}

// Concurrent runs fn on every element of array with at most concurrency workers.
func Concurrent[T any](ctx context.Context, array []T, concurrency int, fn func(ctx context.Context, item T, executionNumber int) error) error {
	group := NewCGroupWithLimit(ctx, concurrency)
	ConcurrentInGroup(group, array, fn)
	return group.Block()
}

// ConcurrentInGroup schedules fn for every element of array in an existing group.
func ConcurrentInGroup[T any](group *CxGroup, array []T, fn func(ctx context.Context, item T, executionNumber int) error) {
	for idx, one := range array {
		group.Add(func(ctx context.Context) error {
			return fn(ctx, one, idx+1)
		})
	}
}
