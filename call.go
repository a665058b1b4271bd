package bldtrack

import (
	"context"
	"sync"

	"github.com/fredrikaverpil/bldtrack/buildop"
	"golang.org/x/sync/errgroup"
)

// Action is a named unit of work run by Call and Parallel.
type Action struct {
	Name string
	Fn   func(context.Context) error
}

// Do wraps fn as an Action.
func Do(name string, fn func(context.Context) error) Action {
	return Action{Name: name, Fn: fn}
}

// Call runs fn synchronously as a nested task action on the calling worker.
// The nested action is its own build operation, a child of the current one.
func (bt *BuildTree) Call(ctx context.Context, name string, fn func(context.Context) error) error {
	if FromContext(ctx) != bt {
		ctx = withBuildTree(ctx, bt)
	}
	ctx, op := bt.ops.Start(ctx, name)
	return bt.run(ctx, op, fn)
}

// run executes fn as the task action of op, which must have been started on
// ctx, and finishes op when fn returns.
func (bt *BuildTree) run(ctx context.Context, op *buildop.Operation, fn func(context.Context) error) error {
	defer bt.ops.Finish(op)
	return bt.tracker.Track(ctx, op.ID, fn)
}

// Parallel runs actions concurrently, each as a nested task action on its
// own worker, and waits for all of them.
// Output of each action is buffered and flushed, prefixed with the action
// name, when it completes.
// Returns the first error encountered, or nil if all succeed.
func (bt *BuildTree) Parallel(ctx context.Context, actions ...Action) error {
	if len(actions) == 0 {
		return nil
	}

	// Check if context is already canceled.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Single item? Run directly on this worker.
	if len(actions) == 1 {
		return bt.Call(ctx, actions[0].Name, actions[0].Fn)
	}

	if FromContext(ctx) != bt {
		ctx = withBuildTree(ctx, bt)
	}
	parentOut := OutputFromContext(ctx)
	var flushMu sync.Mutex

	g, gCtx := errgroup.WithContext(ctx)
	for _, a := range actions {
		g.Go(func() error {
			childCtx, op := bt.ops.Start(bt.tracker.Fork(gCtx), a.Name)
			out := newOperationOutput(parentOut, op)
			err := bt.run(WithOutput(childCtx, out.Output()), op, a.Fn)

			// First to complete flushes first.
			flushMu.Lock()
			out.Flush()
			flushMu.Unlock()

			return err
		})
	}
	return g.Wait()
}
