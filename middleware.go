package bldtrack

import (
	"context"
	"time"

	"github.com/goyek/goyek/v3"
	"go.uber.org/zap"
)

// Middleware is a goyek runner middleware that runs every task action as a
// build operation tracked by the build tree.
//
// The action sees a context (a.Context()) that carries the build tree, the
// operation and the worker's lane. The tracker is notified on every exit
// path, including failures, panics and FailNow.
func (bt *BuildTree) Middleware(next goyek.Runner) goyek.Runner {
	return func(in goyek.Input) goyek.Result {
		ctx := in.Context
		if ctx == nil {
			ctx = context.Background()
		}
		ctx = withBuildTree(ctx, bt)
		if in.Output != nil {
			ctx = WithOutput(ctx, &Output{Stdout: in.Output, Stderr: in.Output})
		}

		ctx, op := bt.ops.Start(ctx, in.TaskName)
		defer bt.ops.Finish(op)

		ctx = bt.tracker.ActionStarting(ctx, op.ID)
		defer bt.tracker.ActionFinished(ctx, op.ID)

		in.Context = ctx
		start := time.Now()
		res := next(in)

		bt.log.Debug("task action done",
			zap.String("task", in.TaskName),
			zap.Stringer("operation", op.ID),
			zap.Bool("parallel", in.Parallel),
			zap.Stringer("status", res.Status),
			zap.Duration("duration", time.Since(start)),
		)
		return res
	}
}

// Install registers the build tree's middleware on flow.
func (bt *BuildTree) Install(flow *goyek.Flow) {
	flow.Use(bt.Middleware)
}
