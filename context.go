package bldtrack

import (
	"context"
)

// contextKey is the type for context keys in this package.
type contextKey int

const (
	// buildTreeKey is the context key for the current build tree.
	buildTreeKey contextKey = iota
	// outputKey is the context key for task output.
	outputKey
)

// withBuildTree returns a new context with the build tree set.
func withBuildTree(ctx context.Context, bt *BuildTree) context.Context {
	return context.WithValue(ctx, buildTreeKey, bt)
}

// FromContext returns the build tree running the current task action.
// Returns nil outside a build tree.
func FromContext(ctx context.Context) *BuildTree {
	if ctx == nil {
		return nil
	}
	bt, _ := ctx.Value(buildTreeKey).(*BuildTree)
	return bt
}

// WithOutput returns a new context with the given output.
func WithOutput(ctx context.Context, out *Output) context.Context {
	return context.WithValue(ctx, outputKey, out)
}

// OutputFromContext returns the output from the context.
// Returns StdOutput() if no output is set.
func OutputFromContext(ctx context.Context) *Output {
	if out, ok := ctx.Value(outputKey).(*Output); ok && out != nil {
		return out
	}
	return StdOutput()
}

// IsExecutingTask reports whether ctx belongs to a worker that is inside a
// task action of its build tree. Returns false outside a build tree.
func IsExecutingTask(ctx context.Context) bool {
	bt := FromContext(ctx)
	return bt != nil && bt.tracker.IsExecutingTask(ctx)
}
