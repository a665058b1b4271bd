// Package tracker records which workers are inside a task action and which
// build operations are currently running as part of one.
//
// The execution engine calls ActionStarting immediately before a task action
// body runs and ActionFinished on every exit path afterwards (Track does both).
// Other subsystems query IsExecutingTask and RunningTaskOperations from any
// goroutine without their own synchronization.
//
// A worker is identified by the lane carried in its context.Context. The
// first ActionStarting on a context without a lane creates one and returns
// a context carrying it; the action body must run with that context.
package tracker

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/fredrikaverpil/bldtrack/buildop"
	"go.uber.org/zap"
)

// Tracker is the build-tree scoped execution-context tracker.
// It is safe for concurrent use. Create one per build tree with New.
//
// Running operations are reference counted: an identifier started twice
// must finish twice before it leaves the set.
//
// The executing flag counts nesting. Finishing an inner action leaves the
// flag set while an outer action on the same worker is still running; it is
// cleared only when the outermost action finishes.
type Tracker struct {
	mu      sync.RWMutex
	running map[buildop.ID]int

	laneSeq atomic.Uint64
	active  atomic.Int64 // lanes with depth > 0

	log *zap.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the logger used for lifecycle debug output.
func WithLogger(log *zap.Logger) Option {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// New creates an empty tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		running: make(map[buildop.ID]int),
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ActionStarting records that the worker identified by ctx is about to run
// a task action as part of operation op.
// The returned context carries the worker's lane and must be used for the
// action body and for the matching ActionFinished call.
// Reentrant calls on the same lane are legal.
func (t *Tracker) ActionStarting(ctx context.Context, op buildop.ID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	l := t.laneFrom(ctx)
	if l == nil {
		l = t.newLane()
		ctx = context.WithValue(ctx, laneKey{t}, l)
	}
	if l.enter() {
		t.active.Add(1)
	}

	t.mu.Lock()
	t.running[op]++
	n := t.running[op]
	t.mu.Unlock()

	t.log.Debug("task action starting",
		zap.Uint64("lane", l.id),
		zap.Stringer("operation", op),
		zap.Int("refs", n),
	)
	return ctx
}

// ActionFinished records that the task action started with ActionStarting on
// the same lane has returned, successfully or not.
// Finishing an operation that is not running is a no-op.
func (t *Tracker) ActionFinished(ctx context.Context, op buildop.ID) {
	l := t.laneFrom(ctx)
	if l != nil && l.exit() {
		t.active.Add(-1)
	}

	t.mu.Lock()
	n, ok := t.running[op]
	switch {
	case !ok:
	case n <= 1:
		delete(t.running, op)
	default:
		t.running[op] = n - 1
	}
	t.mu.Unlock()

	if !ok {
		t.log.Debug("task action finished for operation that is not running",
			zap.Stringer("operation", op),
		)
		return
	}
	t.log.Debug("task action finished",
		zap.Uint64("lane", l.laneID()),
		zap.Stringer("operation", op),
		zap.Int("refs", n-1),
	)
}

// Track runs fn as a task action of operation op.
// ActionFinished is guaranteed to run when fn returns, panics, or calls
// runtime.Goexit. Panics are propagated.
func (t *Tracker) Track(ctx context.Context, op buildop.ID, fn func(context.Context) error) error {
	ctx = t.ActionStarting(ctx, op)
	defer t.ActionFinished(ctx, op)
	return fn(ctx)
}

// IsExecutingTask reports whether the worker identified by ctx is currently
// inside at least one task action. It never blocks.
func (t *Tracker) IsExecutingTask(ctx context.Context) bool {
	l := t.laneFrom(ctx)
	return l != nil && l.executing()
}

// RunningTaskOperations returns a point-in-time snapshot of the operations
// currently running inside a task action.
func (t *Tracker) RunningTaskOperations() OperationSet {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make(map[buildop.ID]struct{}, len(t.running))
	for id := range t.running {
		ids[id] = struct{}{}
	}
	return OperationSet{ids: ids}
}

// ActiveWorkers returns the number of workers currently inside a task action.
func (t *Tracker) ActiveWorkers() int {
	return int(t.active.Load())
}

// Fork returns a context for a new worker derived from ctx.
// The new worker starts outside any task action, regardless of the lane
// carried by ctx. Use it for goroutines that run their own task actions.
func (t *Tracker) Fork(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, laneKey{t}, (*lane)(nil))
}
