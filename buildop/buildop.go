// Package buildop identifies units of tracked work within a build tree.
//
// Every task action (and every nested action) runs as a build operation.
// The current operation travels in context.Context, so a worker can always
// answer "which operation am I part of" without thread-local state.
package buildop

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ID is an opaque operation identifier. The zero value is Nil.
// IDs are comparable and usable as map keys.
type ID uuid.UUID

// Nil is the identifier of "no operation".
var Nil ID

// NewID returns a fresh random identifier.
func NewID() ID {
	return ID(uuid.New())
}

// String implements fmt.Stringer.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether id is the Nil identifier.
func (id ID) IsNil() bool {
	return id == Nil
}

// Parse parses the canonical string form of an ID.
func Parse(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, err
	}
	return ID(u), nil
}

// Operation describes one running unit of work.
type Operation struct {
	ID      ID
	Parent  ID // Nil for top-level operations.
	Name    string
	Started time.Time
}

type operationKey struct{}

// WithOperation returns a context whose current operation is op.
func WithOperation(ctx context.Context, op *Operation) context.Context {
	return context.WithValue(ctx, operationKey{}, op)
}

// FromContext returns the current operation, if any.
func FromContext(ctx context.Context) (*Operation, bool) {
	if ctx == nil {
		return nil, false
	}
	op, ok := ctx.Value(operationKey{}).(*Operation)
	return op, ok && op != nil
}

// Current returns the identifier of the current operation, or Nil.
func Current(ctx context.Context) ID {
	if op, ok := FromContext(ctx); ok {
		return op.ID
	}
	return Nil
}

// Registry keeps track of the operations started in one build tree.
// It is safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	ops map[ID]*Operation
	now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ops: make(map[ID]*Operation),
		now: time.Now,
	}
}

// Start begins a new operation as a child of the context's current operation
// and returns a context carrying it.
func (r *Registry) Start(ctx context.Context, name string) (context.Context, *Operation) {
	op := &Operation{
		ID:      NewID(),
		Parent:  Current(ctx),
		Name:    name,
		Started: r.now(),
	}
	r.mu.Lock()
	r.ops[op.ID] = op
	r.mu.Unlock()
	return WithOperation(ctx, op), op
}

// Finish forgets op. Finishing an unknown or nil operation is a no-op.
func (r *Registry) Finish(op *Operation) {
	if op == nil {
		return
	}
	r.mu.Lock()
	delete(r.ops, op.ID)
	r.mu.Unlock()
}

// Lookup returns a copy of the operation with the given id.
func (r *Registry) Lookup(id ID) (Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[id]
	if !ok {
		return Operation{}, false
	}
	return *op, true
}

// Len returns the number of operations that have started and not finished.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ops)
}
