// Package inputs records what a build reads from its environment while it
// is being configured.
//
// Environment variables read and external processes started outside a task
// action are inputs of the build configuration: a cached configuration is
// only valid while they stay the same. The same accesses made inside a task
// action belong to that task's execution and are ignored.
package inputs

import (
	"context"
	"os"
	"slices"
	"sync"

	"go.uber.org/zap"
)

// ExecutionContext reports whether the worker identified by ctx is inside a
// task action.
type ExecutionContext interface {
	IsExecutingTask(ctx context.Context) bool
}

// Kind is the kind of a recorded access.
type Kind string

const (
	// KindEnv is an environment variable lookup.
	KindEnv Kind = "env"
	// KindProcess is an external process start.
	KindProcess Kind = "process"
)

// Input is one configuration input.
type Input struct {
	Kind     Kind   `json:"kind"`
	Key      string `json:"key"`
	Value    string `json:"value,omitempty"`
	Present  bool   `json:"present"`
	Consumer string `json:"consumer,omitempty"`
}

// Problem is an access that makes the configuration unsafe to reuse.
type Problem struct {
	Kind     Kind   `json:"kind"`
	Key      string `json:"key"`
	Consumer string `json:"consumer,omitempty"`
	Message  string `json:"message"`
}

// Recorder collects configuration inputs. It is safe for concurrent use.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	exec     ExecutionContext
	lookup   func(string) (string, bool)
	log      *zap.Logger
	disabled bool

	mu       sync.Mutex
	inputs   []Input
	seen     map[Input]bool
	problems []Problem
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Recorder) {
		if log != nil {
			r.log = log
		}
	}
}

// WithLookup replaces os.LookupEnv, mainly for tests.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(r *Recorder) {
		if lookup != nil {
			r.lookup = lookup
		}
	}
}

// Disabled turns the recorder into a pass-through.
func Disabled() Option {
	return func(r *Recorder) {
		r.disabled = true
	}
}

// NewRecorder creates a recorder that consults exec to tell configuration
// from task execution.
func NewRecorder(exec ExecutionContext, opts ...Option) *Recorder {
	r := &Recorder{
		exec:   exec,
		lookup: os.LookupEnv,
		log:    zap.NewNop(),
		seen:   make(map[Input]bool),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Getenv returns the value of the environment variable key,
// recording it as an input when read outside a task action.
func (r *Recorder) Getenv(ctx context.Context, key, consumer string) string {
	v, _ := r.LookupEnv(ctx, key, consumer)
	return v
}

// LookupEnv is like os.LookupEnv but records the access as Getenv does.
func (r *Recorder) LookupEnv(ctx context.Context, key, consumer string) (string, bool) {
	if r == nil {
		return os.LookupEnv(key)
	}
	value, ok := r.lookup(key)
	if r.configuring(ctx) {
		r.record(Input{
			Kind:     KindEnv,
			Key:      key,
			Value:    value,
			Present:  ok,
			Consumer: consumer,
		})
	}
	return value, ok
}

// ProcessStarted reports that consumer is starting command.
// Outside a task action this is recorded as both an input and a problem:
// the process output cannot be tracked as a configuration input.
func (r *Recorder) ProcessStarted(ctx context.Context, command, consumer string) {
	if r == nil || !r.configuring(ctx) {
		return
	}
	r.record(Input{
		Kind:     KindProcess,
		Key:      command,
		Present:  true,
		Consumer: consumer,
	})

	p := Problem{
		Kind:     KindProcess,
		Key:      command,
		Consumer: consumer,
		Message:  "external process started during configuration",
	}
	r.mu.Lock()
	r.problems = append(r.problems, p)
	r.mu.Unlock()

	r.log.Warn(p.Message,
		zap.String("command", command),
		zap.String("consumer", consumer),
	)
}

// Inputs returns the recorded inputs in the order they were first seen.
func (r *Recorder) Inputs() []Input {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.inputs)
}

// Problems returns the recorded problems.
func (r *Recorder) Problems() []Problem {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.problems)
}

// configuring reports whether an access from ctx counts as configuration.
func (r *Recorder) configuring(ctx context.Context) bool {
	if r.disabled {
		return false
	}
	if r.exec != nil && r.exec.IsExecutingTask(ctx) {
		return false
	}
	return true
}

func (r *Recorder) record(in Input) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[in] {
		return
	}
	r.seen[in] = true
	r.inputs = append(r.inputs, in)
	r.log.Debug("configuration input",
		zap.String("kind", string(in.Kind)),
		zap.String("key", in.Key),
		zap.String("consumer", in.Consumer),
	)
}
