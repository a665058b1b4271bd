// Package bldtrack runs goyek tasks inside a build tree that knows, at any
// moment, which workers are inside a task action and which build operations
// are running as part of one.
//
// A BuildTree is created once per build and installed on a goyek flow:
//
//	bt, err := bldtrack.New(cfg)
//	flow.Use(bt.Middleware)
//
// Task actions see the tree through a.Context():
//
//	bldtrack.IsExecutingTask(a.Context()) // true
package bldtrack

import (
	"github.com/fredrikaverpil/bldtrack/buildop"
	"github.com/fredrikaverpil/bldtrack/inputs"
	"github.com/fredrikaverpil/bldtrack/integrity"
	"github.com/fredrikaverpil/bldtrack/tracker"
	"go.uber.org/zap"
)

// BuildTree holds state shared across one build tree.
// It is created once and passed to the engine and to every consumer.
// All fields are set at construction and safe for concurrent use.
type BuildTree struct {
	cfg      Config
	log      *zap.Logger
	tracker  *tracker.Tracker
	ops      *buildop.Registry
	inputs   *inputs.Recorder
	guard    *integrity.Guard
	settings *integrity.Settings
}

// Option configures a BuildTree.
type Option func(*BuildTree)

// WithLogger sets the logger. The default discards all output.
func WithLogger(log *zap.Logger) Option {
	return func(bt *BuildTree) {
		if log != nil {
			bt.log = log
		}
	}
}

// New creates a build tree from cfg.
func New(cfg Config, opts ...Option) (*BuildTree, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	bt := &BuildTree{
		cfg: cfg,
		log: zap.NewNop(),
		ops: buildop.NewRegistry(),
	}
	for _, opt := range opts {
		opt(bt)
	}

	bt.tracker = tracker.New(tracker.WithLogger(bt.log.Named("tracker")))

	recorderOpts := []inputs.Option{inputs.WithLogger(bt.log.Named("inputs"))}
	if !cfg.RecordInputs {
		recorderOpts = append(recorderOpts, inputs.Disabled())
	}
	bt.inputs = inputs.NewRecorder(bt.tracker, recorderOpts...)

	bt.guard = integrity.NewGuard(bt.tracker, cfg.Integrity, bt.log.Named("integrity"))
	bt.settings = integrity.NewSettings(bt.guard)
	return bt, nil
}

// Config returns the validated configuration.
func (bt *BuildTree) Config() Config {
	return bt.cfg
}

// Logger returns the build tree's logger.
func (bt *BuildTree) Logger() *zap.Logger {
	return bt.log
}

// Tracker returns the execution-context tracker.
func (bt *BuildTree) Tracker() *tracker.Tracker {
	return bt.tracker
}

// Operations returns the registry of running build operations.
func (bt *BuildTree) Operations() *buildop.Registry {
	return bt.ops
}

// Inputs returns the configuration input recorder.
func (bt *BuildTree) Inputs() *inputs.Recorder {
	return bt.inputs
}

// Settings returns the guarded build-model settings.
func (bt *BuildTree) Settings() *integrity.Settings {
	return bt.settings
}
