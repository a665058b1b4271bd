// Package integrity protects build-model state from being changed by task
// actions. The build model is fixed once execution starts; a task action
// that mutates it makes the build order dependent.
package integrity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// ErrMutationDuringExecution is returned when build-model state is changed
// from inside a task action.
var ErrMutationDuringExecution = errors.New("build model mutated while a task action is executing")

// ExecutionContext reports whether the worker identified by ctx is inside a
// task action.
type ExecutionContext interface {
	IsExecutingTask(ctx context.Context) bool
}

// Mode controls what the guard does about a violation.
type Mode string

const (
	// ModeFail rejects the mutation with ErrMutationDuringExecution.
	ModeFail Mode = "fail"
	// ModeWarn logs the violation and allows the mutation.
	ModeWarn Mode = "warn"
	// ModeOff disables the check.
	ModeOff Mode = "off"
)

// ParseMode parses a mode name. The empty string means ModeFail.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFail:
		return ModeFail, nil
	case ModeWarn:
		return ModeWarn, nil
	case ModeOff:
		return ModeOff, nil
	default:
		return "", fmt.Errorf("invalid integrity mode %q: must be fail, warn, or off", s)
	}
}

// Guard checks mutations against the execution context.
type Guard struct {
	exec ExecutionContext
	mode Mode
	log  *zap.Logger
}

// NewGuard creates a guard. A nil logger discards output.
func NewGuard(exec ExecutionContext, mode Mode, log *zap.Logger) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	if mode == "" {
		mode = ModeFail
	}
	return &Guard{exec: exec, mode: mode, log: log}
}

// Mode returns the guard's mode.
func (g *Guard) Mode() Mode {
	return g.mode
}

// CheckMutation returns an error wrapping ErrMutationDuringExecution if
// target may not be changed from ctx.
func (g *Guard) CheckMutation(ctx context.Context, target string) error {
	if g == nil || g.mode == ModeOff || g.exec == nil {
		return nil
	}
	if !g.exec.IsExecutingTask(ctx) {
		return nil
	}
	if g.mode == ModeWarn {
		g.log.Warn(ErrMutationDuringExecution.Error(), zap.String("target", target))
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMutationDuringExecution, target)
}
