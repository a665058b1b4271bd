package bldtrack

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/goyek/goyek/v3"
	"github.com/goyek/x/cmd"
	"golang.org/x/term"
)

// WaitDelay is the grace period given to child processes to handle
// termination signals before being force-killed.
const WaitDelay = 5 * time.Second

var (
	colorEnvOnce sync.Once
	colorEnvVars []string
)

// colorForceEnvVars are the environment variables set to force color output.
var colorForceEnvVars = []string{
	"FORCE_COLOR=1",
	"CLICOLOR_FORCE=1",
	"COLORTERM=truecolor",
}

// computeColorEnv returns the color env vars to add to child processes.
func computeColorEnv(isTTY, noColorSet bool) []string {
	// https://no-color.org/
	if noColorSet || !isTTY {
		return nil
	}
	return colorForceEnvVars
}

func initColorEnv() {
	_, noColor := os.LookupEnv("NO_COLOR")
	colorEnvVars = computeColorEnv(term.IsTerminal(int(os.Stdout.Fd())), noColor)
}

// Exec runs cmdLine from a task action using goyek/x/cmd.
// Output goes to the output in a.Context(), so it is buffered when the
// action runs under Parallel.
// The process start is reported to the build tree's input recorder.
func Exec(a *goyek.A, cmdLine string, opts ...cmd.Option) bool {
	a.Helper()
	ctx := a.Context()
	if bt := FromContext(ctx); bt != nil {
		bt.inputs.ProcessStarted(ctx, cmdLine, a.Name())
	}

	out := OutputFromContext(ctx)
	base := []cmd.Option{cmd.Stdout(out.Stdout), cmd.Stderr(out.Stderr)}
	for _, kv := range colorEnv() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			base = append(base, cmd.Env(k, v))
		}
	}
	return cmd.Exec(a, cmdLine, append(base, opts...)...)
}

// Command creates an exec.Cmd with stdout/stderr connected to the output in
// ctx and graceful shutdown configured.
//
// When the context is cancelled, the command receives SIGINT first
// (allowing graceful shutdown), then SIGKILL after WaitDelay.
//
// Starting a process while the build is being configured (outside any task
// action) is recorded as a configuration input of consumer.
func Command(ctx context.Context, consumer, name string, args ...string) *exec.Cmd {
	if bt := FromContext(ctx); bt != nil {
		bt.inputs.ProcessStarted(ctx, strings.Join(append([]string{name}, args...), " "), consumer)
	}

	c := exec.CommandContext(ctx, name, args...)
	c.Env = append(os.Environ(), colorEnv()...)
	c.Cancel = func() error {
		return c.Process.Signal(os.Interrupt)
	}
	c.WaitDelay = WaitDelay

	out := OutputFromContext(ctx)
	c.Stdout = out.Stdout
	c.Stderr = out.Stderr
	return c
}

func colorEnv() []string {
	colorEnvOnce.Do(initColorEnv)
	return colorEnvVars
}
