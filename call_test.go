package bldtrack

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fredrikaverpil/bldtrack/buildop"
	"github.com/fredrikaverpil/bldtrack/inputs"
	"github.com/goyek/goyek/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCall_NestedOnSameWorker(t *testing.T) {
	bt := newTestTree(t, DefaultConfig())
	flow := newTestFlow(bt)

	var (
		outer, inner buildop.ID
		parent       buildop.ID
		during       int
		after        bool
		afterOps     int
	)
	flow.Define(goyek.Task{
		Name: "build",
		Action: func(a *goyek.A) {
			outer = buildop.Current(a.Context())
			err := bt.Call(a.Context(), "generate", func(ctx context.Context) error {
				op, _ := buildop.FromContext(ctx)
				inner = op.ID
				parent = op.Parent
				during = bt.Tracker().RunningTaskOperations().Len()
				return nil
			})
			if err != nil {
				a.Fatal(err)
			}
			after = IsExecutingTask(a.Context())
			afterOps = bt.Tracker().RunningTaskOperations().Len()
		},
	})

	require.NoError(t, flow.Execute(context.Background(), []string{"build"}))

	assert.NotEqual(t, outer, inner)
	assert.Equal(t, outer, parent)
	assert.Equal(t, 2, during)
	assert.True(t, after, "inner finish must not clear the outer action")
	assert.Equal(t, 1, afterOps)
	assert.Zero(t, bt.Tracker().ActiveWorkers())
}

func TestCall_OutsideTaskAction(t *testing.T) {
	bt := newTestTree(t, DefaultConfig())
	ctx := context.Background()

	wantErr := errors.New("boom")
	var inside bool
	err := bt.Call(ctx, "configure", func(ctx context.Context) error {
		inside = IsExecutingTask(ctx)
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	assert.True(t, inside)
	assert.False(t, IsExecutingTask(ctx))
	assert.True(t, bt.Tracker().RunningTaskOperations().IsEmpty())
	assert.Zero(t, bt.Operations().Len())
}

func TestParallel(t *testing.T) {
	bt := newTestTree(t, DefaultConfig())
	var stdout bytes.Buffer
	ctx := WithOutput(context.Background(), &Output{Stdout: &stdout, Stderr: &stdout})

	b := newBarrier(3)
	var (
		mu      sync.Mutex
		workers int
	)
	action := func(name string) Action {
		return Do(name, func(ctx context.Context) error {
			if !b.wait(5 * time.Second) {
				return errors.New("actions did not run concurrently")
			}
			mu.Lock()
			workers = max(workers, bt.Tracker().ActiveWorkers())
			mu.Unlock()
			_, err := OutputFromContext(ctx).Println(name)
			return err
		})
	}

	err := bt.Parallel(ctx, action("a"), action("b"), action("c"))
	require.NoError(t, err)

	assert.Equal(t, 3, workers)
	lines := strings.Split(strings.TrimSuffix(stdout.String(), "\n"), "\n")
	assert.ElementsMatch(t, []string{"[a] a", "[b] b", "[c] c"}, lines)
	assert.Zero(t, bt.Tracker().ActiveWorkers())
	assert.True(t, bt.Tracker().RunningTaskOperations().IsEmpty())
}

func TestParallel_FirstError(t *testing.T) {
	bt := newTestTree(t, DefaultConfig())

	wantErr := errors.New("lint failed")
	err := bt.Parallel(context.Background(),
		Do("ok", func(context.Context) error { return nil }),
		Do("lint", func(context.Context) error { return wantErr }),
	)

	require.ErrorIs(t, err, wantErr)
	assert.Zero(t, bt.Tracker().ActiveWorkers())
	assert.Zero(t, bt.Operations().Len())
}

func TestParallel_Trivial(t *testing.T) {
	bt := newTestTree(t, DefaultConfig())

	require.NoError(t, bt.Parallel(context.Background()))

	var ran bool
	require.NoError(t, bt.Parallel(context.Background(), Do("one", func(context.Context) error {
		ran = true
		return nil
	})))
	assert.True(t, ran)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := bt.Parallel(ctx, Do("never", func(context.Context) error {
		t.Error("action ran on a canceled context")
		return nil
	}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommand_RecordsConfigurationProcess(t *testing.T) {
	bt := newTestTree(t, DefaultConfig())
	ctx := withBuildTree(context.Background(), bt)

	_ = Command(ctx, "plugin", "git", "rev-parse", "HEAD")

	require.NoError(t, bt.Call(ctx, "task", func(ctx context.Context) error {
		_ = Command(ctx, "task", "go", "build", "./...")
		return nil
	}))

	got := bt.Inputs().Inputs()
	require.Len(t, got, 1)
	assert.Equal(t, inputs.KindProcess, got[0].Kind)
	assert.Equal(t, "git rev-parse HEAD", got[0].Key)
	assert.Equal(t, "plugin", got[0].Consumer)
	assert.Len(t, bt.Inputs().Problems(), 1)
}

func TestComputeColorEnv(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		isTTY      bool
		noColorSet bool
		want       bool
	}{
		{"tty", true, false, true},
		{"not a tty", false, false, false},
		{"NO_COLOR on tty", true, true, false},
		{"NO_COLOR without tty", false, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := computeColorEnv(tt.isTTY, tt.noColorSet)
			if (len(got) > 0) != tt.want {
				t.Errorf("computeColorEnv(%v, %v) = %v", tt.isTTY, tt.noColorSet, got)
			}
		})
	}
}

func TestDiagnostics(t *testing.T) {
	bt := newTestTree(t, DefaultConfig())
	flow := newTestFlow(bt)

	var (
		diag Diagnostics
		buf  bytes.Buffer
	)
	flow.Define(goyek.Task{
		Name: "report",
		Action: func(a *goyek.A) {
			_ = bt.Call(a.Context(), "collect", func(context.Context) error {
				diag = bt.Diagnostics()
				return bt.WriteDiagnostics(&buf)
			})
		},
	})
	require.NoError(t, flow.Execute(context.Background(), []string{"report"}))

	assert.Equal(t, 1, diag.ActiveWorkers)
	require.Len(t, diag.Running, 2)
	names := []string{diag.Running[0].Name, diag.Running[1].Name}
	assert.ElementsMatch(t, []string{"report", "collect"}, names)
	for _, ro := range diag.Running {
		if ro.Name == "collect" {
			assert.NotEmpty(t, ro.Parent)
		} else {
			assert.Empty(t, ro.Parent)
		}
	}
	assert.Contains(t, buf.String(), `"activeWorkers": 1`)

	after := bt.Diagnostics()
	assert.Zero(t, after.ActiveWorkers)
	assert.Empty(t, after.Running)
}
