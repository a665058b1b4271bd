package inputs

import (
	"context"
	"sync"
	"testing"

	"github.com/fredrikaverpil/bldtrack/buildop"
	"github.com/fredrikaverpil/bldtrack/tracker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func fakeEnv(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestRecorder_EnvOutsideTaskIsRecorded(t *testing.T) {
	tr := tracker.New()
	r := NewRecorder(tr, WithLookup(fakeEnv(map[string]string{"GOFLAGS": "-mod=mod"})))

	ctx := context.Background()
	assert.Equal(t, "-mod=mod", r.Getenv(ctx, "GOFLAGS", "golang"))
	_, ok := r.LookupEnv(ctx, "MISSING", "golang")
	assert.False(t, ok)

	assert.Equal(t, []Input{
		{Kind: KindEnv, Key: "GOFLAGS", Value: "-mod=mod", Present: true, Consumer: "golang"},
		{Kind: KindEnv, Key: "MISSING", Present: false, Consumer: "golang"},
	}, r.Inputs())
	assert.Empty(t, r.Problems())
}

func TestRecorder_EnvInsideTaskIsIgnored(t *testing.T) {
	tr := tracker.New()
	r := NewRecorder(tr, WithLookup(fakeEnv(map[string]string{"CI": "true"})))

	op := buildop.NewID()
	err := tr.Track(context.Background(), op, func(ctx context.Context) error {
		assert.Equal(t, "true", r.Getenv(ctx, "CI", "test"))
		r.ProcessStarted(ctx, "go test ./...", "test")
		return nil
	})
	require.NoError(t, err)

	assert.Empty(t, r.Inputs())
	assert.Empty(t, r.Problems())
}

func TestRecorder_ProcessOutsideTaskIsProblem(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRecorder(tracker.New(), WithLogger(zap.New(core)))

	r.ProcessStarted(context.Background(), "git rev-parse HEAD", "version")

	require.Len(t, r.Problems(), 1)
	assert.Equal(t, "git rev-parse HEAD", r.Problems()[0].Key)
	assert.Equal(t, "version", r.Problems()[0].Consumer)
	require.Len(t, r.Inputs(), 1)
	assert.Equal(t, KindProcess, r.Inputs()[0].Kind)
	assert.Equal(t, 1, logs.FilterMessage("external process started during configuration").Len())
}

func TestRecorder_Deduplicates(t *testing.T) {
	r := NewRecorder(nil, WithLookup(fakeEnv(map[string]string{"HOME": "/home/gopher"})))

	for range 3 {
		r.Getenv(context.Background(), "HOME", "paths")
	}
	r.Getenv(context.Background(), "HOME", "other")

	assert.Len(t, r.Inputs(), 2, "same key from different consumers is recorded per consumer")
}

func TestRecorder_Disabled(t *testing.T) {
	r := NewRecorder(nil, Disabled(), WithLookup(fakeEnv(map[string]string{"A": "1"})))

	assert.Equal(t, "1", r.Getenv(context.Background(), "A", "x"))
	r.ProcessStarted(context.Background(), "make", "x")

	assert.Empty(t, r.Inputs())
	assert.Empty(t, r.Problems())
}

func TestRecorder_Nil(t *testing.T) {
	var r *Recorder
	t.Setenv("BLDTRACK_NIL_RECORDER", "yes")

	assert.Equal(t, "yes", r.Getenv(context.Background(), "BLDTRACK_NIL_RECORDER", "x"))
	r.ProcessStarted(context.Background(), "make", "x")
	assert.Nil(t, r.Inputs())
	assert.Nil(t, r.Problems())
}

func TestRecorder_Concurrent(t *testing.T) {
	tr := tracker.New()
	r := NewRecorder(tr, WithLookup(fakeEnv(map[string]string{"K": "v"})))

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Go(func() {
			if i%2 == 0 {
				r.Getenv(context.Background(), "K", "config")
				return
			}
			_ = tr.Track(context.Background(), buildop.NewID(), func(ctx context.Context) error {
				r.Getenv(ctx, "K", "task")
				return nil
			})
		})
	}
	wg.Wait()

	require.Len(t, r.Inputs(), 1)
	assert.Equal(t, "config", r.Inputs()[0].Consumer)
}
