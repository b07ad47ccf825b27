package job

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/lk2023060901/underworld/pkg/logger"
)

type fakeReleaser struct {
	calls   atomic.Int64
	err     error
	block   chan struct{}
	sawDead atomic.Bool
}

func (f *fakeReleaser) ReleaseExpired(ctx context.Context) (int, error) {
	f.calls.Inc()
	if _, ok := ctx.Deadline(); ok {
		f.sawDead.Store(true)
	}
	if f.block != nil {
		<-f.block
	}
	return 1, f.err
}

func TestSweepCallsReleaser(t *testing.T) {
	r := &fakeReleaser{}
	s, err := NewReleaseSweeper(nil, r, logger.NewNoop())
	require.NoError(t, err)

	s.Sweep()
	assert.Equal(t, int64(1), r.calls.Load())
	assert.True(t, r.sawDead.Load(), "sweep runs with a timeout")

	r.err = errors.New("db down")
	assert.NotPanics(t, s.Sweep)
}

func TestInvalidSpec(t *testing.T) {
	_, err := NewReleaseSweeper(&Config{Schedule: "every now and then"}, &fakeReleaser{}, logger.NewNoop())
	assert.Error(t, err)
}

func TestSweeperSchedules(t *testing.T) {
	r := &fakeReleaser{}
	s, err := NewReleaseSweeper(&Config{Schedule: "@every 1s"}, r, logger.NewNoop())
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.Eventually(t, func() bool { return r.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)
	require.NoError(t, s.Stop())
}

func TestSweeperSkipsOverlappingRuns(t *testing.T) {
	r := &fakeReleaser{block: make(chan struct{})}
	s, err := NewReleaseSweeper(&Config{Schedule: "@every 1s"}, r, logger.NewNoop())
	require.NoError(t, err)

	require.NoError(t, s.Start())
	time.Sleep(2500 * time.Millisecond)
	assert.Equal(t, int64(1), r.calls.Load())

	close(r.block)
	require.NoError(t, s.Stop())
}
