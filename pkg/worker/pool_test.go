package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jzx17/pipeoffload/internal/testutils"
	"github.com/jzx17/pipeoffload/pkg/types"
)

func TestNewPoolDefaults(t *testing.T) {
	p, err := NewPool(nil)
	require.NoError(t, err)

	assert.Equal(t, runtime.GOMAXPROCS(0), p.Size())
	assert.Equal(t, 2*p.Size(), p.Stats().QueueCapacity)
	assert.False(t, p.IsRunning())
}

func TestNewPoolRejectsNegativeSizes(t *testing.T) {
	_, err := NewPool(&Config{Size: -1})
	assert.Error(t, err)

	_, err = NewPool(&Config{Size: 1, QueueSize: -1})
	assert.Error(t, err)
}

func TestPoolLifecycle(t *testing.T) {
	p, err := NewPool(&Config{Size: 2, QueueSize: 4})
	require.NoError(t, err)

	assert.ErrorContains(t, p.Submit(NewBasicTask(func(context.Context) error { return nil })), "not started")

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	assert.ErrorContains(t, p.Start(context.Background()), "already running")
	assert.ErrorContains(t, p.Submit(nil), "nil")

	require.NoError(t, p.Stop())
	assert.ErrorContains(t, p.Stop(), "not running")

	require.NoError(t, p.Close())
	assert.True(t, p.IsClosed())
	assert.ErrorContains(t, p.Start(context.Background()), "closed")
	assert.ErrorContains(t, p.Submit(NewBasicTask(nil)), "closed")
	assert.NoError(t, p.Close(), "repeated close")
}

func TestPoolRunsSubmittedTasks(t *testing.T) {
	p, err := NewPool(&Config{Size: 4, QueueSize: 16, SubmitTimeout: time.Second})
	require.NoError(t, err)
	ctx := testutils.Context(t, 5*time.Second)
	require.NoError(t, p.Start(ctx))
	defer p.Close()

	var wg sync.WaitGroup
	var executed atomic.Int64
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(NewBasicTask(func(context.Context) error {
			defer wg.Done()
			executed.Add(1)
			return nil
		})))
	}
	wg.Wait()

	assert.Equal(t, int64(50), executed.Load())
	assert.Eventually(t, func() bool {
		var processed int64
		for _, s := range p.WorkerStats() {
			processed += s.TotalProcessed
		}
		return processed == 50
	}, time.Second, time.Millisecond)
}

func TestPoolSubmitFailsFastWhenFull(t *testing.T) {
	p, err := NewPool(&Config{Size: 1, QueueSize: 1})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.SubmitWithTimeout(NewBasicTask(func(context.Context) error {
		close(started)
		<-release
		return nil
	}), 0))
	<-started

	require.NoError(t, p.SubmitWithTimeout(NewBasicTask(func(context.Context) error { return nil }), 0))
	err = p.SubmitWithTimeout(NewBasicTask(func(context.Context) error { return nil }), 0)
	assert.ErrorIs(t, err, types.ErrWorkerPoolFull)

	stats := p.Stats()
	assert.Equal(t, 1, stats.QueueSize)
	assert.Equal(t, 1, stats.ActiveWorkers)
	close(release)
}

func TestPoolSubmitTimesOut(t *testing.T) {
	p, err := NewPool(&Config{Size: 1, QueueSize: 1})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))
	defer p.Close()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.SubmitWithTimeout(NewBasicTask(func(context.Context) error {
		close(started)
		<-release
		return nil
	}), 0))
	<-started
	require.NoError(t, p.SubmitWithTimeout(NewBasicTask(func(context.Context) error { return nil }), 0))

	err = p.SubmitWithTimeout(NewBasicTask(func(context.Context) error { return nil }), 20*time.Millisecond)
	assert.ErrorIs(t, err, types.ErrTimeout)
	close(release)
}
