package eval

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Wei-Shaw/evaldepot/internal/lock"
	"github.com/Wei-Shaw/evaldepot/internal/orchestrator"
	"github.com/Wei-Shaw/evaldepot/internal/pool"
)

func testPool(t *testing.T, hardCap int, seedCount int) *pool.DeploymentPool {
	t.Helper()
	store := newFakePoolStore()
	for i := 0; i < seedCount; i++ {
		seedHibernated(store, "p", string(rune('a'+i)))
	}
	l := lock.New(newFakeLockStore(), lock.Config{
		AcquireStoreRetry: 2,
		PollBase:          5 * time.Millisecond,
		PollCap:           20 * time.Millisecond,
	})
	cfg := pool.Config{
		PoolName:          "p",
		HardCap:           hardCap,
		AllocationTTL:     time.Minute,
		PoolLockTTL:       time.Second,
		OrchestratorRetry: 2,
		IdleKeepalive:     time.Hour,
	}
	return pool.New(store, orchestrator.NewFake(), l, cfg)
}

func TestDriver_RunFansOutWithinCapacity(t *testing.T) {
	p := testPool(t, 3, 0)
	d := New(p, Config{SessionName: "s1", MaxConcurrentTasks: 3})

	var ran int32
	tasks := make([]Task, 6)
	for i := range tasks {
		tasks[i] = Task{
			ID: string(rune('a' + i)),
			Run: func(ctx context.Context, h *pool.Handle) error {
				atomic.AddInt32(&ran, 1)
				time.Sleep(5 * time.Millisecond)
				return nil
			},
		}
	}

	results, err := d.Run(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, 6)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}
	assert.EqualValues(t, 6, ran)
}

func TestDriver_ReleasesOnTaskError(t *testing.T) {
	p := testPool(t, 1, 0)
	d := New(p, Config{SessionName: "s2", MaxConcurrentTasks: 1})

	tasks := []Task{
		{ID: "fails", Run: func(ctx context.Context, h *pool.Handle) error { return errTaskFailure }},
		{ID: "succeeds", Run: func(ctx context.Context, h *pool.Handle) error { return nil }},
	}

	results, err := d.Run(context.Background(), tasks)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, errTaskFailure)
	assert.NoError(t, results[1].Err, "the pool slot must be released even though the first task failed")
}

func TestDriver_ReleasesOnTaskPanic(t *testing.T) {
	p := testPool(t, 1, 0)
	d := New(p, Config{SessionName: "s3", MaxConcurrentTasks: 1})

	tasks := []Task{
		{ID: "panics", Run: func(ctx context.Context, h *pool.Handle) error { panic("boom") }},
		{ID: "succeeds", Run: func(ctx context.Context, h *pool.Handle) error { return nil }},
	}

	results, err := d.Run(context.Background(), tasks)
	require.NoError(t, err, "a panicking task must not abort the run")
	require.Len(t, results, 2)
	require.Error(t, results[0].Err)
	assert.Contains(t, results[0].Err.Error(), "panicked")
	assert.NoError(t, results[1].Err, "the pool slot must be released even though the first task panicked")
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

var errTaskFailure = errBoom{}
