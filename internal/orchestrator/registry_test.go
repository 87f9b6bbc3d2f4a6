package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	relayerrors "relay/internal/errors"
	"relay/internal/logging"
	"relay/internal/store"
	"relay/internal/task"
)

func newTestRegistry(t *testing.T, opts ...RegistryOption) (*Registry, *countingStore) {
	t.Helper()
	st := newCountingStore()
	opts = append([]RegistryOption{
		WithMetrics(MustNewMetrics(prometheus.NewRegistry())),
		WithRetryConfig(relayerrors.RetryConfig{
			MaxAttempts:  3,
			BaseDelay:    time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			JitterFactor: 0,
		}),
	}, opts...)
	r := NewRegistry(Config{}, st, &fakeAgent{}, &fakeNotifier{}, &fakeCleanup{}, logging.Nop(), opts...)
	return r, st
}

func TestRegistryReturnsOneInstancePerKey(t *testing.T) {
	r, _ := newTestRegistry(t)

	a := r.Get("t1")
	b := r.Get("t1")
	c := r.Get("t2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestRegistryGetIsSafeConcurrently(t *testing.T) {
	r, _ := newTestRegistry(t)

	var wg sync.WaitGroup
	instances := make([]*Orchestrator, 16)
	for i := range instances {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			instances[i] = r.Get("shared")
		}(i)
	}
	wg.Wait()

	for _, inst := range instances {
		assert.Same(t, instances[0], inst)
	}
}

func TestWithRetryRetriesTransientErrors(t *testing.T) {
	r, _ := newTestRegistry(t)

	calls := 0
	err := r.WithRetry(context.Background(), "t1", func(ctx context.Context, inst *Orchestrator) error {
		calls++
		if calls == 1 {
			return relayerrors.Transient(errors.New("instance busy"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	r, _ := newTestRegistry(t)

	calls := 0
	err := r.WithRetry(context.Background(), "t1", func(ctx context.Context, inst *Orchestrator) error {
		calls++
		return relayerrors.Permanent(errors.New("bad input"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCleanupExecutorWipesAndForgets(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	inst := r.Get("t1")
	_, err := inst.Start(ctx, startParams())
	require.NoError(t, err)
	inst.mu.Lock()
	require.NoError(t, inst.updateStatusLocked(ctx, statusUpdate{status: task.StatusRunning}))
	require.NoError(t, inst.updateStatusLocked(ctx, statusUpdate{status: task.StatusCompleted}))
	inst.mu.Unlock()

	require.NoError(t, r.CleanupExecutor()(ctx, "t1"))

	_, err = st.Load(ctx, "t1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A later task reusing the key gets a fresh instance.
	assert.NotSame(t, inst, r.Get("t1"))
}

func TestCleanupExecutorInvokesWipeCallback(t *testing.T) {
	var wiped []string
	r, _ := newTestRegistry(t, WithWipeCallback(func(taskID string) {
		wiped = append(wiped, taskID)
	}))
	ctx := context.Background()

	inst := r.Get("t1")
	_, err := inst.Start(ctx, startParams())
	require.NoError(t, err)
	inst.mu.Lock()
	require.NoError(t, inst.updateStatusLocked(ctx, statusUpdate{status: task.StatusRunning}))
	require.NoError(t, inst.updateStatusLocked(ctx, statusUpdate{status: task.StatusCancelled}))
	inst.mu.Unlock()

	require.NoError(t, r.CleanupExecutor()(ctx, "t1"))
	assert.Equal(t, []string{"t1"}, wiped)
}

func TestCleanupExecutorMissingStateIsNoop(t *testing.T) {
	r, _ := newTestRegistry(t)
	require.NoError(t, r.CleanupExecutor()(context.Background(), "ghost"))
}
