package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/logging"
)

type recordingExecutor struct {
	mu    sync.Mutex
	fired []string
	fail  map[string]bool
}

func (r *recordingExecutor) exec(ctx context.Context, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[taskID] {
		return fmt.Errorf("wipe failed")
	}
	r.fired = append(r.fired, taskID)
	return nil
}

func (r *recordingExecutor) firedTasks() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

func newTestScheduler(t *testing.T, exec Executor) (*Scheduler, *FileAlarmStore) {
	t.Helper()
	store, err := NewFileAlarmStore(t.TempDir())
	require.NoError(t, err)
	return New(store, exec, time.Minute, logging.Nop()), store
}

func TestFireDueExecutesOnlyDueAlarms(t *testing.T) {
	exec := &recordingExecutor{}
	s, _ := newTestScheduler(t, exec.exec)
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, "due", time.Now().Add(-time.Second)))
	require.NoError(t, s.Schedule(ctx, "future", time.Now().Add(time.Hour)))

	s.FireDue(ctx)

	assert.Equal(t, []string{"due"}, exec.firedTasks())
	assert.Equal(t, 1, s.PendingCount(ctx))
}

func TestFiredAlarmIsSingleShot(t *testing.T) {
	exec := &recordingExecutor{}
	s, _ := newTestScheduler(t, exec.exec)
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, "t1", time.Now().Add(-time.Second)))
	s.FireDue(ctx)
	s.FireDue(ctx)

	assert.Equal(t, []string{"t1"}, exec.firedTasks())
	assert.Equal(t, 0, s.PendingCount(ctx))
}

func TestFailedExecutionRetriesNextSweep(t *testing.T) {
	exec := &recordingExecutor{fail: map[string]bool{"t1": true}}
	s, _ := newTestScheduler(t, exec.exec)
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, "t1", time.Now().Add(-time.Second)))
	s.FireDue(ctx)
	assert.Empty(t, exec.firedTasks())
	assert.Equal(t, 1, s.PendingCount(ctx))

	exec.mu.Lock()
	exec.fail["t1"] = false
	exec.mu.Unlock()

	s.FireDue(ctx)
	assert.Equal(t, []string{"t1"}, exec.firedTasks())
	assert.Equal(t, 0, s.PendingCount(ctx))
}

func TestRescheduleOverwrites(t *testing.T) {
	exec := &recordingExecutor{}
	s, _ := newTestScheduler(t, exec.exec)
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, "t1", time.Now().Add(time.Hour)))
	require.NoError(t, s.Schedule(ctx, "t1", time.Now().Add(-time.Second)))
	assert.Equal(t, 1, s.PendingCount(ctx))

	s.FireDue(ctx)
	assert.Equal(t, []string{"t1"}, exec.firedTasks())
}

func TestAlarmsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store1, err := NewFileAlarmStore(dir)
	require.NoError(t, err)
	first := New(store1, func(context.Context, string) error { return nil }, time.Minute, logging.Nop())
	require.NoError(t, first.Schedule(ctx, "t1", time.Now().Add(-time.Second)))

	// A fresh store over the same directory sees the pending alarm.
	exec := &recordingExecutor{}
	store2, err := NewFileAlarmStore(dir)
	require.NoError(t, err)
	second := New(store2, exec.exec, time.Minute, logging.Nop())
	second.FireDue(ctx)

	assert.Equal(t, []string{"t1"}, exec.firedTasks())
}

func TestCancelRemovesPendingAlarm(t *testing.T) {
	exec := &recordingExecutor{}
	s, _ := newTestScheduler(t, exec.exec)
	ctx := context.Background()

	require.NoError(t, s.Schedule(ctx, "t1", time.Now().Add(-time.Second)))
	require.NoError(t, s.Cancel(ctx, "t1"))
	s.FireDue(ctx)
	assert.Empty(t, exec.firedTasks())
}

func TestAlarmValidate(t *testing.T) {
	a := Alarm{TaskID: "t1", RunAt: time.Now()}
	require.NoError(t, a.Validate())
	require.Error(t, (&Alarm{RunAt: time.Now()}).Validate())
	require.Error(t, (&Alarm{TaskID: "t1"}).Validate())
}
