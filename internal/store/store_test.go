package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relay/internal/task"
)

func sampleRecord(taskID string) *task.Record {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &task.Record{
		TaskID:    taskID,
		AuthToken: "tok",
		Input:     task.Input{Repository: "acme/widgets", Prompt: "review"},
		Owner:     task.Owner{Type: task.OwnerUser, ID: "u1", UserID: "u1"},
		Status:    task.StatusRunning,
		StartedAt: &started,
		Events: []task.EventLogEntry{
			{Timestamp: started, EventType: "status", Message: "starting"},
		},
	}
}

// Every backend must satisfy the same contract.
func runStateStoreContract(t *testing.T, s StateStore) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	rec := sampleRecord("t1")
	require.NoError(t, s.Save(ctx, rec))

	loaded, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", loaded.TaskID)
	assert.Equal(t, task.StatusRunning, loaded.Status)
	assert.Equal(t, "tok", loaded.AuthToken)
	assert.Equal(t, "acme/widgets", loaded.Input.Repository)
	require.Len(t, loaded.Events, 1)
	assert.Equal(t, "status", loaded.Events[0].EventType)
	require.NotNil(t, loaded.StartedAt)
	assert.True(t, loaded.StartedAt.Equal(*rec.StartedAt))

	// Overwrite is allowed; the orchestrator is the single writer.
	loaded.Status = task.StatusCompleted
	loaded.Events = nil
	require.NoError(t, s.Save(ctx, loaded))
	again, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, again.Status)
	assert.Empty(t, again.Events)

	require.NoError(t, s.Save(ctx, sampleRecord("t2")))
	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids)

	require.NoError(t, s.Delete(ctx, "t1"))
	_, err = s.Load(ctx, "t1")
	assert.True(t, errors.Is(err, ErrNotFound))

	// Deleting a missing record is not an error.
	require.NoError(t, s.Delete(ctx, "t1"))
}

func TestFileStoreContract(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	runStateStoreContract(t, s)
}

func TestMemStoreContract(t *testing.T) {
	runStateStoreContract(t, NewMemStore())
}

func TestGormStoreContract(t *testing.T) {
	s, err := NewGormStore(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	runStateStoreContract(t, s)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.Save(ctx, sampleRecord("t1")))

	s2, err := NewFileStore(dir)
	require.NoError(t, err)
	rec, err := s2.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, task.StatusRunning, rec.Status)
}

func TestGormStoreSurvivesReopen(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "relay.db")
	ctx := context.Background()

	s1, err := NewGormStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s1.Save(ctx, sampleRecord("t1")))

	s2, err := NewGormStore(dsn)
	require.NoError(t, err)
	rec, err := s2.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", rec.TaskID)
}
