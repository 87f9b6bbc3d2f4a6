package store

import (
	"context"
	"fmt"

	"relay/internal/task"
)

// ErrNotFound is returned when no state exists for the requested task.
var ErrNotFound = fmt.Errorf("task state not found")

// StateStore is the per-task durable persistence port. Each task owns a
// single serialized record under its taskId key; the orchestrator for that
// task is the only writer, so implementations need no per-record locking
// beyond their own internal consistency.
type StateStore interface {
	// Load retrieves the record for taskID. Returns an error wrapping
	// ErrNotFound when no state exists.
	Load(ctx context.Context, taskID string) (*task.Record, error)
	// Save persists the record, creating or overwriting the entry.
	Save(ctx context.Context, rec *task.Record) error
	// Delete removes all persisted state for taskID. Deleting a missing
	// record is not an error.
	Delete(ctx context.Context, taskID string) error
	// List returns the taskIDs of all persisted records.
	List(ctx context.Context) ([]string, error)
}
