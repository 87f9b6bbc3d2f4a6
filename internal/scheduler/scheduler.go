package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"relay/internal/logging"
)

// Executor performs the deferred work for a due alarm. A returned error
// leaves the alarm in place; it fires again on the next poll.
type Executor func(ctx context.Context, taskID string) error

// Scheduler fires persisted one-shot alarms. Durability comes from the
// AlarmStore: pending alarms written before a restart are picked up by the
// next process on its first poll.
type Scheduler struct {
	store    AlarmStore
	execute  Executor
	interval time.Duration
	logger   logging.Logger
	stopped  chan struct{}
	stopOnce sync.Once
}

// New creates a Scheduler polling at the given interval (default 30s).
func New(store AlarmStore, execute Executor, interval time.Duration, logger logging.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		store:    store,
		execute:  execute,
		interval: interval,
		logger:   logging.OrNop(logger),
		stopped:  make(chan struct{}),
	}
}

// Schedule persists a one-shot alarm for taskID at runAt. Re-scheduling a
// task overwrites its pending alarm.
func (s *Scheduler) Schedule(ctx context.Context, taskID string, runAt time.Time) error {
	alarm := Alarm{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		RunAt:     runAt,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Save(ctx, alarm); err != nil {
		return err
	}
	s.logger.Info("Scheduled cleanup for task %s at %s", taskID, runAt.Format(time.RFC3339))
	return nil
}

// Cancel removes any pending alarm for taskID.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {
	return s.store.Delete(ctx, taskID)
}

// Start launches the poll loop. It returns immediately; the loop stops when
// ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// Fire anything already due, e.g. alarms that came due while the
		// process was down.
		s.FireDue(ctx)

		for {
			select {
			case <-ticker.C:
				s.FireDue(ctx)
			case <-ctx.Done():
				s.Stop()
				return
			case <-s.stopped:
				return
			}
		}
	}()
}

// Stop halts the poll loop. Safe to call multiple times.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopped)
		s.logger.Info("Cleanup scheduler stopped")
	})
}

// FireDue executes every alarm whose RunAt has passed. Exported so tests
// and operators can trigger a sweep without waiting for the ticker.
func (s *Scheduler) FireDue(ctx context.Context) {
	alarms, err := s.store.List(ctx)
	if err != nil {
		s.logger.Warn("Failed to list pending alarms: %v", err)
		return
	}

	now := time.Now()
	for _, alarm := range alarms {
		if alarm.RunAt.After(now) {
			continue
		}
		if err := s.execute(ctx, alarm.TaskID); err != nil {
			// Left in place; fires again next poll.
			s.logger.Warn("Cleanup for task %s failed: %v", alarm.TaskID, err)
			continue
		}
		if err := s.store.Delete(ctx, alarm.TaskID); err != nil {
			s.logger.Warn("Failed to delete fired alarm for task %s: %v", alarm.TaskID, err)
		}
		s.logger.Info("Fired cleanup alarm for task %s", alarm.TaskID)
	}
}

// PendingCount returns the number of persisted alarms.
func (s *Scheduler) PendingCount(ctx context.Context) int {
	alarms, err := s.store.List(ctx)
	if err != nil {
		return 0
	}
	return len(alarms)
}
