package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"relay/internal/agent"
	relayerrors "relay/internal/errors"
	"relay/internal/logging"
	"relay/internal/notify"
	"relay/internal/sse"
	"relay/internal/store"
	"relay/internal/task"
)

// AgentClient is the outbound port to the downstream agent service.
type AgentClient interface {
	InitiateSession(ctx context.Context, req agent.SessionRequest) (io.ReadCloser, error)
	InterruptSession(ctx context.Context, sessionID string) error
}

// StatusNotifier pushes lifecycle transitions to the external system of
// record.
type StatusNotifier interface {
	PushStatus(ctx context.Context, taskID string, update notify.StatusUpdate) error
}

// CleanupScheduler schedules the deferred storage wipe after terminal entry.
type CleanupScheduler interface {
	Schedule(ctx context.Context, taskID string, runAt time.Time) error
}

// Config tunes one orchestrator instance.
type Config struct {
	// StreamTimeout bounds the whole SSE consumption, default 20 minutes.
	StreamTimeout time.Duration
	// EventBatchSize is the unsaved-event count that forces a flush,
	// default 10.
	EventBatchSize int
	// CleanupRetention is how long terminal state is kept before the wipe,
	// default 7 days.
	CleanupRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = 20 * time.Minute
	}
	if c.EventBatchSize <= 0 {
		c.EventBatchSize = 10
	}
	if c.CleanupRetention <= 0 {
		c.CleanupRetention = 7 * 24 * time.Hour
	}
	return c
}

// StartParams is the full task configuration handed to Start.
type StartParams struct {
	TaskID     string     `json:"taskId"`
	AuthToken  string     `json:"authToken"`
	Input      task.Input `json:"taskInput"`
	Owner      task.Owner `json:"owner"`
	SkipChecks bool       `json:"skipChecks,omitempty"`
}

// Orchestrator owns one task's lifecycle. All externally visible operations
// are serialized through mu, which stands in for the single-threaded actor
// the state machine assumes; the long-lived stream loop only takes the lock
// for individual state mutations so Cancel and reads stay responsive.
type Orchestrator struct {
	taskID   string
	config   Config
	store    store.StateStore
	agent    AgentClient
	notifier StatusNotifier
	cleanup  CleanupScheduler
	logger   logging.Logger
	metrics  *Metrics

	// onStreamError, when set, receives informational error frames.
	onStreamError func(taskID string, event *sse.Event)

	mu            sync.Mutex
	record        *task.Record
	unsavedEvents int
	cancelled     atomic.Bool
}

// New constructs the orchestrator for taskID. Instances are normally
// created through a Registry, which guarantees one instance per key.
func New(taskID string, cfg Config, st store.StateStore, agentClient AgentClient, notifier StatusNotifier, cleanup CleanupScheduler, logger logging.Logger, metrics *Metrics) *Orchestrator {
	if metrics == nil {
		metrics = defaultMetrics()
	}
	return &Orchestrator{
		taskID:   taskID,
		config:   cfg.withDefaults(),
		store:    st,
		agent:    agentClient,
		notifier: notifier,
		cleanup:  cleanup,
		logger:   logging.OrNop(logger),
		metrics:  metrics,
	}
}

// loadRecordLocked populates o.record from the store when not yet cached.
// Callers hold o.mu.
func (o *Orchestrator) loadRecordLocked(ctx context.Context) (*task.Record, error) {
	if o.record != nil {
		return o.record, nil
	}
	rec, err := o.store.Load(ctx, o.taskID)
	if err != nil {
		return nil, err
	}
	o.record = rec
	return rec, nil
}

// Start initializes the task record with status queued and persists it.
// The dispatcher guarantees at-most-one Start per key; re-invocation
// overwrites without a guard at this layer.
func (o *Orchestrator) Start(ctx context.Context, params StartParams) (task.Status, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec := &task.Record{
		TaskID:     o.taskID,
		AuthToken:  params.AuthToken,
		Input:      params.Input,
		Owner:      params.Owner,
		SkipChecks: params.SkipChecks,
		Status:     task.StatusQueued,
	}
	if err := rec.Validate(); err != nil {
		return "", err
	}
	if err := o.store.Save(ctx, rec); err != nil {
		return "", fmt.Errorf("persist initial state: %w", err)
	}
	o.record = rec
	o.logger.Info("Task %s started (repo=%s, owner=%s/%s)",
		o.taskID, params.Input.Repository, params.Owner.Type, params.Owner.ID)
	return rec.Status, nil
}

// Run executes the main procedure: transition to running, issue the agent
// request and drive the SSE loop under the stream timeout. Guarded — a
// second Run on a non-queued instance is a no-op. Stream completion does
// not mark the task completed; the authoritative terminal status arrives
// through the agent's callback.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	rec, err := o.loadRecordLocked(ctx)
	if err != nil {
		o.mu.Unlock()
		return fmt.Errorf("run: %w", err)
	}
	if rec.Status != task.StatusQueued {
		o.logger.Info("Task %s run skipped: status is %s", o.taskID, rec.Status)
		o.mu.Unlock()
		return nil
	}
	req := agent.SessionRequest{
		TaskID:     rec.TaskID,
		AuthToken:  rec.AuthToken,
		Input:      rec.Input,
		Owner:      rec.Owner,
		SkipChecks: rec.SkipChecks,
	}
	if err := o.updateStatusLocked(ctx, statusUpdate{status: task.StatusRunning}); err != nil {
		o.mu.Unlock()
		return fmt.Errorf("transition to running: %w", err)
	}
	o.mu.Unlock()

	o.metrics.tasksActive.Inc()
	defer o.metrics.tasksActive.Dec()

	streamCtx, cancel := context.WithTimeout(ctx, o.config.StreamTimeout)
	defer cancel()

	body, err := o.agent.InitiateSession(streamCtx, req)
	if err != nil {
		// Connection errors are fatal to this run: no stream and no remote
		// session means no callback will ever correct the record.
		o.logger.Error("Task %s agent request failed: %v", o.taskID, err)
		o.mu.Lock()
		defer o.mu.Unlock()
		if updateErr := o.updateStatusLocked(ctx, statusUpdate{
			status:       task.StatusFailed,
			errorMessage: task.Set(err.Error()),
		}); updateErr != nil {
			return updateErr
		}
		return nil
	}
	defer func() { _ = body.Close() }()

	if err := o.consumeStream(streamCtx, body); err != nil {
		switch {
		case relayerrors.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
			// The remote agent may still complete and fire its callback, so
			// the record stays running.
			o.logger.Warn("Task %s stream timed out after %s; awaiting callback", o.taskID, o.config.StreamTimeout)
		case errors.Is(err, context.Canceled):
			o.logger.Info("Task %s stream read stopped: %v", o.taskID, err)
		default:
			o.logger.Warn("Task %s stream processing error (status left as-is): %v", o.taskID, err)
		}
		return nil
	}

	o.logger.Info("Task %s stream finished; terminal status awaits agent callback", o.taskID)
	return nil
}

// Cancel transitions the task to cancelled when it is still cancellable,
// stops the stream loop and best-effort interrupts the remote session.
// Returns false when no record exists or the task is already terminal.
func (o *Orchestrator) Cancel(ctx context.Context, reason string) (bool, error) {
	o.mu.Lock()
	rec, err := o.loadRecordLocked(ctx)
	if err != nil {
		o.mu.Unlock()
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if rec.Status != task.StatusQueued && rec.Status != task.StatusRunning {
		o.mu.Unlock()
		return false, nil
	}

	// Checked by the stream loop before each read.
	o.cancelled.Store(true)

	errUpdate := task.Unchanged[string]()
	if reason != "" {
		errUpdate = task.Set(reason)
	}
	updateErr := o.updateStatusLocked(ctx, statusUpdate{
		status:       task.StatusCancelled,
		errorMessage: errUpdate,
	})
	sessionID := rec.AgentSessionID
	o.mu.Unlock()

	if sessionID != "" {
		if err := o.agent.InterruptSession(ctx, sessionID); err != nil {
			// Local cancellation already succeeded.
			o.logger.Warn("Task %s remote interrupt failed: %v", o.taskID, err)
		}
	}

	return true, updateErr
}

// Events returns the current event log, or an empty slice when no state
// exists yet.
func (o *Orchestrator) Events(ctx context.Context) ([]task.EventLogEntry, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, err := o.loadRecordLocked(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []task.EventLogEntry{}, nil
		}
		return nil, err
	}
	events := make([]task.EventLogEntry, len(rec.Events))
	copy(events, rec.Events)
	return events, nil
}

// Status returns the sanitized projection of the task record.
func (o *Orchestrator) Status(ctx context.Context) (task.StatusView, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	rec, err := o.loadRecordLocked(ctx)
	if err != nil {
		return task.StatusView{}, err
	}
	return rec.Sanitized(), nil
}

// Wipe deletes all persisted state for the instance. Called by the cleanup
// scheduler once the retention period after terminal entry has elapsed; a
// non-terminal record is left alone and logged as an anomaly.
func (o *Orchestrator) Wipe(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, err := o.loadRecordLocked(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	if !rec.Status.IsTerminal() {
		o.logger.Error("Cleanup fired for task %s but status is %s; leaving state alone", o.taskID, rec.Status)
		return nil
	}
	if err := o.store.Delete(ctx, o.taskID); err != nil {
		return fmt.Errorf("wipe task %s: %w", o.taskID, err)
	}
	o.record = nil
	o.logger.Info("Wiped state for task %s", o.taskID)
	return nil
}
