package orchestrator

import (
	"context"
	"fmt"
	"time"

	"relay/internal/notify"
	"relay/internal/task"
)

// statusUpdate is one requested mutation of the authoritative lifecycle
// fields. Session identifiers use the tri-state FieldUpdate so "not
// observed" is distinct from "clear".
type statusUpdate struct {
	status         task.Status
	agentSessionID task.FieldUpdate[string]
	cliSessionID   task.FieldUpdate[string]
	errorMessage   task.FieldUpdate[string]
}

// updateStatusLocked applies the update to the record, persists it, and
// notifies the external system of record. Callers hold o.mu.
//
// Semantics, in order:
//   - a transition that would leave a terminal state degrades to the
//     current status (monotonic lifecycle, idempotent no-op);
//   - session identifiers are first-writer-wins and never overwritten;
//   - an update identical to current state performs no write and no
//     notification;
//   - first entry into running stamps startedAt; first entry into any
//     terminal state stamps completedAt, clears the event log and schedules
//     the retention cleanup;
//   - local persistence strictly precedes the external notification;
//   - a failed notification is fatal only when this update entered a
//     terminal state — nothing else would ever correct the external record.
func (o *Orchestrator) updateStatusLocked(ctx context.Context, update statusUpdate) error {
	rec, err := o.loadRecordLocked(ctx)
	if err != nil {
		return err
	}

	nextStatus := update.status
	if !rec.Status.CanTransitionTo(nextStatus) {
		o.logger.Warn("Task %s ignoring status %s -> %s", o.taskID, rec.Status, nextStatus)
		nextStatus = rec.Status
	}

	nextAgentSession := rec.AgentSessionID
	if nextAgentSession == "" {
		nextAgentSession = update.agentSessionID.Apply(rec.AgentSessionID)
	}
	nextCLISession := rec.CLISessionID
	if nextCLISession == "" {
		nextCLISession = update.cliSessionID.Apply(rec.CLISessionID)
	}
	nextError := update.errorMessage.Apply(rec.ErrorMessage)

	if nextStatus == rec.Status &&
		nextAgentSession == rec.AgentSessionID &&
		nextCLISession == rec.CLISessionID &&
		nextError == rec.ErrorMessage {
		return nil
	}

	enteredRunning := nextStatus == task.StatusRunning && rec.Status != task.StatusRunning
	enteredTerminal := nextStatus.IsTerminal() && !rec.Status.IsTerminal()

	rec.Status = nextStatus
	rec.AgentSessionID = nextAgentSession
	rec.CLISessionID = nextCLISession
	rec.ErrorMessage = nextError

	now := time.Now().UTC()
	if enteredRunning && rec.StartedAt == nil {
		rec.StartedAt = &now
	}
	if enteredTerminal {
		if rec.CompletedAt == nil {
			rec.CompletedAt = &now
		}
		// The event log serves the UI while the task is live; once the task
		// is done it is dead weight.
		rec.Events = nil
		o.unsavedEvents = 0
	}

	if err := o.store.Save(ctx, rec); err != nil {
		if enteredTerminal {
			return fmt.Errorf("persist terminal state for task %s: %w", o.taskID, err)
		}
		return fmt.Errorf("persist state for task %s: %w", o.taskID, err)
	}
	o.metrics.statusTransitions.WithLabelValues(string(nextStatus)).Inc()

	if enteredTerminal && o.cleanup != nil {
		runAt := now.Add(o.config.CleanupRetention)
		if err := o.cleanup.Schedule(ctx, o.taskID, runAt); err != nil {
			o.logger.Warn("Task %s cleanup scheduling failed: %v", o.taskID, err)
		}
	}

	notifyErr := o.notifier.PushStatus(ctx, o.taskID, notify.StatusUpdate{
		Status:       rec.Status,
		SessionID:    rec.AgentSessionID,
		CLISessionID: rec.CLISessionID,
		ErrorMessage: rec.ErrorMessage,
	})
	if notifyErr != nil {
		if enteredTerminal {
			// A silently lost terminal notification leaves the external
			// system polling forever and a capacity slot consumed.
			o.metrics.notifyFailures.WithLabelValues("terminal").Inc()
			return fmt.Errorf("terminal status notification for task %s: %w", o.taskID, notifyErr)
		}
		// Local state is durable; a later update or the agent's own
		// callback corrects the external record.
		o.metrics.notifyFailures.WithLabelValues("non_terminal").Inc()
		o.logger.Warn("Task %s status notification failed (non-terminal): %v", o.taskID, notifyErr)
	}

	return nil
}
