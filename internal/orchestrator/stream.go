package orchestrator

import (
	"context"
	stderrors "errors"
	"io"
	"time"

	relayerrors "relay/internal/errors"
	"relay/internal/sse"
	"relay/internal/task"
)

// consumeStream drives the SSE loop over body until a complete frame, the
// natural end of the stream, cancellation, or the stream timeout. It owns
// the event batcher; buffered entries are flushed on every exit path.
func (o *Orchestrator) consumeStream(ctx context.Context, body io.Reader) error {
	decoder := sse.NewDecoder(body, o.logger)
	defer func() {
		o.metrics.parseFailures.Add(float64(decoder.ParseErrors()))
		// ctx is already expired on the timeout exit path; the final flush
		// still has to land.
		flushCtx := context.WithoutCancel(ctx)
		o.mu.Lock()
		o.flushEventsLocked(flushCtx)
		o.mu.Unlock()
	}()

	firstFrame := true
	for {
		// Cooperative cancellation: checked before each read; an in-flight
		// read is not interrupted.
		if o.cancelled.Load() {
			o.logger.Info("Task %s stream loop observed cancellation flag", o.taskID)
			return nil
		}

		event, err := decoder.Next(ctx)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if stderrors.Is(err, context.DeadlineExceeded) {
				return &relayerrors.TimeoutError{
					Operation: "agent stream for task " + o.taskID,
					Budget:    o.config.StreamTimeout.String(),
				}
			}
			return err
		}
		o.metrics.streamFrames.Inc()

		if firstFrame {
			firstFrame = false
			if event.SessionID != "" {
				o.captureSession(ctx, task.Set(event.SessionID), task.Unchanged[string]())
			}
		}

		switch event.StreamEventType {
		case sse.TypeCLISession:
			cliID := event.CLISessionID
			if cliID == "" {
				cliID = event.SessionID
			}
			if cliID != "" {
				o.captureSession(ctx, task.Unchanged[string](), task.Set(cliID))
			}

		case sse.TypeComplete:
			o.logger.Debug("Task %s received complete frame", o.taskID)
			return nil

		case sse.TypeError:
			o.logger.Warn("Task %s agent reported stream error: %s", o.taskID, event.Message)
			if o.onStreamError != nil {
				o.onStreamError(o.taskID, event)
			}
		}

		if entry, ok := storableEntry(event); ok {
			o.mu.Lock()
			o.appendEventLocked(ctx, entry)
			o.mu.Unlock()
		}
	}
}

// captureSession persists a newly observed session identifier. Idempotent:
// updateStatus never overwrites a non-empty identifier, so a second capture
// with a different value is a no-op.
func (o *Orchestrator) captureSession(ctx context.Context, agentID, cliID task.FieldUpdate[string]) {
	o.mu.Lock()
	defer o.mu.Unlock()
	err := o.updateStatusLocked(ctx, statusUpdate{
		status:         task.StatusRunning,
		agentSessionID: agentID,
		cliSessionID:   cliID,
	})
	if err != nil {
		o.logger.Warn("Task %s session capture failed: %v", o.taskID, err)
	}
}

// storableEntry maps a frame to an event-log entry. Frames that carry no
// durable information (lifecycle markers, partial deltas) are skipped.
func storableEntry(event *sse.Event) (task.EventLogEntry, bool) {
	entry := task.EventLogEntry{
		Timestamp: time.Now().UTC(),
		EventType: event.StreamEventType,
		SessionID: event.SessionID,
	}

	switch event.StreamEventType {
	case sse.TypeComplete, sse.TypeCLISession:
		return task.EventLogEntry{}, false
	case sse.TypeContent:
		content := event.Content()
		if content == "" {
			return task.EventLogEntry{}, false
		}
		entry.Message = content
		return entry, true
	case sse.TypeError:
		entry.Message = event.Message
		return entry, true
	default:
		// status, output and provider-specific frames are stored only when
		// they say something.
		if event.Message == "" && event.Content() == "" {
			return task.EventLogEntry{}, false
		}
		entry.Message = event.Message
		entry.Content = event.Content()
		return entry, true
	}
}

// appendEventLocked adds an entry to the in-memory log, flushing the whole
// record once the unsaved count reaches the batch threshold. Callers hold
// o.mu.
func (o *Orchestrator) appendEventLocked(ctx context.Context, entry task.EventLogEntry) {
	rec, err := o.loadRecordLocked(ctx)
	if err != nil {
		o.logger.Warn("Task %s dropping event, no record: %v", o.taskID, err)
		return
	}
	if rec.Status.IsTerminal() {
		// Terminal entry already cleared the log; late frames are noise.
		return
	}
	rec.Events = append(rec.Events, entry)
	o.unsavedEvents++
	if o.unsavedEvents >= o.config.EventBatchSize {
		o.flushEventsLocked(ctx)
	}
}

// flushEventsLocked persists the full record when unsaved entries exist.
// Event history is best-effort observability data: a failed flush is logged
// and the entries stay buffered for the next attempt. Callers hold o.mu.
func (o *Orchestrator) flushEventsLocked(ctx context.Context) {
	if o.unsavedEvents == 0 || o.record == nil {
		return
	}
	if err := o.store.Save(ctx, o.record); err != nil {
		o.logger.Warn("Task %s event flush failed (%d unsaved): %v", o.taskID, o.unsavedEvents, err)
		return
	}
	o.unsavedEvents = 0
	o.metrics.eventFlushes.Inc()
}
