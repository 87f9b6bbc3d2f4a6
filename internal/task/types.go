package task

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a task. Transitions are monotone along
// queued -> running -> {completed|failed|cancelled}; same-state overwrites
// are permitted.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusQueued:    true,
	StatusRunning:   true,
	StatusCompleted: true,
	StatusFailed:    true,
	StatusCancelled: true,
}

// IsValid returns true if the status is one of the recognized values.
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// IsTerminal reports whether the status is absorbing.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next preserves the
// monotone lifecycle. Same-state writes are always allowed.
func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusQueued:
		return next == StatusRunning || next.IsTerminal()
	case StatusRunning:
		return next.IsTerminal()
	}
	return false
}

// OwnerType discriminates the owning principal of a task.
type OwnerType string

const (
	OwnerUser OwnerType = "user"
	OwnerOrg  OwnerType = "org"
)

// Owner identifies who a task runs on behalf of. UserID is the acting user,
// which differs from ID when the owner is an org.
type Owner struct {
	Type   OwnerType `json:"type"`
	ID     string    `json:"id"`
	UserID string    `json:"userId"`
}

// Input holds the immutable parameters describing what the agent executes.
type Input struct {
	Repository string         `json:"repository"`
	Prompt     string         `json:"prompt,omitempty"`
	Model      string         `json:"model,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

// EventLogEntry is one lightweight observability entry in a task's event log.
type EventLogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"eventType"`
	Message   string    `json:"message,omitempty"`
	Content   string    `json:"content,omitempty"`
	SessionID string    `json:"sessionId,omitempty"`
}

// Record is the entire persisted state of one task instance. The owning
// orchestrator is its only writer.
type Record struct {
	TaskID         string          `json:"taskId"`
	AuthToken      string          `json:"authToken"`
	Input          Input           `json:"taskInput"`
	Owner          Owner           `json:"owner"`
	SkipChecks     bool            `json:"skipChecks,omitempty"`
	Status         Status          `json:"status"`
	AgentSessionID string          `json:"agentSessionId,omitempty"`
	CLISessionID   string          `json:"cliSessionId,omitempty"`
	ErrorMessage   string          `json:"errorMessage,omitempty"`
	StartedAt      *time.Time      `json:"startedAt,omitempty"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	Events         []EventLogEntry `json:"events,omitempty"`
}

// Validate checks that the record has the minimum required fields.
func (r *Record) Validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("task: taskId is required")
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("task: invalid status %q", r.Status)
	}
	if r.Owner.Type != OwnerUser && r.Owner.Type != OwnerOrg {
		return fmt.Errorf("task: invalid owner type %q", r.Owner.Type)
	}
	return nil
}

// StatusView is the sanitized projection of a Record returned to callers.
// It never carries the credential.
type StatusView struct {
	TaskID       string     `json:"taskId"`
	Status       Status     `json:"status"`
	SessionID    string     `json:"sessionId,omitempty"`
	CLISessionID string     `json:"cliSessionId,omitempty"`
	StartedAt    *time.Time `json:"startedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
}

// Sanitized returns the caller-visible projection of the record.
func (r *Record) Sanitized() StatusView {
	return StatusView{
		TaskID:       r.TaskID,
		Status:       r.Status,
		SessionID:    r.AgentSessionID,
		CLISessionID: r.CLISessionID,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		ErrorMessage: r.ErrorMessage,
	}
}
