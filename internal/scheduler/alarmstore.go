package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Alarm is a persisted one-shot callback: run once at or after RunAt.
// At most one pending alarm exists per task; re-scheduling overwrites.
type Alarm struct {
	ID        string    `json:"id"`
	TaskID    string    `json:"task_id"`
	RunAt     time.Time `json:"run_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks that the alarm has the minimum required fields.
func (a *Alarm) Validate() error {
	if a.TaskID == "" {
		return fmt.Errorf("alarm: task_id is required")
	}
	if a.RunAt.IsZero() {
		return fmt.Errorf("alarm: run_at is required")
	}
	return nil
}

// AlarmStore is the persistence port for pending alarms. Implementations
// must survive process restarts; the scheduler reloads the full set at
// startup and on every poll.
type AlarmStore interface {
	// Save persists the alarm, overwriting any pending alarm for the task.
	Save(ctx context.Context, alarm Alarm) error
	// List returns all pending alarms.
	List(ctx context.Context) ([]Alarm, error)
	// Delete removes the pending alarm for taskID. Deleting a missing alarm
	// is not an error.
	Delete(ctx context.Context, taskID string) error
}

// FileAlarmStore keeps one JSON file per pending alarm.
type FileAlarmStore struct {
	baseDir string
}

func NewFileAlarmStore(baseDir string) (*FileAlarmStore, error) {
	if strings.HasPrefix(baseDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		baseDir = filepath.Join(home, baseDir[2:])
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create alarm dir: %w", err)
	}
	return &FileAlarmStore{baseDir: baseDir}, nil
}

func (s *FileAlarmStore) path(taskID string) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s.json", taskID))
}

func (s *FileAlarmStore) Save(ctx context.Context, alarm Alarm) error {
	if err := alarm.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(alarm, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(alarm.TaskID), data, 0644)
}

func (s *FileAlarmStore) List(ctx context.Context) ([]Alarm, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	var alarms []Alarm
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		var alarm Alarm
		if err := json.Unmarshal(data, &alarm); err != nil {
			continue
		}
		alarms = append(alarms, alarm)
	}
	return alarms, nil
}

func (s *FileAlarmStore) Delete(ctx context.Context, taskID string) error {
	err := os.Remove(s.path(taskID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
