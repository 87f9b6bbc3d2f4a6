package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"relay/internal/logging"
	"relay/internal/task"
)

// FileStore persists one JSON document per task under a base directory.
type FileStore struct {
	baseDir string
	logger  logging.Logger
}

// NewFileStore creates the base directory if needed. A leading "~/" in
// baseDir expands to the user's home directory.
func NewFileStore(baseDir string) (*FileStore, error) {
	if strings.HasPrefix(baseDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		baseDir = filepath.Join(home, baseDir[2:])
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStore{
		baseDir: baseDir,
		logger:  logging.NewComponentLogger("TaskFileStore"),
	}, nil
}

func (s *FileStore) path(taskID string) string {
	return filepath.Join(s.baseDir, fmt.Sprintf("%s.json", taskID))
}

func (s *FileStore) Load(ctx context.Context, taskID string) (*task.Record, error) {
	data, err := os.ReadFile(s.path(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		return nil, fmt.Errorf("read task state %s: %w", taskID, err)
	}
	var rec task.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Error("Failed to decode task state %s: %v. Preview: %s", taskID, err, previewJSON(data))
		return nil, fmt.Errorf("decode task state %s: %w", taskID, err)
	}
	return &rec, nil
}

func (s *FileStore) Save(ctx context.Context, rec *task.Record) error {
	if rec == nil || rec.TaskID == "" {
		return fmt.Errorf("record missing taskId")
	}
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(rec.TaskID), data, 0644)
}

func (s *FileStore) Delete(ctx context.Context, taskID string) error {
	err := os.Remove(s.path(taskID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
		}
	}
	return ids, nil
}

func previewJSON(data []byte) string {
	const maxPreview = 512
	preview := strings.TrimSpace(string(data))
	preview = strings.ReplaceAll(preview, "\n", " ")
	preview = strings.ReplaceAll(preview, "\t", " ")
	if len(preview) > maxPreview {
		preview = preview[:maxPreview] + "... (truncated)"
	}
	return preview
}
