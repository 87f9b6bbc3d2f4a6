package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"relay/internal/task"
)

// MemStore keeps task records in memory. Used by tests and the zero-config
// development mode; state does not survive a restart.
type MemStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string][]byte)}
}

func (s *MemStore) Load(ctx context.Context, taskID string) (*task.Record, error) {
	s.mu.RLock()
	data, ok := s.records[taskID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	var rec task.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *MemStore) Save(ctx context.Context, rec *task.Record) error {
	if rec == nil || rec.TaskID == "" {
		return fmt.Errorf("record missing taskId")
	}
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[rec.TaskID] = data
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Delete(ctx context.Context, taskID string) error {
	s.mu.Lock()
	delete(s.records, taskID)
	s.mu.Unlock()
	return nil
}

func (s *MemStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}
