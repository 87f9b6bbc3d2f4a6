package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"relay/internal/task"
)

// taskState is the table row backing one task's serialized record. The full
// record lives in the state column; status and updated_at are duplicated
// into their own columns only so operators can inspect the table directly.
type taskState struct {
	TaskID    string    `gorm:"column:task_id;primaryKey;size:128"`
	Status    string    `gorm:"column:status;size:32;index"`
	State     string    `gorm:"column:state"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (taskState) TableName() string {
	return "task_states"
}

// GormStore persists task records in a SQL database through gorm. The
// default driver is sqlite, which gives single-node deployments durable
// state without extra infrastructure.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens (or creates) the sqlite database at dsn and migrates
// the task_states table.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open task state db: %w", err)
	}
	if err := db.AutoMigrate(&taskState{}); err != nil {
		return nil, fmt.Errorf("migrate task_states: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load(ctx context.Context, taskID string) (*task.Record, error) {
	var row taskState
	err := s.db.WithContext(ctx).First(&row, "task_id = ?", taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
		}
		return nil, fmt.Errorf("load task state %s: %w", taskID, err)
	}
	var rec task.Record
	if err := json.Unmarshal([]byte(row.State), &rec); err != nil {
		return nil, fmt.Errorf("decode task state %s: %w", taskID, err)
	}
	return &rec, nil
}

func (s *GormStore) Save(ctx context.Context, rec *task.Record) error {
	if rec == nil || rec.TaskID == "" {
		return fmt.Errorf("record missing taskId")
	}
	rec.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	row := taskState{
		TaskID: rec.TaskID,
		Status: string(rec.Status),
		State:  string(data),
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *GormStore) Delete(ctx context.Context, taskID string) error {
	return s.db.WithContext(ctx).Delete(&taskState{}, "task_id = ?", taskID).Error
}

func (s *GormStore) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&taskState{}).Pluck("task_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}
