package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/config"
	"github.com/bryanreynaldy/social-media-api/internal/infrastructure/logging"
)

// ErrNotFound is returned when no record exists for a task ID.
var ErrNotFound = errors.New("task record not found")

const defaultRecentLimit = 50

// TaskRecord is one completed task or extraction, as persisted.
// Payload holds the result JSON verbatim; the API re-emits it raw.
type TaskRecord struct {
	TaskID     string    `gorm:"primaryKey;size:40" json:"task_id"`
	URL        string    `gorm:"index" json:"url"`
	Platform   string    `gorm:"size:16;index" json:"platform"`
	Outcome    string    `gorm:"size:16;index" json:"outcome"`
	FailedStep *int      `json:"failed_step"`
	Reason     *string   `json:"reason"`
	Payload    string    `gorm:"type:text" json:"-"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

// TableName keeps the table stable if the struct is ever renamed.
func (TaskRecord) TableName() string { return "task_records" }

// Store persists task records. The noop form is used when history is
// disabled so callers never branch.
type Store interface {
	Record(ctx context.Context, rec *TaskRecord) error
	Get(ctx context.Context, taskID string) (*TaskRecord, error)
	Recent(ctx context.Context, limit int) ([]TaskRecord, error)
	Close() error
}

// Open builds the configured store, creating the database file's
// directory and migrating the schema.
func Open(cfg config.HistoryConfig, logger *logging.Logger) (Store, error) {
	if !cfg.Enabled {
		return Noop{}, nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	path := cfg.Path
	if path == "" {
		path = ":memory:"
	}
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create history dir: %w", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db at %s: %w", path, err)
	}
	if err := db.AutoMigrate(&TaskRecord{}); err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}

	logger.Info("Task history enabled", zap.String("path", path))
	return &SQLiteStore{db: db, logger: logger}, nil
}

// SQLiteStore is the gorm-backed store.
type SQLiteStore struct {
	db     *gorm.DB
	logger *logging.Logger
}

// Record upserts one task record. Records are written after the task
// finished, so a duplicate ID means a retried write, not a conflict.
func (s *SQLiteStore) Record(ctx context.Context, rec *TaskRecord) error {
	if rec == nil || rec.TaskID == "" {
		return errors.New("record needs a task id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("record task %s: %w", rec.TaskID, err)
	}
	return nil
}

// Get fetches one record by task ID.
func (s *SQLiteStore) Get(ctx context.Context, taskID string) (*TaskRecord, error) {
	var rec TaskRecord
	err := s.db.WithContext(ctx).First(&rec, "task_id = ?", taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", taskID, err)
	}
	return &rec, nil
}

// Recent returns the newest records, capped at limit (default 50).
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]TaskRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultRecentLimit
	}
	var recs []TaskRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list recent tasks: %w", err)
	}
	return recs, nil
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Noop drops writes and answers reads empty; used when history is off.
type Noop struct{}

func (Noop) Record(context.Context, *TaskRecord) error { return nil }

func (Noop) Get(context.Context, string) (*TaskRecord, error) { return nil, ErrNotFound }

func (Noop) Recent(context.Context, int) ([]TaskRecord, error) { return nil, nil }

func (Noop) Close() error { return nil }
