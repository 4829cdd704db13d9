// Package repository provides data access interfaces and implementations
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"proof-host/internal/models"
	"proof-host/internal/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TaskRepository is the task store. Every mutation is atomic per key; the
// store enforces record existence only, never transition legality.
type TaskRepository interface {
	// UpsertRegistered creates a registered record when none exists or the
	// current one is terminal. A live record is returned unchanged with created=false.
	UpsertRegistered(ctx context.Context, key types.ProofTaskDescriptor, req *types.ProofRequest) (task *models.ProofTask, created bool, err error)
	// UpdateProgress transitions the current record of key
	UpdateProgress(ctx context.Context, key types.ProofTaskDescriptor, status types.Status) (*models.ProofTask, error)
	// UpdateAttempt transitions the current record of key only while it is
	// attemptID and still live; otherwise it returns types.ErrStaleAttempt.
	UpdateAttempt(ctx context.Context, key types.ProofTaskDescriptor, attemptID string, status types.Status) (*models.ProofTask, error)
	// Get returns the current record of key
	Get(ctx context.Context, key types.ProofTaskDescriptor) (*models.ProofTask, error)
	// History returns every attempt of key, oldest first
	History(ctx context.Context, key types.ProofTaskDescriptor) ([]*models.ProofTask, error)
	// ListByStatus returns current records in any of the given states
	ListByStatus(ctx context.Context, statuses ...types.TaskStatus) ([]*models.ProofTask, error)
}

// taskRepository implements TaskRepository on gorm
type taskRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTaskRepository creates a gorm backed TaskRepository
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db, now: time.Now}
}

// lockCurrent selects the current attempt of a key. On postgres it first takes
// a transaction-scoped advisory lock on the key, which also serialises writers
// of a key that has no row yet; FOR UPDATE alone locks nothing in that case.
// Within one process the request actor already serialises writes per key.
func (r *taskRepository) lockCurrent(tx *gorm.DB, keyID string) (*models.ProofTask, error) {
	if tx.Dialector.Name() == "postgres" {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", keyID).Error; err != nil {
			return nil, fmt.Errorf("failed to lock task key: %w", err)
		}
		tx = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var task models.ProofTask
	err := tx.Where("task_key = ?", keyID).Order("attempt DESC").First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// UpsertRegistered creates a new attempt unless a live one exists. A writer
// that loses the race for the next attempt number re-reads once and gets the
// winner's record.
func (r *taskRepository) UpsertRegistered(ctx context.Context, key types.ProofTaskDescriptor, req *types.ProofRequest) (*models.ProofTask, bool, error) {
	task, created, err := r.upsertRegistered(ctx, key, req)
	if err != nil && isDuplicateKey(err) {
		return r.upsertRegistered(ctx, key, req)
	}
	return task, created, err
}

func (r *taskRepository) upsertRegistered(ctx context.Context, key types.ProofTaskDescriptor, req *types.ProofRequest) (*models.ProofTask, bool, error) {
	var (
		result  *models.ProofTask
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.lockCurrent(tx, key.ID())
		if err != nil && !errors.Is(err, types.ErrTaskNotFound) {
			return err
		}
		if current != nil && !current.Status.IsTerminal() {
			result = current
			return nil
		}

		attempt := 1
		if current != nil {
			attempt = current.Attempt + 1
		}
		task, err := models.NewProofTask(uuid.New().String(), key, attempt, req, r.now())
		if err != nil {
			return fmt.Errorf("failed to encode proof request: %w", err)
		}
		if err := tx.Create(task).Error; err != nil {
			return fmt.Errorf("failed to create proof task: %w", err)
		}
		result = task
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

// UpdateProgress transitions the current attempt of key
func (r *taskRepository) UpdateProgress(ctx context.Context, key types.ProofTaskDescriptor, status types.Status) (*models.ProofTask, error) {
	var result *models.ProofTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.lockCurrent(tx, key.ID())
		if err != nil {
			return err
		}
		if err := current.ApplyStatus(status, r.now()); err != nil {
			return fmt.Errorf("failed to encode proof: %w", err)
		}
		if err := tx.Save(current).Error; err != nil {
			return fmt.Errorf("failed to update proof task: %w", err)
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateAttempt transitions the current attempt of key if it is still attemptID and live
func (r *taskRepository) UpdateAttempt(ctx context.Context, key types.ProofTaskDescriptor, attemptID string, status types.Status) (*models.ProofTask, error) {
	var result *models.ProofTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := r.lockCurrent(tx, key.ID())
		if err != nil {
			return err
		}
		if current.ID != attemptID || current.Status.IsTerminal() {
			return types.ErrStaleAttempt
		}
		if err := current.ApplyStatus(status, r.now()); err != nil {
			return fmt.Errorf("failed to encode proof: %w", err)
		}
		if err := tx.Save(current).Error; err != nil {
			return fmt.Errorf("failed to update proof task: %w", err)
		}
		result = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// isDuplicateKey matches unique violations from postgres and sqlite
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}

// Get retrieves the current attempt of key
func (r *taskRepository) Get(ctx context.Context, key types.ProofTaskDescriptor) (*models.ProofTask, error) {
	var task models.ProofTask
	err := r.db.WithContext(ctx).
		Where("task_key = ?", key.ID()).
		Order("attempt DESC").
		First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// History lists every attempt of key
func (r *taskRepository) History(ctx context.Context, key types.ProofTaskDescriptor) ([]*models.ProofTask, error) {
	var tasks []*models.ProofTask
	err := r.db.WithContext(ctx).
		Where("task_key = ?", key.ID()).
		Order("attempt ASC").
		Find(&tasks).Error
	return tasks, err
}

// ListByStatus finds current attempts in the given states
func (r *taskRepository) ListByStatus(ctx context.Context, statuses ...types.TaskStatus) ([]*models.ProofTask, error) {
	var tasks []*models.ProofTask
	latest := r.db.Model(&models.ProofTask{}).
		Select("task_key, MAX(attempt) AS attempt").
		Group("task_key")
	err := r.db.WithContext(ctx).
		Table("proof_tasks AS t").
		Select("t.*").
		Joins("JOIN (?) AS latest ON latest.task_key = t.task_key AND latest.attempt = t.attempt", latest).
		Where("t.status IN ?", statuses).
		Order("t.created_at ASC").
		Find(&tasks).Error
	return tasks, err
}
