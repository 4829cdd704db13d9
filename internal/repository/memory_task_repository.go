package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"proof-host/internal/models"
	"proof-host/internal/types"

	"github.com/google/uuid"
)

// MemoryTaskRepository keeps task attempts in process memory.
// A single mutex makes every operation atomic across keys.
type MemoryTaskRepository struct {
	mu       sync.RWMutex
	attempts map[string][]*models.ProofTask // task key -> attempts, oldest first
	now      func() time.Time
}

// NewMemoryTaskRepository returns an empty in-memory task store
func NewMemoryTaskRepository() *MemoryTaskRepository {
	return &MemoryTaskRepository{
		attempts: make(map[string][]*models.ProofTask),
		now:      time.Now,
	}
}

func (s *MemoryTaskRepository) current(keyID string) *models.ProofTask {
	list := s.attempts[keyID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

func clone(task *models.ProofTask) *models.ProofTask {
	c := *task
	return &c
}

// UpsertRegistered implements TaskRepository
func (s *MemoryTaskRepository) UpsertRegistered(_ context.Context, key types.ProofTaskDescriptor, req *types.ProofRequest) (*models.ProofTask, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keyID := key.ID()
	current := s.current(keyID)
	if current != nil && !current.Status.IsTerminal() {
		return clone(current), false, nil
	}
	attempt := 1
	if current != nil {
		attempt = current.Attempt + 1
	}
	task, err := models.NewProofTask(uuid.New().String(), key, attempt, req, s.now())
	if err != nil {
		return nil, false, err
	}
	s.attempts[keyID] = append(s.attempts[keyID], task)
	return clone(task), true, nil
}

// UpdateProgress implements TaskRepository
func (s *MemoryTaskRepository) UpdateProgress(_ context.Context, key types.ProofTaskDescriptor, status types.Status) (*models.ProofTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.current(key.ID())
	if current == nil {
		return nil, types.ErrTaskNotFound
	}
	if err := current.ApplyStatus(status, s.now()); err != nil {
		return nil, err
	}
	return clone(current), nil
}

// UpdateAttempt implements TaskRepository
func (s *MemoryTaskRepository) UpdateAttempt(_ context.Context, key types.ProofTaskDescriptor, attemptID string, status types.Status) (*models.ProofTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.current(key.ID())
	if current == nil {
		return nil, types.ErrTaskNotFound
	}
	if current.ID != attemptID || current.Status.IsTerminal() {
		return nil, types.ErrStaleAttempt
	}
	if err := current.ApplyStatus(status, s.now()); err != nil {
		return nil, err
	}
	return clone(current), nil
}

// Get implements TaskRepository
func (s *MemoryTaskRepository) Get(_ context.Context, key types.ProofTaskDescriptor) (*models.ProofTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.current(key.ID())
	if current == nil {
		return nil, types.ErrTaskNotFound
	}
	return clone(current), nil
}

// History implements TaskRepository
func (s *MemoryTaskRepository) History(_ context.Context, key types.ProofTaskDescriptor) ([]*models.ProofTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.attempts[key.ID()]
	out := make([]*models.ProofTask, 0, len(list))
	for _, task := range list {
		out = append(out, clone(task))
	}
	return out, nil
}

// ListByStatus implements TaskRepository
func (s *MemoryTaskRepository) ListByStatus(_ context.Context, statuses ...types.TaskStatus) ([]*models.ProofTask, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[types.TaskStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []*models.ProofTask
	for keyID := range s.attempts {
		if current := s.current(keyID); want[current.Status] {
			out = append(out, clone(current))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var _ TaskRepository = (*MemoryTaskRepository)(nil)
