// Package memory provides in-memory store implementations for development
// and testing.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

// TaskStore keeps versioned tasks in process memory. Updates use optimistic
// concurrency: an UpdateTask with a stale version fails with
// audit.ErrVersionConflict and the caller re-reads and retries.
type TaskStore struct {
	mu       sync.RWMutex
	tasks    map[string]audit.Task
	versions map[string]int64
}

// NewTaskStore constructs a TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		tasks:    make(map[string]audit.Task),
		versions: make(map[string]int64),
	}
}

// CreateTask stores a new task at version 1.
func (s *TaskStore) CreateTask(_ context.Context, task audit.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	s.tasks[task.ID] = task.Clone()
	s.versions[task.ID] = 1
	return nil
}

// GetTask fetches a task and its current version.
func (s *TaskStore) GetTask(_ context.Context, taskID string) (audit.Task, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return audit.Task{}, 0, fmt.Errorf("task %s: %w", taskID, audit.ErrNotFound)
	}
	return task.Clone(), s.versions[taskID], nil
}

// UpdateTask replaces the task if the caller's version is still current.
func (s *TaskStore) UpdateTask(_ context.Context, task audit.Task, version int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.versions[task.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", task.ID, audit.ErrNotFound)
	}
	if current != version {
		return fmt.Errorf("task %s at version %d, caller had %d: %w",
			task.ID, current, version, audit.ErrVersionConflict)
	}
	s.tasks[task.ID] = task.Clone()
	s.versions[task.ID] = version + 1
	return nil
}

// ListTasks returns all tasks ordered by creation time, newest first.
func (s *TaskStore) ListTasks(_ context.Context) ([]audit.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Task, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, task.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}
