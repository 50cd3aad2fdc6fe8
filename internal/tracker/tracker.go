// Package tracker assigns durable task identifiers to audit runs and keeps
// their lifecycle state consistent with the per-source sub-status mapping.
package tracker

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

// casAttempts bounds the read-modify-write loop on version conflicts.
const casAttempts = 16

// Tracker mediates all task mutations. The aggregate status is recomputed
// from the sub-status mapping on every write, so it can never drift.
type Tracker struct {
	store  audit.TaskStore
	clock  audit.Clock
	idGen  audit.IDGenerator
	logger *zap.Logger
}

// New constructs a Tracker.
func New(store audit.TaskStore, clock audit.Clock, idGen audit.IDGenerator, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, clock: clock, idGen: idGen, logger: logger}
}

// Create validates the request, allocates a task id, and persists the initial
// task with every requested source pending.
func (t *Tracker) Create(ctx context.Context, req audit.AuditRequest) (audit.Task, error) {
	normalized, err := req.Normalize()
	if err != nil {
		return audit.Task{}, err
	}
	id, err := t.idGen.NewID()
	if err != nil {
		return audit.Task{}, fmt.Errorf("generate task id: %w", err)
	}
	now := t.clock.Now()
	task := audit.Task{
		ID:        id,
		Domain:    normalized.Domain,
		ProjectID: normalized.ProjectID,
		Status:    audit.TaskStatusPending,
		Sources:   make(map[audit.Source]audit.SourceState, len(normalized.Sources)),
		MaxPages:  normalized.MaxPages,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, src := range normalized.Sources {
		task.Sources[src] = audit.SourceState{Status: audit.SourcePending, UpdatedAt: now}
	}
	if err := t.store.CreateTask(ctx, task); err != nil {
		return audit.Task{}, fmt.Errorf("create task: %w", err)
	}
	t.logger.Info("task created",
		zap.String("task_id", task.ID),
		zap.String("domain", task.Domain),
		zap.Int("sources", len(task.Sources)),
	)
	return task, nil
}

// Get fetches a task by id.
func (t *Tracker) Get(ctx context.Context, taskID string) (audit.Task, error) {
	task, _, err := t.store.GetTask(ctx, taskID)
	if err != nil {
		return audit.Task{}, err
	}
	return task, nil
}

// List returns all known tasks.
func (t *Tracker) List(ctx context.Context) ([]audit.Task, error) {
	tasks, err := t.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// MarkSource applies one source's outcome and recomputes the aggregate
// status. The update is idempotent and atomic per source key: concurrent
// marks for different sources are serialized by the store's version check
// and retried here, so neither update is lost.
func (t *Tracker) MarkSource(
	ctx context.Context,
	taskID string,
	source audit.Source,
	outcome audit.SourceOutcome,
) (audit.Task, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		task, version, err := t.store.GetTask(ctx, taskID)
		if err != nil {
			return audit.Task{}, err
		}
		state, ok := task.Sources[source]
		if !ok {
			return audit.Task{}, fmt.Errorf("%w: source %s not requested for task %s",
				audit.ErrValidation, source, taskID)
		}
		now := t.clock.Now()
		state.Status = outcome.Status
		state.ErrorKind = outcome.ErrorKind
		state.ErrorText = outcome.ErrorText
		if outcome.Attempts > 0 {
			state.Attempts = outcome.Attempts
		}
		state.UpdatedAt = now
		task.Sources[source] = state
		task.Status = task.DeriveStatus()
		task.UpdatedAt = now

		err = t.store.UpdateTask(ctx, task, version)
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, audit.ErrVersionConflict) {
			return audit.Task{}, fmt.Errorf("mark source %s: %w", source, err)
		}
	}
	return audit.Task{}, fmt.Errorf("mark source %s on task %s: %w",
		source, taskID, audit.ErrVersionConflict)
}

// Finalize attaches the audit record reference. Only legal once the task is
// completed or partial_failure; repeated calls return the stored reference.
func (t *Tracker) Finalize(ctx context.Context, taskID, recordRef string) (string, error) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		task, version, err := t.store.GetTask(ctx, taskID)
		if err != nil {
			return "", err
		}
		if task.RecordRef != "" {
			return task.RecordRef, nil
		}
		switch task.Status {
		case audit.TaskStatusCompleted, audit.TaskStatusPartialFailure:
		default:
			return "", fmt.Errorf("%w: cannot finalize task %s in status %s",
				audit.ErrInvalidTransition, taskID, task.Status)
		}
		task.RecordRef = recordRef
		task.UpdatedAt = t.clock.Now()

		err = t.store.UpdateTask(ctx, task, version)
		if err == nil {
			return recordRef, nil
		}
		if !errors.Is(err, audit.ErrVersionConflict) {
			return "", fmt.Errorf("finalize task %s: %w", taskID, err)
		}
	}
	return "", fmt.Errorf("finalize task %s: %w", taskID, audit.ErrVersionConflict)
}
