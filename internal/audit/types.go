// Package audit defines core types shared across subsystems.
package audit

import (
	"encoding/json"
	"time"
)

// Source identifies an external SEO data provider category.
type Source string

// Supported audit data sources.
const (
	SourceTechnical   Source = "technical"
	SourceKeywords    Source = "keywords"
	SourceBacklinks   Source = "backlinks"
	SourcePerformance Source = "performance"
)

// AllSources returns every supported source in stable order.
func AllSources() []Source {
	return []Source{SourceTechnical, SourceKeywords, SourceBacklinks, SourcePerformance}
}

// Valid reports whether the source is one of the supported identifiers.
func (s Source) Valid() bool {
	switch s {
	case SourceTechnical, SourceKeywords, SourceBacklinks, SourcePerformance:
		return true
	default:
		return false
	}
}

// TaskStatus represents the lifecycle state of an audit task.
type TaskStatus string

// Task status values persisted in the task store.
const (
	TaskStatusPending        TaskStatus = "pending"
	TaskStatusRunning        TaskStatus = "running"
	TaskStatusCompleted      TaskStatus = "completed"
	TaskStatusPartialFailure TaskStatus = "partial_failure"
	TaskStatusFailed         TaskStatus = "failed"
)

// SourceStatus tracks one source's progress within a task.
type SourceStatus string

// Per-source status values.
const (
	SourcePending   SourceStatus = "pending"
	SourceRunning   SourceStatus = "running"
	SourceSucceeded SourceStatus = "succeeded"
	SourceFailed    SourceStatus = "failed"
)

// AuditRequest captures a client's audit submission. It is immutable once
// accepted; Normalize returns the canonical copy used for the task.
type AuditRequest struct {
	Domain    string   `json:"domain"`
	Sources   []Source `json:"sources,omitempty"`
	ProjectID string   `json:"project_id,omitempty"`
	MaxPages  int      `json:"max_pages,omitempty"`
}

// SourceState is the per-source sub-status entry inside a Task.
type SourceState struct {
	Status    SourceStatus `json:"status"`
	ErrorKind ErrorKind    `json:"error_kind,omitempty"`
	ErrorText string       `json:"error_text,omitempty"`
	Attempts  int          `json:"attempts"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// SourceOutcome is applied to a task via the tracker's MarkSource.
type SourceOutcome struct {
	Status    SourceStatus
	ErrorKind ErrorKind
	ErrorText string
	Attempts  int
}

// Task represents the metadata persisted for each submitted audit. The
// aggregate Status is always derivable from the Sources mapping; callers
// must go through the tracker so the two never drift apart.
type Task struct {
	ID        string                 `json:"id"`
	Domain    string                 `json:"domain"`
	ProjectID string                 `json:"project_id,omitempty"`
	Status    TaskStatus             `json:"status"`
	Sources   map[Source]SourceState `json:"sources"`
	MaxPages  int                    `json:"max_pages,omitempty"`
	RecordRef string                 `json:"record_ref,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// DeriveStatus computes the aggregate status from the sub-status mapping.
// It is a pure function of the mapping, so recomputation is order-independent
// across concurrent per-source updates.
func (t Task) DeriveStatus() TaskStatus {
	if len(t.Sources) == 0 {
		return TaskStatusPending
	}
	var pending, running, succeeded, failed int
	for _, state := range t.Sources {
		switch state.Status {
		case SourcePending:
			pending++
		case SourceRunning:
			running++
		case SourceSucceeded:
			succeeded++
		case SourceFailed:
			failed++
		}
	}
	switch {
	case pending == len(t.Sources):
		return TaskStatusPending
	case pending > 0 || running > 0:
		return TaskStatusRunning
	case failed == 0:
		return TaskStatusCompleted
	case succeeded == 0:
		return TaskStatusFailed
	default:
		return TaskStatusPartialFailure
	}
}

// Terminal reports whether the task has reached a final state.
func (t Task) Terminal() bool {
	switch t.Status {
	case TaskStatusCompleted, TaskStatusPartialFailure, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// RequestedSources returns the task's sources in stable order.
func (t Task) RequestedSources() []Source {
	out := make([]Source, 0, len(t.Sources))
	for _, s := range AllSources() {
		if _, ok := t.Sources[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Clone returns a deep copy so store reads never alias internal state.
func (t Task) Clone() Task {
	cp := t
	cp.Sources = make(map[Source]SourceState, len(t.Sources))
	for k, v := range t.Sources {
		cp.Sources[k] = v
	}
	return cp
}

// FetchResult is produced by exactly one adapter invocation and is immutable
// once produced. Attempts counts invocations including the final one.
type FetchResult struct {
	Source    Source          `json:"source"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
	Success   bool            `json:"success"`
	ErrorKind ErrorKind       `json:"error_kind,omitempty"`
	ErrorText string          `json:"error_text,omitempty"`
	Attempts  int             `json:"attempts"`
}

// FailedSource records one failed source inside an AuditRecord.
type FailedSource struct {
	Source    Source    `json:"source"`
	ErrorKind ErrorKind `json:"error_kind"`
	ErrorText string    `json:"error_text,omitempty"`
}

// AuditRecord is the finalized audit output built once per task. Only
// successful sources appear in Payloads; the Failed list is sorted by
// source identifier so the record content is reproducible.
type AuditRecord struct {
	TaskID      string                     `json:"task_id"`
	Domain      string                     `json:"domain"`
	Payloads    map[Source]json.RawMessage `json:"payloads"`
	Failed      []FailedSource             `json:"failed"`
	CompletedAt time.Time                  `json:"completed_at"`
}

// QueueItem wraps an accepted audit ready to run.
type QueueItem struct {
	TaskID    string   `json:"task_id"`
	Domain    string   `json:"domain"`
	Sources   []Source `json:"sources"`
	MaxPages  int      `json:"max_pages"`
	Submitted int64    `json:"submitted"`
}
