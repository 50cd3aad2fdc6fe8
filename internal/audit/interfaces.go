package audit

import (
	"context"
	"encoding/json"
	"time"
)

// FetchParams carries source-agnostic knobs passed to every adapter.
type FetchParams struct {
	MaxPages int
}

// Adapter normalizes one provider into the common fetch contract. Fetch must
// return within the caller's context budget; all failure modes come back as
// a *SourceError, never as a panic or a raw transport error.
type Adapter interface {
	Source() Source
	Fetch(ctx context.Context, domain string, params FetchParams) (json.RawMessage, error)
}

// TaskStore persists tasks under optimistic versioning. UpdateTask succeeds
// only when the stored version matches, so two concurrent sub-status updates
// for different sources can never lose each other.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, taskID string) (Task, int64, error)
	UpdateTask(ctx context.Context, task Task, version int64) error
	ListTasks(ctx context.Context) ([]Task, error)
}

// RecordStore persists finalized audit records keyed by task id.
type RecordStore interface {
	PutRecord(ctx context.Context, record AuditRecord) error
	GetRecord(ctx context.Context, taskID string) (AuditRecord, error)
}

// BlobStore writes exported artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for accepted audits.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes digests for artifact paths.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
