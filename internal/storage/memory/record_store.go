package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/bipulgarera-droid/seo-audit-slides/internal/audit"
)

// RecordStore keeps finalized audit records keyed by task id. Records are
// write-once; a second PutRecord for the same task is ignored so retried
// finalization stays idempotent.
type RecordStore struct {
	mu      sync.RWMutex
	records map[string]audit.AuditRecord
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{records: make(map[string]audit.AuditRecord)}
}

// PutRecord stores the record unless one already exists for the task.
func (s *RecordStore) PutRecord(_ context.Context, record audit.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.TaskID]; exists {
		return nil
	}
	s.records[record.TaskID] = record
	return nil
}

// GetRecord fetches the record for a task.
func (s *RecordStore) GetRecord(_ context.Context, taskID string) (audit.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[taskID]
	if !ok {
		return audit.AuditRecord{}, fmt.Errorf("record for task %s: %w", taskID, audit.ErrNotFound)
	}
	return record, nil
}
